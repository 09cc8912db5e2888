package flatten

import (
	"slices"

	"github.com/tidwall/gjson"
)

// Answer is one leaf value below a question's Answers object.
type Answer struct {
	QID        string
	AnswerSort int
	CRecode    string
	Setting    string
	Value      string
}

type choice struct {
	qid     string
	cqid    string
	crecode string
}

type questionSet struct {
	order []string
	known map[string]bool
	// question level scalars, Labels and the raw ChoiceOrder
	fields *pivot
	// nested non-choice settings, e.g. Validation.Settings.ForceResponse
	settings *pivot
	// per CQID values of ChoiceSettingField paths
	choiceSettings *pivot
	// per CQID values of ChoicesField paths
	choiceCells *pivot
	choices     map[string][]choice
	// CQID -> position in the question's ChoiceOrder
	choiceOrder map[string]int
	answers     []Answer
}

// walkLeaves visits every leaf of a JSON value, objects are descended into
// while arrays and scalars are leaves.
func walkLeaves(value gjson.Result, prefix []string, visit func(segments []string, leaf gjson.Result)) {
	if !value.IsObject() {
		visit(prefix, value)
		return
	}
	value.ForEach(func(key, child gjson.Result) bool {
		segments := append(slices.Clip(prefix), key.String())
		walkLeaves(child, segments, visit)
		return true
	})
}

func extractQuestions(questions gjson.Result, policy Collision) (questionSet, error) {
	set := questionSet{
		known:          map[string]bool{},
		fields:         newPivot(policy),
		settings:       newPivot(policy),
		choiceSettings: newPivot(policy),
		choiceCells:    newPivot(policy),
		choices:        map[string][]choice{},
		choiceOrder:    map[string]int{},
	}
	if !questions.IsObject() {
		return set, &SchemaAssumptionError{Path: "Questions", Reason: "expected an object keyed by QID"}
	}

	var err error
	questions.ForEach(func(key, question gjson.Result) bool {
		qid := key.String()
		if !question.IsObject() {
			err = &SchemaAssumptionError{Path: "Questions." + qid, Reason: "expected a question object"}
			return false
		}
		set.order = append(set.order, qid)
		set.known[qid] = true
		err = set.addQuestion(qid, question)
		return err == nil
	})
	return set, err
}

func (s *questionSet) addQuestion(qid string, question gjson.Result) error {
	seenChoice := map[string]bool{}
	answerSort := 0

	var err error
	walkLeaves(question, nil, func(segments []string, leaf gjson.Result) {
		if err != nil || len(segments) == 0 {
			return
		}
		value, ok := cellValue(leaf)
		path := ParsePath(segments)

		switch path.Kind {
		case LanguageField:
			return
		case AnswersField:
			// answers keep nulls as empty cells, they are a plain listing
			answerSort++
			s.answers = append(s.answers, Answer{
				QID:        qid,
				AnswerSort: answerSort,
				CRecode:    path.Recode,
				Setting:    path.Name,
				Value:      value,
			})
			return
		case ChoicesField:
			cqid := ChoiceCQID(qid, path.Recode)
			if !seenChoice[cqid] {
				seenChoice[cqid] = true
				s.choices[qid] = append(s.choices[qid], choice{qid: qid, cqid: cqid, crecode: path.Recode})
			}
			if ok {
				err = s.choiceCells.set(cqid, path.Name, value)
			}
			return
		}

		if !ok {
			return
		}
		switch path.Kind {
		case QuestionField, ChoiceOrderField:
			err = s.fields.set(qid, path.Name, value)
			if err == nil && path.Kind == ChoiceOrderField {
				s.addChoiceOrder(qid, leaf)
			}
		case LabelsField:
			err = s.fields.set(qid, path.Name, question.Get("Labels").Raw)
		case ChoiceSettingField:
			cqid := qid
			if isDigits(path.Recode) {
				cqid = qid + "-" + path.Recode
			}
			err = s.choiceSettings.set(cqid, path.Name, value)
		case SettingField:
			err = s.settings.set(qid, path.Name, value)
		}
	})
	return err
}

func (s *questionSet) addChoiceOrder(qid string, order gjson.Result) {
	if !order.IsArray() {
		return
	}
	position := 0
	order.ForEach(func(_, recode gjson.Result) bool {
		value, ok := cellValue(recode)
		if !ok {
			return true
		}
		cqid := qid + "-" + value
		if _, exists := s.choiceOrder[cqid]; !exists {
			s.choiceOrder[cqid] = position
		}
		position++
		return true
	})
}

// orderedChoices returns the choices of a question sorted by their
// ChoiceOrder position, choices missing from ChoiceOrder keep their
// document order after the ordered ones.
func (s *questionSet) orderedChoices(qid string) []choice {
	choices := slices.Clone(s.choices[qid])
	slices.SortStableFunc(choices, func(a, b choice) int {
		pa, oka := s.choiceOrder[a.cqid]
		pb, okb := s.choiceOrder[b.cqid]
		switch {
		case oka && okb:
			return pa - pb
		case oka:
			return -1
		case okb:
			return 1
		}
		return 0
	})
	return choices
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
