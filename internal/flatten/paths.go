package flatten

import (
	"strings"
)

// PathKind classifies a leaf path below a question object.
type PathKind int

const (
	// QuestionField is a top level scalar such as QuestionText.
	QuestionField PathKind = iota
	// ChoiceOrderField is the ChoiceOrder array.
	ChoiceOrderField
	// LabelsField is anything below Labels, the whole object is kept.
	LabelsField
	// ChoicesField is a setting of a single choice, Choices.<recode>.<setting>.
	ChoicesField
	// AnswersField is a setting of a single answer, Answers.<recode>.<setting>.
	AnswersField
	// ChoiceSettingField is a per-choice value keyed by a numeric last
	// segment, for example ChoiceDataExportTags.1.
	ChoiceSettingField
	// SettingField is any other nested value, for example
	// Validation.Settings.ForceResponse.
	SettingField
	// LanguageField is a translation, these are ignored.
	LanguageField
)

func (k PathKind) String() string {
	switch k {
	case QuestionField:
		return "question"
	case ChoiceOrderField:
		return "choice-order"
	case LabelsField:
		return "labels"
	case ChoicesField:
		return "choices"
	case AnswersField:
		return "answers"
	case ChoiceSettingField:
		return "choice-setting"
	case SettingField:
		return "setting"
	case LanguageField:
		return "language"
	}
	return "unknown"
}

// QuestionPath is a classified leaf path.
//
// Name is the column the value pivots into. Recode is set for choices,
// answers and choice settings; nested choices (Choices.<g>.Choices.<c>)
// get a composite recode of the form #<g>-<c>.
type QuestionPath struct {
	Kind   PathKind
	Name   string
	Recode string
	// Group and Item are only set for nested choices and answers.
	Group string
	Item  string
}

type pathPattern struct {
	kind  PathKind
	match func(segments []string) bool
}

// first match wins
var pathPatterns = []pathPattern{
	{kind: LanguageField, match: hasLanguageSegment},
	{kind: ChoiceOrderField, match: func(s []string) bool {
		return len(s) == 1 && s[0] == "ChoiceOrder"
	}},
	{kind: QuestionField, match: func(s []string) bool {
		return len(s) == 1
	}},
	{kind: LabelsField, match: func(s []string) bool {
		return s[0] == "Labels"
	}},
	{kind: ChoicesField, match: func(s []string) bool {
		return len(s) >= 3 && strings.HasSuffix(s[0], "Choices")
	}},
	{kind: AnswersField, match: func(s []string) bool {
		return len(s) >= 3 && strings.HasSuffix(s[0], "Answers")
	}},
	{kind: ChoiceSettingField, match: func(s []string) bool {
		return isRecode(s[len(s)-1])
	}},
	{kind: SettingField, match: func(s []string) bool {
		return true
	}},
}

func hasLanguageSegment(segments []string) bool {
	for _, s := range segments[:len(segments)-1] {
		if s == "Language" {
			return true
		}
	}
	return false
}

// isRecode reports whether a segment looks like a platform recode, digits
// possibly joined by dashes.
func isRecode(segment string) bool {
	digits := strings.ReplaceAll(segment, "-", "")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParsePath classifies the segments of a path relative to its question
// object, e.g. ["Choices", "1", "Display"].
func ParsePath(segments []string) QuestionPath {
	if len(segments) == 0 {
		return QuestionPath{Kind: SettingField}
	}

	var kind PathKind
	for _, p := range pathPatterns {
		if p.match(segments) {
			kind = p.kind
			break
		}
	}

	switch kind {
	case QuestionField, ChoiceOrderField:
		return QuestionPath{Kind: kind, Name: segments[0]}
	case LabelsField:
		return QuestionPath{Kind: kind, Name: "Labels"}
	case ChoicesField, AnswersField:
		return parseItemPath(kind, segments)
	case ChoiceSettingField:
		return QuestionPath{
			Kind:   kind,
			Name:   strings.Join(segments[:len(segments)-1], "."),
			Recode: segments[len(segments)-1],
		}
	case SettingField:
		name := segments
		if segments[0] == "AdditionalQuestions" && len(segments) >= 3 {
			name = append([]string{segments[0]}, segments[2:]...)
		}
		return QuestionPath{Kind: kind, Name: strings.Join(name, ".")}
	}
	return QuestionPath{Kind: kind, Name: strings.Join(segments, ".")}
}

// parseItemPath handles <Container>.<recode>.<setting...> paths, including
// the nested <Container>.<group>.<Container>.<item>.<setting...> form.
func parseItemPath(kind PathKind, segments []string) QuestionPath {
	container := segments[0]
	recode := segments[1]
	rest := segments[2:]

	if len(rest) >= 2 && strings.HasSuffix(rest[0], suffixOf(container)) {
		return QuestionPath{
			Kind:   kind,
			Name:   strings.Join(rest[2:], "."),
			Recode: "#" + recode + "-" + rest[1],
			Group:  recode,
			Item:   rest[1],
		}
	}
	return QuestionPath{
		Kind:   kind,
		Name:   strings.Join(rest, "."),
		Recode: recode,
	}
}

func suffixOf(container string) string {
	if strings.HasSuffix(container, "Answers") {
		return "Answers"
	}
	return "Choices"
}

// ChoiceCQID builds the composite id of a choice: QID-<recode> for plain
// recodes and QID#<g>-<c> for composite ones.
func ChoiceCQID(qid, recode string) string {
	if strings.HasPrefix(recode, "#") {
		return qid + recode
	}
	return qid + "-" + recode
}
