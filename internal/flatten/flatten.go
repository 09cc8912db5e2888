// Package flatten turns a nested survey definition into flat tables, the
// main one having one row per question choice keyed by a composite id
// (CQID).
package flatten

import (
	"context"
	"qualflat/lib/htmlutil"
	"strconv"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("qualflat/internal/flatten")

type Options struct {
	Collision Collision
	// IncludeEmbeddedData appends one row per embedded data field of the
	// survey flow, with the field name as its CQID.
	IncludeEmbeddedData bool
}

// Columns is the header of the flattened definition table.
var Columns = []string{
	"FlowSort",
	"FlowID",
	"BlockElementSort",
	"BlockDescription",
	"QID",
	"CQID",
	"QuestionText",
	"QuestionType",
	"Selector",
	"SubSelector",
	"DataExportTag",
	"ChoiceDataExportTags",
	"Display",
	"Image.Display",
	"Image.ImageLocation",
	"VariableNaming",
	"ChoiceOrder",
	"CRecode",
}

// Row is one row of the flattened definition, every value is a table cell
// and missing values are empty.
type Row struct {
	FlowSort             string
	FlowID               string
	BlockElementSort     string
	BlockDescription     string
	QID                  string
	CQID                 string
	QuestionText         string
	QuestionType         string
	Selector             string
	SubSelector          string
	DataExportTag        string
	ChoiceDataExportTags string
	Display              string
	ImageDisplay         string
	ImageLocation        string
	VariableNaming       string
	ChoiceOrder          string
	CRecode              string
}

// Values returns the cells of the row in the order of Columns.
func (r Row) Values() []string {
	return []string{
		r.FlowSort,
		r.FlowID,
		r.BlockElementSort,
		r.BlockDescription,
		r.QID,
		r.CQID,
		r.QuestionText,
		r.QuestionType,
		r.Selector,
		r.SubSelector,
		r.DataExportTag,
		r.ChoiceDataExportTags,
		r.Display,
		r.ImageDisplay,
		r.ImageLocation,
		r.VariableNaming,
		r.ChoiceOrder,
		r.CRecode,
	}
}

// WideTable has one row per question, its columns are QID followed by
// every question level field and setting in first appearance order.
type WideTable struct {
	Columns []string
	Rows    [][]string
}

type Result struct {
	Rows    []Row
	Flow    []FlowRow
	Blocks  []BlockRow
	Answers []Answer
	// Wide has one row per question holding every question level field and
	// setting, keyed by QID.
	Wide WideTable
}

// Flatten reshapes the `result` payload of a survey definition.
func Flatten(ctx context.Context, definition []byte, opts Options) (Result, error) {
	_, span := tracer.Start(ctx, "Flatten")
	defer span.End()

	if !gjson.ValidBytes(definition) {
		return Result{}, &SchemaAssumptionError{Reason: "definition is not valid json"}
	}
	root := gjson.ParseBytes(definition)

	questionsValue := root.Get("Questions")
	if !questionsValue.Exists() {
		return Result{}, &SchemaAssumptionError{Path: "Questions", Reason: "missing"}
	}
	flowValue := root.Get("SurveyFlow.Flow")
	if !flowValue.IsArray() {
		return Result{}, &SchemaAssumptionError{Path: "SurveyFlow.Flow", Reason: "missing or not an array"}
	}
	blocksValue := root.Get("Blocks")
	if !blocksValue.Exists() {
		return Result{}, &SchemaAssumptionError{Path: "Blocks", Reason: "missing"}
	}

	flow, err := extractFlow(flowValue)
	if err != nil {
		return Result{}, err
	}
	blocks, err := extractBlocks(blocksValue)
	if err != nil {
		return Result{}, err
	}
	questions, err := extractQuestions(questionsValue, opts.Collision)
	if err != nil {
		return Result{}, err
	}

	rows, err := assemble(flow, blocks, questions, opts)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("flatten.questions", len(questions.order)),
		attribute.Int("flatten.rows", len(rows)),
	)

	return Result{
		Rows:    rows,
		Flow:    flow,
		Blocks:  blocks,
		Answers: questions.answers,
		Wide:    wideTable(questions),
	}, nil
}

func assemble(flow []FlowRow, blocks []BlockRow, questions questionSet, opts Options) ([]Row, error) {
	flowByBlock := map[string][]FlowRow{}
	for _, f := range flow {
		if f.BlockID == "" {
			continue
		}
		flowByBlock[f.BlockID] = append(flowByBlock[f.BlockID], f)
	}

	var rows []Row
	seen := map[string]bool{}
	emit := func(r Row) {
		if seen[r.CQID] {
			return
		}
		seen[r.CQID] = true
		rows = append(rows, r)
	}

	for _, block := range blocks {
		refs := flowByBlock[block.BlockID]
		if len(refs) == 0 {
			refs = []FlowRow{{FlowSort: -1}}
		}
		for _, ref := range refs {
			base := Row{
				BlockElementSort: strconv.Itoa(block.BlockElementSort),
				BlockDescription: block.BlockDescription,
				QID:              block.QID,
			}
			if ref.FlowSort >= 0 {
				base.FlowSort = strconv.Itoa(ref.FlowSort)
				base.FlowID = ref.FlowID
			}

			expanded, err := questionRows(base, ref, questions)
			if err != nil {
				return nil, err
			}
			for _, r := range expanded {
				emit(r)
			}
		}
	}

	if opts.IncludeEmbeddedData {
		for _, f := range flow {
			if f.Field == "" {
				continue
			}
			emit(Row{
				FlowSort: strconv.Itoa(f.FlowSort),
				FlowID:   f.FlowID,
				CQID:     f.Field,
			})
		}
	}
	return rows, nil
}

// questionRows expands one block element into a row per choice of its
// question, or a single row when the question has no choices.
func questionRows(base Row, ref FlowRow, questions questionSet) ([]Row, error) {
	qid := base.QID
	if qid == "" || !questions.known[qid] {
		base.CQID = resolveCQID("", ref.Field, qid)
		return []Row{base}, nil
	}

	text := questions.fields.value(qid, "QuestionText")
	if unsafe, ok := questions.fields.get(qid, "QuestionText_Unsafe"); ok {
		text = unsafe
	}
	text, err := htmlutil.StripTags(text)
	if err != nil {
		return nil, err
	}

	base.QuestionText = text
	base.QuestionType = questions.fields.value(qid, "QuestionType")
	base.Selector = questions.fields.value(qid, "Selector")
	base.SubSelector = questions.fields.value(qid, "SubSelector")
	base.DataExportTag = questions.fields.value(qid, "DataExportTag")
	base.VariableNaming = questions.fields.value(qid, "VariableNaming")

	choices := questions.orderedChoices(qid)
	if len(choices) == 0 {
		base.CQID = resolveCQID("", ref.Field, qid)
		return []Row{base}, nil
	}

	rows := make([]Row, 0, len(choices))
	for _, c := range choices {
		r := base
		r.CQID = resolveCQID(c.cqid, ref.Field, qid)
		r.CRecode = c.crecode

		display, err := htmlutil.StripTags(questions.choiceCells.value(c.cqid, "Display"))
		if err != nil {
			return nil, err
		}
		r.Display = display
		r.ImageDisplay = questions.choiceCells.value(c.cqid, "Image.Display")
		r.ImageLocation = questions.choiceCells.value(c.cqid, "Image.ImageLocation")
		r.ChoiceDataExportTags = questions.choiceSettings.value(c.cqid, "ChoiceDataExportTags")

		if v, ok := questions.choiceSettings.get(c.cqid, "VariableNaming"); ok {
			r.VariableNaming = v
		} else if v, ok := questions.choiceCells.get(c.cqid, "VariableNaming"); ok {
			r.VariableNaming = v
		}

		if position, ok := questions.choiceOrder[c.cqid]; ok {
			r.ChoiceOrder = strconv.Itoa(position)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// resolveCQID prefers the choice derived id, then the embedded data field
// name, then the bare QID.
func resolveCQID(choiceCQID, field, qid string) string {
	switch {
	case choiceCQID != "":
		return choiceCQID
	case field != "":
		return field
	}
	return qid
}

func wideTable(questions questionSet) WideTable {
	columns := []string{"QID"}
	columns = append(columns, questions.fields.columns...)
	columns = append(columns, questions.settings.columns...)

	rows := make([][]string, 0, len(questions.order))
	for _, qid := range questions.order {
		row := make([]string, 0, len(columns))
		row = append(row, qid)
		for _, c := range questions.fields.columns {
			row = append(row, questions.fields.value(qid, c))
		}
		for _, c := range questions.settings.columns {
			row = append(row, questions.settings.value(qid, c))
		}
		rows = append(rows, row)
	}
	return WideTable{Columns: columns, Rows: rows}
}
