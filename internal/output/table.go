// Package output renders result tables for people and for other tools.
package output

import (
	"qualflat/internal/flatten"
	"qualflat/internal/qualtrics"
	"qualflat/internal/reconcile"
	"strconv"
)

// Table is a named grid of string cells, Name doubles as the sheet name
// in workbooks.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

var SurveyColumns = []string{"SurveyID", "Survey_Name", "IsActive", "Created", "LastModified"}

func SurveysTable(surveys []qualtrics.Survey) Table {
	rows := make([][]string, 0, len(surveys))
	for _, s := range surveys {
		rows = append(rows, []string{
			s.ID,
			s.Name,
			strconv.FormatBool(s.IsActive),
			s.Created,
			s.LastModified,
		})
	}
	return Table{Name: "surveys", Columns: SurveyColumns, Rows: rows}
}

func DefinitionTable(result flatten.Result) Table {
	rows := make([][]string, 0, len(result.Rows))
	for _, r := range result.Rows {
		rows = append(rows, r.Values())
	}
	return Table{Name: "definition", Columns: flatten.Columns, Rows: rows}
}

// DefinitionTables is the definition table followed by the intermediate
// flow, block, answer and per question tables.
func DefinitionTables(result flatten.Result) []Table {
	flow := Table{
		Name:    "flow",
		Columns: []string{"FlowSort", "FlowID", "BlockID", "FlowType", "Field", "Type", "Value"},
	}
	for _, f := range result.Flow {
		flow.Rows = append(flow.Rows, []string{
			strconv.Itoa(f.FlowSort), f.FlowID, f.BlockID, f.FlowType, f.Field, f.Type, f.Value,
		})
	}

	blocks := Table{
		Name:    "blocks",
		Columns: []string{"BlockID", "BlockType", "BlockDescription", "BlockElementSort", "BlockElementType", "QID"},
	}
	for _, b := range result.Blocks {
		blocks.Rows = append(blocks.Rows, []string{
			b.BlockID, b.BlockType, b.BlockDescription, strconv.Itoa(b.BlockElementSort), b.BlockElementType, b.QID,
		})
	}

	answers := Table{
		Name:    "answers",
		Columns: []string{"QID", "AnswerSort", "CRecode", "Setting", "Value"},
	}
	for _, a := range result.Answers {
		answers.Rows = append(answers.Rows, []string{
			a.QID, strconv.Itoa(a.AnswerSort), a.CRecode, a.Setting, a.Value,
		})
	}

	questions := Table{
		Name:    "questions",
		Columns: result.Wide.Columns,
		Rows:    result.Wide.Rows,
	}

	return []Table{DefinitionTable(result), flow, blocks, answers, questions}
}

func ResponsesTable(rows []reconcile.Row) Table {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Values())
	}
	return Table{Name: "responses", Columns: reconcile.Columns, Rows: out}
}
