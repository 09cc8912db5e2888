// Package reconcile merges the label and numeric renderings of a response
// export into one long table with a row per response and column.
package reconcile

import (
	"strconv"
	"strings"
)

// Columns is the header of the reconciled response table.
var Columns = []string{
	"SurveyID",
	"ResponseID",
	"QID",
	"CQID",
	"QRecode",
	"TxtRespAnswer",
	"NumRespAnswer",
}

type Row struct {
	SurveyID      string
	ResponseID    string
	QID           string
	CQID          string
	QRecode       string
	TxtRespAnswer string
	NumRespAnswer string
}

// Values returns the cells of the row in the order of Columns.
func (r Row) Values() []string {
	return []string{
		r.SurveyID,
		r.ResponseID,
		r.QID,
		r.CQID,
		r.QRecode,
		r.TxtRespAnswer,
		r.NumRespAnswer,
	}
}

type cellKey struct {
	responseID string
	qrecode    string
}

type cell struct {
	key   cellKey
	value string
}

// melt turns a wide export into one cell per (ResponseID, column). When
// includeResponseID is set the ResponseID column yields a cell of its own.
func melt(export Export, includeResponseID bool) []cell {
	cells := make([]cell, 0, len(export.Rows)*len(export.Columns))
	for _, row := range export.Rows {
		responseID := export.responseID(row)
		for i, column := range export.Columns {
			if i == export.responseIdx && !includeResponseID {
				continue
			}
			cells = append(cells, cell{
				key:   cellKey{responseID: responseID, qrecode: column},
				value: row[i],
			})
		}
	}
	return cells
}

// numericOrEmpty keeps values that parse as a number.
func numericOrEmpty(value string) string {
	_, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return ""
	}
	return value
}

// Reconcile merges the label export and the numeric export of the same
// response set.
func Reconcile(surveyID string, labels, numeric []byte) ([]Row, error) {
	labelExport, err := ParseExport(labels)
	if err != nil {
		return nil, err
	}
	numericExport, err := ParseExport(numeric)
	if err != nil {
		return nil, err
	}
	return ReconcileExports(surveyID, labelExport, numericExport), nil
}

// ReconcileExports is Reconcile over already parsed exports. The QRecode to
// QID mapping always comes from the label export.
func ReconcileExports(surveyID string, labels, numeric Export) []Row {
	numericCells := melt(numeric, false)
	numericByKey := make(map[cellKey]string, len(numericCells))
	for _, c := range numericCells {
		if _, exists := numericByKey[c.key]; !exists {
			numericByKey[c.key] = numericOrEmpty(c.value)
		}
	}

	var rows []Row
	seen := map[cellKey]bool{}
	for _, c := range melt(labels, true) {
		if seen[c.key] {
			continue
		}
		seen[c.key] = true
		rows = append(rows, newRow(surveyID, labels.ImportIDs, c.key, c.value, numericByKey[c.key]))
	}
	for _, c := range numericCells {
		if seen[c.key] {
			continue
		}
		seen[c.key] = true
		rows = append(rows, newRow(surveyID, labels.ImportIDs, c.key, "", numericByKey[c.key]))
	}
	return rows
}

func newRow(surveyID string, importIDs map[string]string, key cellKey, text, number string) Row {
	qid := ResolveQID(importIDs[key.qrecode], key.qrecode)
	return Row{
		SurveyID:      surveyID,
		ResponseID:    key.responseID,
		QID:           qid,
		CQID:          ResolveCQID(qid, text, number),
		QRecode:       key.qrecode,
		TxtRespAnswer: text,
		NumRespAnswer: number,
	}
}

// ResolveQID uses the ImportId of a column when it names a question,
// otherwise the column name itself.
func ResolveQID(importID, qrecode string) string {
	if strings.Contains(importID, "QID") {
		return importID
	}
	return qrecode
}

var structuralSuffixes = strings.NewReplacer("-Group", "", "-Rank", "", "-TEXT", "")

var xyValues = strings.NewReplacer("-xyValues-x", "", "-xyValues-y", "")

// ResolveCQID derives the answer level composite id of a response cell.
//
// A plain question whose text and numeric answers differ is a choice
// answer and becomes QID-<code>. Composite ids (containing #) lose their
// last dash suffix, everything else loses its -Group, -Rank and -TEXT
// suffixes. Loop and merge ids (<n>_QID<rest>) are rewritten to QID<rest>.
func ResolveCQID(qid, text, number string) string {
	var cqid string
	switch {
	case text != "" && number != "" && text != number &&
		strings.Contains(qid, "QID") &&
		!strings.ContainsAny(qid, "#-") &&
		!strings.Contains(qid, "TEXT"):
		code, _, _ := strings.Cut(number, ".")
		cqid = qid + "-" + code
	case strings.Contains(qid, "#"):
		cqid = qid
		if i := strings.LastIndex(qid, "-"); i >= 0 {
			cqid = qid[:i]
		}
	default:
		cqid = structuralSuffixes.Replace(qid)
	}

	if _, rest, ok := strings.Cut(xyValues.Replace(cqid), "_QID"); ok {
		return "QID" + rest
	}
	return cqid
}
