package reconcile

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"qualflat/internal/qualtrics"
	"strings"
)

const responseIDColumn = "ResponseID"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Export is a parsed response export CSV.
type Export struct {
	// Columns are the column names with ResponseId normalized to
	// ResponseID.
	Columns []string
	// ImportIDs maps a column name to the ImportId of its metadata cell.
	ImportIDs map[string]string
	Rows      [][]string
	// responseIdx is the position of the ResponseID column.
	responseIdx int
}

type importIDCell struct {
	ImportId *string `json:"ImportId"`
}

// parseImportID decodes a metadata cell, single quoted variants are
// accepted.
func parseImportID(cell string) (string, bool) {
	cell = strings.TrimSpace(cell)
	if !strings.HasPrefix(cell, "{") {
		return "", false
	}
	var decoded importIDCell
	err := json.Unmarshal([]byte(cell), &decoded)
	if err != nil {
		err = json.Unmarshal([]byte(strings.ReplaceAll(cell, "'", `"`)), &decoded)
	}
	if err != nil || decoded.ImportId == nil {
		return "", false
	}
	return *decoded.ImportId, true
}

// parseMetadataRow reports whether a row is the ImportId metadata row: at
// least one cell decodes and no non-empty cell fails to.
func parseMetadataRow(columns, row []string) (map[string]string, bool) {
	ids := make(map[string]string, len(row))
	found := false
	for i, cell := range row {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		id, ok := parseImportID(cell)
		if !ok {
			return nil, false
		}
		found = true
		if _, exists := ids[columns[i]]; !exists {
			ids[columns[i]] = id
		}
	}
	return ids, found
}

// ParseExport reads a response export. The first line holds the column
// names, the ImportId metadata row is whichever of the next two lines
// decodes as such and data rows start right after it.
func ParseExport(contents []byte) (Export, error) {
	contents = bytes.TrimPrefix(contents, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(contents))
	records, err := reader.ReadAll()
	if err != nil {
		// reading from memory, so every error is a parse error
		return Export{}, &qualtrics.MalformedExportError{Reason: err.Error()}
	}
	if len(records) == 0 {
		return Export{}, &qualtrics.MalformedExportError{Reason: "export is empty"}
	}

	columns := make([]string, len(records[0]))
	responseIdx := -1
	for i, name := range records[0] {
		if name == "ResponseId" || name == responseIDColumn {
			name = responseIDColumn
			if responseIdx < 0 {
				responseIdx = i
			}
		}
		columns[i] = name
	}
	if responseIdx < 0 {
		return Export{}, &qualtrics.MalformedExportError{Reason: "export has no ResponseId column"}
	}

	dataStart := -1
	var importIDs map[string]string
	for i := 1; i <= 2 && i < len(records); i++ {
		ids, ok := parseMetadataRow(columns, records[i])
		if ok {
			importIDs = ids
			dataStart = i + 1
			break
		}
	}
	if dataStart < 0 {
		return Export{}, &qualtrics.MalformedExportError{
			Reason: "no ImportId metadata row in the two lines after the header",
		}
	}

	return Export{
		Columns:     columns,
		ImportIDs:   importIDs,
		Rows:        records[dataStart:],
		responseIdx: responseIdx,
	}, nil
}

func (e Export) responseID(row []string) string {
	return row[e.responseIdx]
}
