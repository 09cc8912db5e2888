package output

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"
)

func NewPrettyTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// WritePretty renders a table with box drawing characters, meant for a
// terminal.
func WritePretty(w io.Writer, t Table) {
	pretty := NewPrettyTable(w)
	if t.Name != "" {
		pretty.SetTitle(t.Name)
	}

	header := make(table.Row, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	pretty.AppendHeader(header)

	rows := make([]table.Row, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = make(table.Row, len(r))
		for j, cell := range r {
			rows[i][j] = cell
		}
	}
	pretty.AppendRows(rows)
	pretty.Render()
}

func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	err := writer.Write(t.Columns)
	if err != nil {
		return err
	}
	err = writer.WriteAll(t.Rows)
	if err != nil {
		return err
	}
	return nil
}

// WriteXLSX writes every table into its own sheet of one workbook.
func WriteXLSX(w io.Writer, tables ...Table) error {
	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	for i, t := range tables {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}
		if i == 0 {
			err := f.SetSheetName(defaultSheet, name)
			if err != nil {
				return err
			}
		} else {
			_, err := f.NewSheet(name)
			if err != nil {
				return err
			}
		}

		err := writeSheetRow(f, name, 1, t.Columns)
		if err != nil {
			return err
		}
		for r, row := range t.Rows {
			err = writeSheetRow(f, name, r+2, row)
			if err != nil {
				return err
			}
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func writeSheetRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheet, cell, &cells)
}
