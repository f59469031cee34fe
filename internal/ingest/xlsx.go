package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// readWorkbookTables reads every sheet of a workbook into a table named after
// the sheet, in sheet order.
func readWorkbookTables(f *excelize.File, label string) ([]*table, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx file %s has no sheets", label)
	}

	out := make([]*table, 0, len(sheets))
	for _, sheet := range sheets {
		records, err := sheetRecords(f, sheet)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		if len(records) == 0 {
			continue
		}
		t, err := newTable(sheet, records)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func sheetRecords(f *excelize.File, sheet string) ([][]string, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", sheet, err)
	}
	defer rows.Close()

	var records [][]string
	for rows.Next() {
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row from sheet %s: %w", sheet, err)
		}
		records = append(records, record)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("error iterating rows in sheet %s: %w", sheet, err)
	}
	return records, nil
}

func openWorkbook(path string) ([]*table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx file %s: %w", path, err)
	}
	defer f.Close()
	return readWorkbookTables(f, path)
}

// ReadWorkbook loads a snapshot from a single workbook whose sheets are named
// after the input tables ("IM", "Comp", "COGS", ...).
func ReadWorkbook(r io.Reader) (*Snapshot, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	tables, err := readWorkbookTables(f, "upload")
	if err != nil {
		return nil, err
	}

	set := newTableSet()
	for _, t := range tables {
		set.addNamed(t.name, t)
	}
	return set.assemble()
}

// WriteXLSX writes the priced rows as a single "pricing" sheet.
func WriteXLSX(w io.Writer, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "pricing"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
