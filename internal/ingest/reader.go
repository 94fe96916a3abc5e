package ingest

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RawRow is one data row keyed by the original header names. Cells keep
// the formatted string excelize yields; typing happens in the normalizer.
type RawRow struct {
	Index int
	Cells map[string]string
}

// Workbook holds the rows of one selected sheet
type Workbook struct {
	Path    string
	Sheet   string
	Headers []string
	Rows    []RawRow
}

// ReadWorkbook opens an office-XML workbook and reads the selected sheet.
// The sheet selector may be a name (string), an index (int) or nil for the
// first sheet. Unreadable files produce an InputError; a readable workbook
// without the requested sheet produces ErrSheetNotFound. An empty sheet
// yields zero rows with no error.
func ReadWorkbook(path string, sheet any) (*Workbook, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	defer file.Close()

	sheetName, err := resolveSheet(file, sheet)
	if err != nil {
		return nil, err
	}

	rows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	workbook := &Workbook{Path: path, Sheet: sheetName}
	if len(rows) == 0 {
		return workbook, nil
	}

	for _, header := range rows[0] {
		workbook.Headers = append(workbook.Headers, strings.TrimSpace(header))
	}

	for i, cells := range rows[1:] {
		row := RawRow{Index: i, Cells: make(map[string]string, len(workbook.Headers))}
		empty := true
		for j, header := range workbook.Headers {
			if header == "" {
				continue
			}
			value := ""
			if j < len(cells) {
				value = strings.TrimSpace(cells[j])
			}
			if value != "" {
				empty = false
			}
			row.Cells[header] = value
		}
		if empty {
			continue
		}
		workbook.Rows = append(workbook.Rows, row)
	}

	return workbook, nil
}

// HeaderSet returns the headers as a lookup set
func (w *Workbook) HeaderSet() map[string]bool {
	set := make(map[string]bool, len(w.Headers))
	for _, header := range w.Headers {
		if header != "" {
			set[header] = true
		}
	}
	return set
}

func resolveSheet(file *excelize.File, sheet any) (string, error) {
	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", ErrSheetNotFound)
	}

	switch selector := sheet.(type) {
	case nil:
		return sheets[0], nil
	case string:
		if selector == "" {
			return sheets[0], nil
		}
		for _, name := range sheets {
			if name == selector {
				return name, nil
			}
		}
		return "", fmt.Errorf("%w: %q", ErrSheetNotFound, selector)
	case int:
		if selector < 0 || selector >= len(sheets) {
			return "", fmt.Errorf("%w: index %d", ErrSheetNotFound, selector)
		}
		return sheets[selector], nil
	default:
		return "", fmt.Errorf("%w: unsupported sheet selector %T", ErrSheetNotFound, sheet)
	}
}
