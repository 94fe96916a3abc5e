package ingest

import (
	"errors"

	"github.com/ternarybob/arbor"
)

// ImportSummary aggregates validation information for one workbook
type ImportSummary struct {
	TotalRows      int              `json:"total_rows"`
	MissingColumns []string         `json:"missing_columns"`
	Preview        []map[string]any `json:"preview"`
	Errors         []string         `json:"errors"`
}

// IsValid reports whether the workbook passed all validations
func (s *ImportSummary) IsValid() bool {
	return len(s.Errors) == 0
}

// ParseWorkbook opens a workbook, validates the mapped columns and
// produces a short preview. Invalid workbooks return a summary with the
// missing columns recorded; only unreadable files return an error.
func ParseWorkbook(path string, mapping *Mapping, previewRows int, logger arbor.ILogger) (*ImportSummary, error) {
	logger.Info().
		Str("file", path).
		Msg("Parsing workbook")

	workbook, err := ReadWorkbook(path, mapping.SheetName)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) || errors.Is(err, ErrSheetNotFound) {
			logger.Error().
				Err(err).
				Str("file", path).
				Msg("Workbook parse failed")
			return nil, err
		}
		return nil, err
	}

	summary := &ImportSummary{TotalRows: len(workbook.Rows)}

	_, err = mapping.Resolve(workbook.HeaderSet(), path)
	var missingErr *MissingColumnsError
	if errors.As(err, &missingErr) {
		summary.MissingColumns = missingErr.Columns
		summary.Errors = append(summary.Errors, missingErr.Error())
		logger.Warn().
			Str("file", path).
			Strs("missing_columns", missingErr.Columns).
			Msg("Workbook is missing required columns")
		return summary, nil
	}
	if err != nil {
		return nil, err
	}

	for i, row := range workbook.Rows {
		if i >= previewRows {
			break
		}
		preview := make(map[string]any, len(row.Cells))
		for header, cell := range row.Cells {
			preview[header] = CoerceCell(cell)
		}
		summary.Preview = append(summary.Preview, preview)
	}

	logger.Info().
		Str("file", path).
		Int("total_rows", summary.TotalRows).
		Int("preview_rows", len(summary.Preview)).
		Msg("Workbook parsed")

	return summary, nil
}
