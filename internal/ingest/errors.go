package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSheetNotFound is returned when the requested sheet is absent from an
// otherwise readable workbook
var ErrSheetNotFound = errors.New("sheet not found in workbook")

// InputError marks an unreadable or corrupt workbook. Fatal to the run.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("no se pudo abrir el fichero XLSX %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// MissingColumnsError reports required source columns absent from the
// workbook header set. Ingest writes zero rows but surfaces the summary.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "columnas faltantes: " + strings.Join(e.Columns, ", ")
}
