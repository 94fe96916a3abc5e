package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()

	file := excelize.NewFile()
	defer file.Close()

	require.NoError(t, file.SetSheetName("Sheet1", sheet))
	for i, cells := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, file.SetSheetRow(sheet, cell, &cells))
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, file.SaveAs(path))
	return path
}

func TestReadWorkbook(t *testing.T) {
	path := writeWorkbook(t, "Informe", [][]any{
		{"Email", "Nombre", "Tiempo total"},
		{"ana@x.es", "Ana", "02h 15m 00s"},
		{"", "", ""},
		{"luis@x.es", "Luis", "no visitado"},
	})

	workbook, err := ReadWorkbook(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "Informe", workbook.Sheet)
	assert.Equal(t, []string{"Email", "Nombre", "Tiempo total"}, workbook.Headers)

	// Fully empty rows are dropped
	require.Len(t, workbook.Rows, 2)
	assert.Equal(t, "ana@x.es", workbook.Rows[0].Cells["Email"])
	assert.Equal(t, "no visitado", workbook.Rows[1].Cells["Tiempo total"])
}

func TestReadWorkbookSheetByName(t *testing.T) {
	path := writeWorkbook(t, "Informe", [][]any{
		{"Email"},
		{"ana@x.es"},
	})

	workbook, err := ReadWorkbook(path, "Informe")
	require.NoError(t, err)
	assert.Equal(t, "Informe", workbook.Sheet)

	_, err = ReadWorkbook(path, "NoExiste")
	assert.ErrorIs(t, err, ErrSheetNotFound)

	_, err = ReadWorkbook(path, 7)
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestReadWorkbookUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not an xlsx"), 0644))

	_, err := ReadWorkbook(path, nil)
	require.Error(t, err)

	var inputErr *InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestHeaderSet(t *testing.T) {
	path := writeWorkbook(t, "Informe", [][]any{
		{"Email", "Nombre"},
		{"ana@x.es", "Ana"},
	})

	workbook, err := ReadWorkbook(path, nil)
	require.NoError(t, err)

	headers := workbook.HeaderSet()
	assert.True(t, headers["Email"])
	assert.True(t, headers["Nombre"])
	assert.False(t, headers["Apellidos"])
}
