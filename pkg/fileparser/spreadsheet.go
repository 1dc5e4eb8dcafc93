package fileparser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Date cells are read raw, so they arrive as serial numbers.
// Columns whose header mentions a date are converted back to ISO dates.
var dateHeaderHints = []string{"date", "fecha"}

func parseSpreadsheet(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	cells, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	header := cells[0]
	rows := table(header, cells[1:])
	for _, name := range header {
		if !isDateHeader(name) {
			continue
		}
		for _, row := range rows {
			if s, ok := row[name].(string); ok {
				row[name] = serialToDate(s)
			}
		}
	}
	return rows, nil
}

func isDateHeader(name string) bool {
	name = strings.ToLower(name)
	for _, hint := range dateHeaderHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

// serialToDate leaves anything that is not a plausible serial date untouched.
func serialToDate(s string) string {
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial < 1 {
		return s
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}
