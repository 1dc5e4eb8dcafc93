// Package fileparser turns uploaded delimited-text, spreadsheet and JSON files
// into loosely-typed rows keyed by header name.
package fileparser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
)

// Kind is a supported upload format.
type Kind string

const (
	KindDelimited   Kind = "delimited"
	KindSpreadsheet Kind = "spreadsheet"
	KindJSON        Kind = "json"
)

var (
	ErrUnsupportedFileKind = errors.New("unsupported file type")
	ErrEmptyFile           = errors.New("file contains no data rows")
)

// Row is one record of an uploaded file.
type Row map[string]any

// firstDataLine is the file line of the first record; line 1 holds the header.
const firstDataLine = 2

// Table is the parsed content of an upload.
type Table struct {
	Rows  []Row
	lines []int
}

// Line is the 1-based file line the i-th row starts on. Delimited text can
// skip blank lines or carry multi-line cells, so its rows keep the line the
// reader saw; other formats count one row per line after the header.
func (t *Table) Line(i int) int {
	if i < len(t.lines) {
		return t.lines[i]
	}
	return i + firstDataLine
}

var extensionKinds = map[string]Kind{
	".csv":  KindDelimited,
	".tsv":  KindDelimited,
	".txt":  KindDelimited,
	".xlsx": KindSpreadsheet,
	".xlsm": KindSpreadsheet,
	".json": KindJSON,
}

var mimeKinds = map[string]Kind{
	"text/csv":                  KindDelimited,
	"application/csv":           KindDelimited,
	"text/tab-separated-values": KindDelimited,
	"text/plain":                KindDelimited,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": KindSpreadsheet,
	"application/json": KindJSON,
	"text/json":        KindJSON,
}

// DetectKind picks the format from the file extension, falling back to the MIME type.
func DetectKind(fileName, mimeType string) (Kind, error) {
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(fileName))]; ok {
		return kind, nil
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if kind, ok := mimeKinds[mimeType]; ok {
		return kind, nil
	}

	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFileKind, fileName, mimeType)
}

// Parse reads every data row of the file. Any failure, including a file
// without data rows, is a *errors.ParseError.
func Parse(kind Kind, fileName string, data []byte) ([]Row, error) {
	t, err := ParseTable(kind, fileName, data)
	if err != nil {
		return nil, err
	}
	return t.Rows, nil
}

// ParseTable is Parse keeping the file line of each row.
func ParseTable(kind Kind, fileName string, data []byte) (*Table, error) {
	var (
		rows  []Row
		lines []int
		err   error
	)
	switch kind {
	case KindDelimited:
		rows, lines, err = parseDelimited(data)
	case KindSpreadsheet:
		rows, err = parseSpreadsheet(data)
	case KindJSON:
		rows, err = parseJSON(data)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFileKind, kind)
	}

	if err != nil {
		return nil, &fernerrors.ParseError{FileName: fileName, Message: string(kind), Err: err}
	}
	if len(rows) == 0 {
		return nil, &fernerrors.ParseError{FileName: fileName, Message: string(kind), Err: ErrEmptyFile}
	}
	return &Table{Rows: rows, lines: lines}, nil
}

// table builds rows from a header line and string cells. Short rows are
// padded, long rows truncated, and trailing blank rows dropped.
func table(header []string, records [][]string) []Row {
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	for len(records) > 0 && blank(records[len(records)-1]) {
		records = records[:len(records)-1]
	}

	rows := make([]Row, 0, len(records))
	for _, record := range records {
		row := make(Row, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			row[name] = value
		}
		rows = append(rows, row)
	}
	return rows
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
