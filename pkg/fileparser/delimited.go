package fileparser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var candidateDelimiters = []rune{',', ';', '\t'}

// parseDelimited also returns the file line each row starts on.
func parseDelimited(data []byte) ([]Row, []int, error) {
	decoded, err := decode(data)
	if err != nil {
		return nil, nil, err
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = sniffDelimiter(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header row: %w", err)
	}

	// Blank lines are skipped and quoted cells may span lines, so each
	// record keeps the line it starts on.
	var (
		records [][]string
		lines   []int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("malformed delimited text: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	rows := table(header, records)
	return rows, lines[:len(rows)], nil
}

// decode converts the input to UTF-8. A BOM selects UTF-8 or UTF-16; other
// input that is not valid UTF-8 is read as Latin-1.
func decode(data []byte) ([]byte, error) {
	bom := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	if utf8.Valid(data) || hasUTF16BOM(data) {
		out, _, err := transform.Bytes(bom, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode text: %w", err)
		}
		return out, nil
	}

	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode latin-1 text: %w", err)
	}
	return out, nil
}

func hasUTF16BOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF})
}

// sniffDelimiter picks the candidate occurring most often, outside quotes, in the header line.
func sniffDelimiter(data []byte) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	quoted := false
	for _, r := range string(firstLine(data)) {
		if r == '"' {
			quoted = !quoted
			continue
		}
		if !quoted {
			counts[r]++
		}
	}

	best := candidateDelimiters[0]
	for _, d := range candidateDelimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

func firstLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i]
	}
	return data
}
