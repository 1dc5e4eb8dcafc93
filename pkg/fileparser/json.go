package fileparser

import (
	"bytes"
	"encoding/json"
	"fmt"
)

func parseJSON(data []byte) ([]Row, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("expected a top-level array of objects: %w", err)
	}

	rows := make([]Row, 0, len(items))
	for i, item := range items {
		var row Row
		if err := json.Unmarshal(item, &row); err != nil || row == nil {
			return nil, fmt.Errorf("element %d is not an object", i)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
