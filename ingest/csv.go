package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// decodeCSV parses a CSV body into a tabular payload. The first row becomes
// the column header; RowCount counts data rows only.
func decodeCSV(url string, body []byte) (*Payload, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1 // quiz files are often ragged

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv parse: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv parse: no rows")
	}

	return &Payload{
		URL:      url,
		Kind:     KindTabular,
		Columns:  records[0],
		Rows:     records[1:],
		RowCount: len(records) - 1,
	}, nil
}
