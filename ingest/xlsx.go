package ingest

import (
	"fmt"

	"github.com/tealeg/xlsx/v2"
)

// decodeXLSX parses a workbook body into a tabular payload from its first
// sheet. The first row becomes the column header.
func decodeXLSX(url string, body []byte) (*Payload, error) {
	f, err := xlsx.OpenBinary(body)
	if err != nil {
		return nil, fmt.Errorf("xlsx open: %w", err)
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("xlsx open: no sheets")
	}

	sheet := f.Sheets[0]
	var columns []string
	var rows [][]string
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			columns = cells
			continue
		}
		rows = append(rows, cells)
	}
	if columns == nil {
		return nil, fmt.Errorf("xlsx open: empty sheet")
	}

	return &Payload{
		URL:      url,
		Kind:     KindTabular,
		Columns:  columns,
		Rows:     rows,
		RowCount: len(rows),
	}, nil
}
