package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"fintrack/internal/ingest"
)

// columns maps accepted header names to RawRow fields.
var columns = map[string]string{
	"date":        "date",
	"amount":      "amount",
	"type":        "type",
	"description": "description",
	"category":    "category",
	"currency":    "currency",
	"memo":        "description",
	"value":       "amount",
	"direction":   "type",
}

var errNoHeader = errors.New("missing header row")

var requiredColumns = []string{"date", "amount", "description"}

// readRows decodes a CSV upload. The first line is a header naming the
// columns in any order; unknown columns are ignored. Row numbers count data
// lines from 1. A line the CSV parser rejects becomes a row carrying the
// parse error. With limit > 0 reading stops after limit+1 rows, enough for
// the ingestion service to reject the batch as too large.
func readRows(r io.Reader, limit int) ([]ingest.RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := columns[key]; ok {
			index[field] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	var rows []ingest.RawRow
	for n := 1; limit <= 0 || n <= limit+1; n++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			rows = append(rows, ingest.RawRow{Row: n, DecodeErr: parseErr})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", n, err)
		}
		cell := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		rows = append(rows, ingest.RawRow{
			Row:         n,
			Date:        cell("date"),
			Amount:      cell("amount"),
			Type:        cell("type"),
			Description: cell("description"),
			Category:    cell("category"),
			Currency:    cell("currency"),
		})
	}
	return rows, nil
}
