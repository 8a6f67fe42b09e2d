// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package acquire

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/AleutianAI/icd9cms/pkg/logging"
)

// Required dataset headers.
const (
	ColumnCode      = "DIAGNOSIS CODE"
	ColumnShortDesc = "SHORT DESCRIPTION"
	ColumnLongDesc  = "LONG DESCRIPTION"
)

// Row is one diagnosis code from the CMS dataset.
type Row struct {
	Code      string
	ShortDesc string
	LongDesc  string
}

// ReadDatasetFile reads the first sheet of the workbook at path.
func ReadDatasetFile(path string) ([]Row, error) {
	if path == "" {
		return nil, ErrNoDataset
	}
	f, err := os.Open(logging.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadDataset(f)
}

// ReadDataset reads diagnosis rows from the first sheet of a workbook.
//
// # Description
//
// The first row is the header. Columns are located by name, matched
// case-insensitively after trimming, so their order does not matter.
// Rows with an empty code are skipped; codes are returned as written.
//
// # Outputs
//
//   - []Row: Rows in sheet order.
//   - error: ErrEmptyDataset, ErrMissingColumn, or an excelize error.
func ReadDataset(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyDataset
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrEmptyDataset
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(out)+2, err)
		}
		row := Row{
			Code:      cell(cells, cols.code),
			ShortDesc: cell(cells, cols.short),
			LongDesc:  cell(cells, cols.long),
		}
		if row.Code == "" {
			continue
		}
		out = append(out, row)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return out, nil
}

type columns struct {
	code, short, long int
}

func locateColumns(header []string) (columns, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToUpper(strings.TrimSpace(h))] = i
	}

	var cols columns
	for _, want := range []struct {
		name string
		dst  *int
	}{
		{ColumnCode, &cols.code},
		{ColumnShortDesc, &cols.short},
		{ColumnLongDesc, &cols.long},
	} {
		i, ok := pos[want.name]
		if !ok {
			return columns{}, fmt.Errorf("%w: %q", ErrMissingColumn, want.name)
		}
		*want.dst = i
	}
	return cols, nil
}

func cell(cells []string, i int) string {
	if i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}
