package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/gocarina/gocsv"
)

// #region table
// Table is a raw, unsplit dataset: one feature row and one label per sample.
type Table struct {
	Columns  []string    `json:"columns,omitempty"`
	Features [][]float64 `json:"features"`
	Labels   []string    `json:"labels"`
}

// #endregion table

// #region fixture-loader
// LoadFixture reads a JSON table fixture.
func LoadFixture(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(t.Features) != len(t.Labels) {
		return nil, fmt.Errorf("fixture %s: %d feature rows, %d labels", path, len(t.Features), len(t.Labels))
	}
	return &t, nil
}

// #endregion fixture-loader

// #region csv-loader
// LoadCSV reads a headed CSV file. labelColumn names the label column; every
// other column is parsed as a float64 feature, in sorted column-name order.
func LoadCSV(path, labelColumn string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	records, err := gocsv.CSVToMaps(f)
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s: %w", path, ErrEmptyPartition)
	}
	if _, ok := records[0][labelColumn]; !ok {
		return nil, fmt.Errorf("csv %s: no label column %q", path, labelColumn)
	}

	var columns []string
	for name := range records[0] {
		if name != labelColumn {
			columns = append(columns, name)
		}
	}
	sort.Strings(columns)

	t := &Table{
		Columns:  columns,
		Features: make([][]float64, 0, len(records)),
		Labels:   make([]string, 0, len(records)),
	}
	for i, rec := range records {
		row := make([]float64, len(columns))
		for j, col := range columns {
			v, err := strconv.ParseFloat(rec[col], 64)
			if err != nil {
				return nil, fmt.Errorf("csv %s row %d column %s: %w", path, i+1, col, err)
			}
			row[j] = v
		}
		t.Features = append(t.Features, row)
		t.Labels = append(t.Labels, rec[labelColumn])
	}
	return t, nil
}

// #endregion csv-loader
