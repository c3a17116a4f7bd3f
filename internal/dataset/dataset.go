// Package dataset holds the immutable tabular result of one executed query.
package dataset

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ColumnType classifies a column for downstream chart and insight logic.
type ColumnType string

const (
	Numeric     ColumnType = "numeric"
	Categorical ColumnType = "categorical"
	Temporal    ColumnType = "temporal"
)

// Column describes one named, typed column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Dataset is an ordered collection of rows over named, typed columns.
// It is immutable once constructed; accessors return copies so consumers
// can derive freely without aliasing the backing storage.
//
// Cell values are normalized at construction to one of: nil, float64,
// string, time.Time, bool.
type Dataset struct {
	cols      []Column
	rows      [][]any
	truncated bool
}

// New constructs a dataset, validating that every row matches the column
// count.
func New(cols []Column, rows [][]any, truncated bool) (*Dataset, error) {
	for i, r := range rows {
		if len(r) != len(cols) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(r), len(cols))
		}
	}
	d := &Dataset{
		cols:      append([]Column(nil), cols...),
		rows:      make([][]any, len(rows)),
		truncated: truncated,
	}
	for i, r := range rows {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = normalizeValue(v)
		}
		d.rows[i] = row
	}
	return d, nil
}

// FromSQLRows drains rows into a dataset, scanning at most limit rows.
// A result of exactly limit rows marks the dataset truncated, since the
// query itself was capped at the same bound.
func FromSQLRows(rows *sql.Rows, limit int) (*Dataset, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var data [][]any
	for rows.Next() {
		if limit > 0 && len(data) >= limit {
			break
		}
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(data), err)
		}
		row := make([]any, len(names))
		for i, v := range values {
			row[i] = normalizeValue(v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Type: inferType(data, i)}
	}

	truncated := limit > 0 && len(data) == limit
	return &Dataset{cols: cols, rows: data, truncated: truncated}, nil
}

// normalizeValue coerces driver values into the dataset's canonical types.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case float64, string, time.Time, bool:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// inferType picks a column type from the first non-nil cell, defaulting
// to categorical for all-null columns.
func inferType(rows [][]any, col int) ColumnType {
	for _, r := range rows {
		switch r[col].(type) {
		case nil:
			continue
		case float64:
			return Numeric
		case time.Time:
			return Temporal
		default:
			return Categorical
		}
	}
	return Categorical
}

// Columns returns a copy of the column descriptors.
func (d *Dataset) Columns() []Column {
	return append([]Column(nil), d.cols...)
}

// ColumnIndex returns the index of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// RowCount returns the number of rows.
func (d *Dataset) RowCount() int {
	return len(d.rows)
}

// Truncated reports whether the result hit the row cap exactly.
func (d *Dataset) Truncated() bool {
	return d.truncated
}

// Empty reports whether the dataset has no rows.
func (d *Dataset) Empty() bool {
	return len(d.rows) == 0
}

// Value returns the raw cell value at (row, col).
func (d *Dataset) Value(row, col int) any {
	return d.rows[row][col]
}

// Float returns the numeric cell at (row, col). ok is false for nil cells
// and non-numeric values.
func (d *Dataset) Float(row, col int) (float64, bool) {
	f, ok := d.rows[row][col].(float64)
	return f, ok
}

// String renders the cell at (row, col) as a label. Nil cells render empty.
func (d *Dataset) String(row, col int) string {
	switch t := d.rows[row][col].(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Row returns a copy of one row.
func (d *Dataset) Row(i int) []any {
	return append([]any(nil), d.rows[i]...)
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	c := &Dataset{
		cols:      append([]Column(nil), d.cols...),
		rows:      make([][]any, len(d.rows)),
		truncated: d.truncated,
	}
	for i, r := range d.rows {
		c.rows[i] = append([]any(nil), r...)
	}
	return c
}

// AsRecords returns the rows as column-name keyed maps, for JSON export.
func (d *Dataset) AsRecords() []map[string]any {
	records := make([]map[string]any, len(d.rows))
	for i, r := range d.rows {
		rec := make(map[string]any, len(d.cols))
		for j, c := range d.cols {
			rec[c.Name] = r[j]
		}
		records[i] = rec
	}
	return records
}

// jsonDataset is the wire shape of a dataset.
type jsonDataset struct {
	Columns   []Column `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// MarshalJSON encodes the dataset with its column metadata.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonDataset{Columns: d.cols, Rows: d.rows, Truncated: d.truncated})
}

// UnmarshalJSON decodes a dataset produced by MarshalJSON.
func (d *Dataset) UnmarshalJSON(b []byte) error {
	var w jsonDataset
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	nd, err := New(w.Columns, w.Rows, w.Truncated)
	if err != nil {
		return err
	}
	*d = *nd
	return nil
}
