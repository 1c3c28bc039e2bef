package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is one dataset record. Columns keep the order the server sent them in.
// Numbers are held as json.Number; other values as decoded by encoding/json.
type Row struct {
	columns []string
	values  map[string]any
}

// NewRow builds a row from alternating column/value pairs.
func NewRow(pairs ...any) Row {
	var r Row
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(fmt.Sprint(pairs[i]), pairs[i+1])
	}
	return r
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	return r.columns
}

// Get returns the value of column col.
func (r Row) Get(col string) (any, bool) {
	v, ok := r.values[col]
	return v, ok
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.columns)
}

// Set assigns a value, appending the column if new.
func (r *Row) Set(col string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[col]; !ok {
		r.columns = append(r.columns, col)
	}
	r.values[col] = v
}

// UnmarshalJSON decodes a JSON object preserving member order.
func (r *Row) UnmarshalJSON(data []byte) error {
	var row Row
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("%w: column %q: %v", ErrUnexpectedShape, key, err)
		}
		row.Set(key, v)
		return nil
	})
	if err != nil {
		return err
	}
	*r = row
	return nil
}

// MarshalJSON encodes the row with columns in order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[col])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Rows is an ordered sequence of rows.
type Rows []Row

// UnmarshalJSON accepts an array of objects. A lone object is treated as a
// single row and null as no rows.
func (rs *Rows) UnmarshalJSON(data []byte) error {
	switch firstByte(data) {
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		out := make(Rows, 0, len(raws))
		for i, raw := range raws {
			var row Row
			if err := row.UnmarshalJSON(raw); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			out = append(out, row)
		}
		*rs = out
		return nil
	case '{':
		var row Row
		if err := row.UnmarshalJSON(data); err != nil {
			return err
		}
		*rs = Rows{row}
		return nil
	case 'n':
		*rs = Rows{}
		return nil
	default:
		return fmt.Errorf("%w: expected array of rows", ErrUnexpectedShape)
	}
}

// Columns returns the union of column names in first-seen order.
func (rs Rows) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range rs {
		for _, c := range r.columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}
