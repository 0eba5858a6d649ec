package payload

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Row maps column name to value
type Row map[string]interface{}

// RowSet is an ordered collection of uniformly shaped rows
type RowSet struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows
func (rs *RowSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// SetColumn assigns the same value to every row, appending the column name
// if it is new
func (rs *RowSet) SetColumn(name string, value interface{}) {
	if !rs.HasColumn(name) {
		rs.Columns = append(rs.Columns, name)
	}
	for _, row := range rs.Rows {
		row[name] = value
	}
}

// HasColumn reports whether name is one of the row set's columns
func (rs *RowSet) HasColumn(name string) bool {
	for _, c := range rs.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Values returns row i in column order; missing cells are nil
func (rs *RowSet) Values(i int) []interface{} {
	out := make([]interface{}, len(rs.Columns))
	for j, c := range rs.Columns {
		out[j] = rs.Rows[i][c]
	}
	return out
}

// DecodeRowSet parses an interrupt payload into a row set. Three shapes are
// accepted:
//
//	[{"a": 1, "b": 2}, {"a": 3, "b": 4}]        records
//	{"a": [1, 3], "b": [2, 4]}                   columns of lists
//	{"a": {"0": 1, "1": 3}, "b": {"0": 2, "1": 4}} columns keyed by row index
//
// Scalar columns are broadcast over the rows of the other columns. Columns
// are ordered by name in every shape, so the same record always yields the
// same column order regardless of key order in the payload. Column names
// must be non-empty and free of NUL bytes; anything else is quoted by the
// store.
func DecodeRowSet(raw string) (*RowSet, error) {
	var doc interface{}
	if err := decodeStrict(raw, &doc); err != nil {
		return nil, err
	}
	doc = normalizeNumbers(doc)

	var (
		rs  *RowSet
		err error
	)
	switch v := doc.(type) {
	case []interface{}:
		rs, err = fromRecords(v)
	case map[string]interface{}:
		rs, err = fromColumns(v)
	default:
		err = fmt.Errorf("%w: expected an object or a list of rows", ErrMalformedPayload)
	}
	if err != nil {
		return nil, err
	}
	if rs.Len() == 0 {
		return nil, fmt.Errorf("%w: row set is empty", ErrMalformedPayload)
	}
	for _, c := range rs.Columns {
		if c == "" || strings.ContainsRune(c, 0) {
			return nil, fmt.Errorf("%w: invalid column name %q", ErrMalformedPayload, c)
		}
	}
	return rs, nil
}

func fromRecords(records []interface{}) (*RowSet, error) {
	rs := &RowSet{Rows: make([]Row, 0, len(records))}
	seen := make(map[string]struct{})

	for i, rec := range records {
		obj, ok := rec.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: row %d is not an object", ErrMalformedPayload, i)
		}
		row := make(Row, len(obj))
		for k, v := range obj {
			row[k] = v
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				rs.Columns = append(rs.Columns, k)
			}
		}
		rs.Rows = append(rs.Rows, row)
	}

	sort.Strings(rs.Columns)
	return rs, nil
}

func fromColumns(columns map[string]interface{}) (*RowSet, error) {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		lists   = make(map[string][]interface{})
		indexed = make(map[string]map[string]interface{})
		scalars = make(map[string]interface{})
		length  = -1
	)
	for _, name := range names {
		switch v := columns[name].(type) {
		case []interface{}:
			if length >= 0 && len(v) != length {
				return nil, fmt.Errorf("%w: column %q has %d values, expected %d", ErrMalformedPayload, name, len(v), length)
			}
			length = len(v)
			lists[name] = v
		case map[string]interface{}:
			indexed[name] = v
		default:
			scalars[name] = v
		}
	}

	if len(lists) > 0 && len(indexed) > 0 {
		return nil, fmt.Errorf("%w: cannot mix list and indexed columns", ErrMalformedPayload)
	}
	if len(lists) == 0 && len(indexed) == 0 {
		if len(scalars) > 0 {
			return nil, fmt.Errorf("%w: all scalar values require a row index", ErrMalformedPayload)
		}
		return &RowSet{}, nil
	}

	rs := &RowSet{Columns: names}

	if len(lists) > 0 {
		rs.Rows = make([]Row, length)
		for i := range rs.Rows {
			row := make(Row, len(names))
			for name, values := range lists {
				row[name] = values[i]
			}
			for name, v := range scalars {
				row[name] = v
			}
			rs.Rows[i] = row
		}
		return rs, nil
	}

	index := unionIndex(indexed)
	rs.Rows = make([]Row, len(index))
	for i, key := range index {
		row := make(Row, len(names))
		for name, cells := range indexed {
			// cells missing for this index stay nil, like an outer join
			row[name] = cells[key]
		}
		for name, v := range scalars {
			row[name] = v
		}
		rs.Rows[i] = row
	}
	return rs, nil
}

// unionIndex collects row index keys, ordered numerically when every key is
// an integer and lexically otherwise
func unionIndex(indexed map[string]map[string]interface{}) []string {
	set := make(map[string]struct{})
	for _, cells := range indexed {
		for k := range cells {
			set[k] = struct{}{}
		}
	}

	keys := make([]string, 0, len(set))
	numeric := true
	for k := range set {
		keys = append(keys, k)
		if _, err := strconv.ParseInt(k, 10, 64); err != nil {
			numeric = false
		}
	}

	if numeric {
		sort.Slice(keys, func(i, j int) bool {
			a, _ := strconv.ParseInt(keys[i], 10, 64)
			b, _ := strconv.ParseInt(keys[j], 10, 64)
			return a < b
		})
	} else {
		sort.Strings(keys)
	}
	return keys
}
