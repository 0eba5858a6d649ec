package payload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRowSetShapes(t *testing.T) {
	want := &RowSet{
		Columns: []string{"pin", "state"},
		Rows: []Row{
			{"pin": int64(4), "state": "high"},
			{"pin": int64(7), "state": "low"},
		},
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"records", `[{'pin': 4, 'state': 'high'}, {'pin': 7, 'state': 'low'}]`},
		{"column lists", `{'pin': [4, 7], 'state': ['high', 'low']}`},
		{"column index maps", `{'pin': {'0': 4, '1': 7}, 'state': {'0': 'high', '1': 'low'}}`},
		{"double quoted", `{"pin": [4, 7], "state": ["high", "low"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRowSet(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeRowSetIndexOrdering(t *testing.T) {
	rs, err := DecodeRowSet(`{'v': {'10': 'c', '2': 'b', '1': 'a'}}`)
	require.NoError(t, err)
	require.Equal(t, 3, rs.Len())
	assert.Equal(t, "a", rs.Rows[0]["v"])
	assert.Equal(t, "b", rs.Rows[1]["v"])
	assert.Equal(t, "c", rs.Rows[2]["v"])
}

func TestDecodeRowSetSparseIndex(t *testing.T) {
	rs, err := DecodeRowSet(`{'a': {'0': 1, '1': 2}, 'b': {'1': 'x'}}`)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	assert.Nil(t, rs.Rows[0]["b"])
	assert.Equal(t, "x", rs.Rows[1]["b"])
}

func TestDecodeRowSetBroadcastScalar(t *testing.T) {
	rs, err := DecodeRowSet(`{'device': 'press-1', 'pin': [1, 2, 3]}`)
	require.NoError(t, err)
	require.Equal(t, 3, rs.Len())
	for _, row := range rs.Rows {
		assert.Equal(t, "press-1", row["device"])
	}
}

func TestDecodeRowSetRecordsUnionColumns(t *testing.T) {
	rs, err := DecodeRowSet(`[{'b': 1}, {'a': 2}]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rs.Columns)
	assert.Equal(t, []interface{}{nil, int64(1)}, rs.Values(0))
	assert.Equal(t, []interface{}{int64(2), nil}, rs.Values(1))
}

func TestDecodeRowSetMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `interrupt!`},
		{"scalar document", `42`},
		{"all scalars", `{'a': 1, 'b': 2}`},
		{"unequal lists", `{'a': [1, 2], 'b': [1]}`},
		{"mixed list and index", `{'a': [1], 'b': {'0': 1}}`},
		{"record not an object", `[{'a': 1}, 2]`},
		{"empty list", `[]`},
		{"empty object", `{}`},
		{"empty columns", `{'a': []}`},
		{"trailing data", `[{'a': 1}] x`},
		{"empty column name", `[{'': 1}]`},
		{"nul in column name", `{"a\u0000b": [1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := DecodeRowSet(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedPayload)
			assert.Nil(t, rs)
		})
	}
}

func TestRowSetSetColumn(t *testing.T) {
	rs, err := DecodeRowSet(`[{'a': 1}, {'a': 2}]`)
	require.NoError(t, err)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rs.SetColumn("history_timestamp", ts)
	rs.SetColumn("history_timestamp", ts)

	assert.Equal(t, []string{"a", "history_timestamp"}, rs.Columns)
	for _, row := range rs.Rows {
		assert.Equal(t, ts, row["history_timestamp"])
	}
	assert.True(t, rs.HasColumn("a"))
	assert.False(t, rs.HasColumn("b"))
}

func TestDecodeRowSetColumnOrder(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"records", `[{'zeta': 1, 'alpha': 2, 'line id': 3}]`},
		{"records keys spread over rows", `[{'zeta': 1}, {'line id': 3, 'alpha': 2}]`},
		{"column lists", `{'zeta': [1], 'line id': [3], 'alpha': [2]}`},
		{"column index maps", `{'line id': {'0': 3}, 'zeta': {'0': 1}, 'alpha': {'0': 2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := DecodeRowSet(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "line id", "zeta"}, rs.Columns)
		})
	}
}
