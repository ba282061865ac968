// Package mapper inspects arbitrary tabular sources and maps their columns
// onto the canonical account/period/actual/budget fields.
package mapper

import (
	"github.com/vinodismyname/mcpvariance/internal/table"
	"github.com/vinodismyname/mcpvariance/internal/variance"
)

// sampleSize bounds SampleValues per column.
const sampleSize = 5

// ColumnInfo summarizes one source column.
type ColumnInfo struct {
	Name         string `json:"name"`
	DType        string `json:"dtype"`
	SampleValues []any  `json:"sample_values"`
	NullCount    int    `json:"null_count"`
	UniqueCount  int    `json:"unique_count"`
}

// AnalyzeColumns describes every column of t in source order. Samples are the
// first values of the column, nulls included as nil.
func AnalyzeColumns(t *table.Table) []ColumnInfo {
	names := t.Columns()
	out := make([]ColumnInfo, 0, len(names))
	for _, name := range names {
		col, _ := t.Column(name)
		n := min(sampleSize, t.Len())
		samples := make([]any, n)
		for r := 0; r < n; r++ {
			samples[r] = col.Value(r)
		}
		out = append(out, ColumnInfo{
			Name:         name,
			DType:        string(col.Kind),
			SampleValues: samples,
			NullCount:    col.NullCount(),
			UniqueCount:  col.UniqueCount(),
		})
	}
	return out
}

// CreateFileMetadata builds the metadata record for a loaded source.
func CreateFileMetadata(filename string, t *table.Table, fileType string, sizeBytes int64) variance.FileMetadata {
	info := AnalyzeColumns(t)
	types := make(map[string]string, len(info))
	for _, ci := range info {
		types[ci.Name] = ci.DType
	}
	return variance.FileMetadata{
		Filename:    filename,
		Rows:        t.Len(),
		Columns:     t.Columns(),
		ColumnTypes: types,
		FileType:    fileType,
		SizeBytes:   sizeBytes,
	}
}
