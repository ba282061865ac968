package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the coarse storage type inferred for a column.
type Kind string

const (
	KindNumber Kind = "number"
	KindDate   Kind = "date"
	KindString Kind = "string"
)

// Cell holds the trimmed source text of one value. Valid is false for nulls.
type Cell struct {
	Text  string
	Valid bool
}

// Column is a named, typed sequence of cells.
type Column struct {
	Name  string
	Kind  Kind
	Cells []Cell
}

// Table is an in-memory, column-oriented view of a tabular source. Column
// order and row order follow the source.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// FromRows builds a Table from a header and string rows. Header names are
// trimmed; blank names become "Unnamed: N" and repeated names get a ".N"
// suffix. Short rows are padded with nulls; cells beyond the header are
// ignored. Column kinds are inferred from the non-null cells.
func FromRows(header []string, rows [][]string) *Table {
	names := normalizeHeader(header)
	t := &Table{
		columns: make([]*Column, len(names)),
		index:   make(map[string]int, len(names)),
		rows:    len(rows),
	}
	for i, name := range names {
		t.columns[i] = &Column{Name: name, Cells: make([]Cell, len(rows))}
		t.index[name] = i
	}
	for r, row := range rows {
		for c := range t.columns {
			if c >= len(row) {
				continue
			}
			t.columns[c].Cells[r] = newCell(row[c])
		}
	}
	for _, col := range t.columns {
		col.Kind = inferKind(col.Cells)
	}
	return t
}

// Len returns the number of data rows.
func (t *Table) Len() int { return t.rows }

// Columns returns the column names in source order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Name
	}
	return out
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Has reports whether every name is a column of t.
func (t *Table) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := t.index[n]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the names that are not columns of t, preserving order.
func (t *Table) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := t.index[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Cell returns the cell at row r of the named column.
func (t *Table) Cell(r int, name string) (Cell, bool) {
	col, ok := t.Column(name)
	if !ok || r < 0 || r >= t.rows {
		return Cell{}, false
	}
	return col.Cells[r], true
}

// Project returns a new table holding only the named columns, renamed to
// the matching entry of as (or kept when as is nil). Kinds are preserved.
func (t *Table) Project(names []string, as []string) (*Table, error) {
	if as != nil && len(as) != len(names) {
		return nil, fmt.Errorf("table: project: %d names but %d aliases", len(names), len(as))
	}
	out := &Table{
		columns: make([]*Column, len(names)),
		index:   make(map[string]int, len(names)),
		rows:    t.rows,
	}
	for i, n := range names {
		src, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("table: project: unknown column %q", n)
		}
		name := n
		if as != nil {
			name = as[i]
		}
		if _, dup := out.index[name]; dup {
			return nil, fmt.Errorf("table: project: duplicate column %q", name)
		}
		cells := make([]Cell, len(src.Cells))
		copy(cells, src.Cells)
		out.columns[i] = &Column{Name: name, Kind: src.Kind, Cells: cells}
		out.index[name] = i
	}
	return out, nil
}

// Filter returns a new table with the rows for which keep returns true.
// Column kinds are carried over unchanged.
func (t *Table) Filter(keep func(r int) bool) *Table {
	var rows []int
	for r := 0; r < t.rows; r++ {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	out := &Table{
		columns: make([]*Column, len(t.columns)),
		index:   make(map[string]int, len(t.columns)),
		rows:    len(rows),
	}
	for i, src := range t.columns {
		cells := make([]Cell, len(rows))
		for j, r := range rows {
			cells[j] = src.Cells[r]
		}
		out.columns[i] = &Column{Name: src.Name, Kind: src.Kind, Cells: cells}
		out.index[src.Name] = i
	}
	return out
}

// Value returns the cell as a Go value suitable for JSON samples: nil for
// nulls, float64 in number columns, and the source text otherwise.
func (c *Column) Value(r int) any {
	cell := c.Cells[r]
	if !cell.Valid {
		return nil
	}
	if c.Kind == KindNumber {
		if f, ok := ParseNumber(cell.Text); ok {
			return f
		}
	}
	return cell.Text
}

// NullCount counts null cells.
func (c *Column) NullCount() int {
	n := 0
	for _, cell := range c.Cells {
		if !cell.Valid {
			n++
		}
	}
	return n
}

// UniqueCount counts distinct non-null values. Number columns compare by
// parsed value so "1" and "1.0" are the same.
func (c *Column) UniqueCount() int {
	seen := make(map[string]struct{})
	for i, cell := range c.Cells {
		if !cell.Valid {
			continue
		}
		key := cell.Text
		if c.Kind == KindNumber {
			key = fmt.Sprint(c.Value(i))
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

var nullTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"na":   {},
	"n/a":  {},
	"#n/a": {},
	"null": {},
	"none": {},
}

func newCell(raw string) Cell {
	s := strings.TrimSpace(raw)
	if _, null := nullTokens[strings.ToLower(s)]; null {
		return Cell{}
	}
	return Cell{Text: s, Valid: true}
}

// ParseNumber parses a numeric cell. Comma thousands separators are
// accepted; NaN and infinities are not.
func ParseNumber(s string) (float64, bool) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if clean == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"01-02-06",
}

// IsDate reports whether s matches one of the accepted date layouts.
func IsDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// inferKind picks number when every non-null cell is numeric, date when
// every one is a date, and string otherwise. A column with no values is a
// number column, mirroring an all-NaN float column.
func inferKind(cells []Cell) Kind {
	numeric, dates, total := 0, 0, 0
	for _, c := range cells {
		if !c.Valid {
			continue
		}
		total++
		if _, ok := ParseNumber(c.Text); ok {
			numeric++
			continue
		}
		if IsDate(c.Text) {
			dates++
		}
	}
	switch {
	case numeric == total:
		return KindNumber
	case dates == total:
		return KindDate
	default:
		return KindString
	}
}

func normalizeHeader(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			for {
				n++
				candidate := fmt.Sprintf("%s.%d", name, n)
				if _, taken := seen[candidate]; !taken {
					seen[name] = n
					name = candidate
					break
				}
			}
		}
		seen[name] = 0
		names[i] = name
	}
	return names
}
