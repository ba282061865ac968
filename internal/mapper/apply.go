package mapper

import (
	"fmt"
	"strings"

	"github.com/vinodismyname/mcpvariance/internal/table"
	"github.com/vinodismyname/mcpvariance/internal/variance"
)

// Messages returned by ValidateMapping.
const (
	msgColumnsMissing = "columns missing: "
	msgNoData         = "no data remaining after dropping empty values"
)

// ValidateMapping checks that every mapped column exists and that at least
// one row has a value in all four of them. Non-numeric actual or budget
// values count as empty for this check only.
func ValidateMapping(t *table.Table, m variance.ColumnMapping) (bool, string) {
	var missing []string
	for _, c := range m.Columns() {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return false, msgColumnsMissing + strings.Join(missing, ", ")
	}

	for r := 0; r < t.Len(); r++ {
		if rowComplete(t, m, r, true) {
			return true, ""
		}
	}
	return false, msgNoData
}

func rowComplete(t *table.Table, m variance.ColumnMapping, r int, lenient bool) bool {
	for i, c := range m.Columns() {
		cell, _ := t.Cell(r, c)
		if !cell.Valid {
			return false
		}
		if lenient && i >= 2 {
			if _, ok := table.ParseNumber(cell.Text); !ok {
				return false
			}
		}
	}
	return true
}

// ApplyMapping converts t into records through m and computes their
// variance. Rows with an empty mapped value are dropped; a non-numeric
// actual or budget in a remaining row is a TypeError.
func ApplyMapping(t *table.Table, m variance.ColumnMapping) ([]variance.Record, error) {
	if ok, msg := ValidateMapping(t, m); !ok {
		return nil, fmt.Errorf("%w: %s", variance.ErrMappingInvalid, msg)
	}
	proj, err := t.Project(m.Columns(), variance.MandatoryColumns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", variance.ErrMappingInvalid, err)
	}
	canonical := variance.ColumnMapping{
		Account: variance.ColAccount,
		Period:  variance.ColPeriod,
		Actual:  variance.ColActual,
		Budget:  variance.ColBudget,
	}
	complete := proj.Filter(func(r int) bool { return rowComplete(proj, canonical, r, false) })

	rows := make([]variance.Record, 0, complete.Len())
	for r := 0; r < complete.Len(); r++ {
		acc, _ := complete.Cell(r, variance.ColAccount)
		per, _ := complete.Cell(r, variance.ColPeriod)
		actual, err := number(complete, r, variance.ColActual, m.Actual)
		if err != nil {
			return nil, err
		}
		budget, err := number(complete, r, variance.ColBudget, m.Budget)
		if err != nil {
			return nil, err
		}
		rec := variance.Record{Account: acc.Text, Period: per.Text, Actual: actual, Budget: budget}
		variance.ComputeRecord(&rec)
		rows = append(rows, rec)
	}
	return rows, nil
}

// number parses the cell at row r of the canonical column, reporting
// failures against the source column name.
func number(t *table.Table, r int, canonical, source string) (float64, error) {
	cell, _ := t.Cell(r, canonical)
	v, ok := table.ParseNumber(cell.Text)
	if !ok {
		return 0, &variance.TypeError{Column: source, Row: r + 1, Value: cell.Text}
	}
	return v, nil
}
