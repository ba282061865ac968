package loader

import (
	"strconv"

	"github.com/vinodismyname/mcpvariance/internal/table"
	"github.com/vinodismyname/mcpvariance/internal/variance"
)

// CheckColumns verifies the mandatory columns are present. With strict set
// the table must have no other columns either.
func CheckColumns(t *table.Table, strict bool) error {
	missing := t.Missing(variance.MandatoryColumns...)
	var extra []string
	if strict {
		want := map[string]struct{}{}
		for _, c := range variance.MandatoryColumns {
			want[c] = struct{}{}
		}
		for _, c := range t.Columns() {
			if _, ok := want[c]; !ok {
				extra = append(extra, c)
			}
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return &variance.SchemaError{Expected: variance.MandatoryColumns, Missing: missing, Extra: extra}
	}
	return nil
}

// Normalize checks columns, drops rows with a null mandatory value, keeps
// the first row per (account, period) and verifies that actual and budget
// are numeric. The result holds only the four canonical columns.
func Normalize(t *table.Table, strict bool) (*table.Table, error) {
	if err := CheckColumns(t, strict); err != nil {
		return nil, err
	}
	proj, err := t.Project(variance.MandatoryColumns, nil)
	if err != nil {
		return nil, err
	}

	complete := proj.Filter(func(r int) bool {
		for _, c := range variance.MandatoryColumns {
			if cell, _ := proj.Cell(r, c); !cell.Valid {
				return false
			}
		}
		return true
	})

	type key struct{ account, period string }
	seen := make(map[key]struct{}, complete.Len())
	deduped := complete.Filter(func(r int) bool {
		acc, _ := complete.Cell(r, variance.ColAccount)
		per, _ := complete.Cell(r, variance.ColPeriod)
		k := key{acc.Text, per.Text}
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})

	for _, c := range []string{variance.ColActual, variance.ColBudget} {
		col, _ := deduped.Column(c)
		for r, cell := range col.Cells {
			if _, ok := table.ParseNumber(cell.Text); !ok {
				return nil, &variance.TypeError{Column: c, Row: r + 1, Value: cell.Text}
			}
		}
	}
	return deduped, nil
}

// TableToRecords converts a normalized table into records with variance
// unset, in row order.
func TableToRecords(t *table.Table) ([]variance.Record, error) {
	if err := CheckColumns(t, false); err != nil {
		return nil, err
	}
	acc, _ := t.Column(variance.ColAccount)
	per, _ := t.Column(variance.ColPeriod)
	act, _ := t.Column(variance.ColActual)
	bud, _ := t.Column(variance.ColBudget)

	out := make([]variance.Record, 0, t.Len())
	for r := 0; r < t.Len(); r++ {
		actual, ok := table.ParseNumber(act.Cells[r].Text)
		if !ok {
			return nil, &variance.TypeError{Column: variance.ColActual, Row: r + 1, Value: act.Cells[r].Text}
		}
		budget, ok := table.ParseNumber(bud.Cells[r].Text)
		if !ok {
			return nil, &variance.TypeError{Column: variance.ColBudget, Row: r + 1, Value: bud.Cells[r].Text}
		}
		out = append(out, variance.Record{
			Account: acc.Cells[r].Text,
			Period:  per.Cells[r].Text,
			Actual:  actual,
			Budget:  budget,
		})
	}
	return out, nil
}

// RecordsToTable renders records as a canonical four-column table. Variance
// fields are not included.
func RecordsToTable(rows []variance.Record) *table.Table {
	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = []string{r.Account, r.Period, formatFloat(r.Actual), formatFloat(r.Budget)}
	}
	return table.FromRows(variance.MandatoryColumns, data)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
