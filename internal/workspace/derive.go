package workspace

import (
	"github.com/vinodismyname/mcpvariance/internal/loader"
	"github.com/vinodismyname/mcpvariance/internal/mapper"
	"github.com/vinodismyname/mcpvariance/internal/variance"
)

// identity maps a canonical table onto itself.
var identity = variance.ColumnMapping{
	Account:    variance.ColAccount,
	Period:     variance.ColPeriod,
	Actual:     variance.ColActual,
	Budget:     variance.ColBudget,
	Confidence: 1,
}

// Normalize derives records from a table that already uses the canonical
// column names. Call it inside Manager.WithWrite.
func (w *Workspace) Normalize(strict bool) error {
	norm, err := loader.Normalize(w.Table, strict)
	if err != nil {
		return err
	}
	rows, err := loader.TableToRecords(norm)
	if err != nil {
		return err
	}
	variance.ComputeVariance(rows)
	m := identity
	w.Records, w.Mapping = rows, &m
	return nil
}

// ApplyMapping derives records through m, replacing any previous ones. On
// failure the workspace keeps its prior records. Call it inside
// Manager.WithWrite.
func (w *Workspace) ApplyMapping(m variance.ColumnMapping) error {
	rows, err := mapper.ApplyMapping(w.Table, m)
	if err != nil {
		return err
	}
	w.Records, w.Mapping = rows, &m
	return nil
}

// RequireRecords returns the computed records or ErrNoRecords.
func (w *Workspace) RequireRecords() ([]variance.Record, error) {
	if w.Records == nil {
		return nil, ErrNoRecords
	}
	return w.Records, nil
}
