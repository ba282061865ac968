// Package variance holds the canonical record model for budget-vs-actual
// analysis together with the calculator, filters and ranking over it.
package variance

import "fmt"

// Canonical column names.
const (
	ColAccount = "account"
	ColPeriod  = "period"
	ColActual  = "actual"
	ColBudget  = "budget"
)

// MandatoryColumns lists the canonical columns in their canonical order.
var MandatoryColumns = []string{ColAccount, ColPeriod, ColActual, ColBudget}

// Record is one account/period line with its actual and budget figures.
// AbsoluteVariance and PercentageVariance stay nil until ComputeRecord runs;
// PercentageVariance remains nil afterwards when Budget is zero.
type Record struct {
	Account            string   `json:"account"`
	Period             string   `json:"period"`
	Actual             float64  `json:"actual"`
	Budget             float64  `json:"budget"`
	AbsoluteVariance   *float64 `json:"absolute_variance"`
	PercentageVariance *float64 `json:"percentage_variance"`
}

// HasVariance reports whether the record has been through the calculator.
// A computed zero-budget record has no percentage but still counts.
func (r Record) HasVariance() bool {
	return r.AbsoluteVariance != nil
}

// AnalysisParams selects which computed records survive filtering. Nil
// Periods or Accounts means no restriction on that field.
type AnalysisParams struct {
	MinAbsoluteThreshold   float64  `json:"min_absolute_threshold"`
	MinPercentageThreshold float64  `json:"min_percentage_threshold"`
	Periods                []string `json:"periods"`
	Accounts               []string `json:"accounts"`
}

// NewAnalysisParams validates thresholds and copies the label sets so the
// result does not alias caller slices.
func NewAnalysisParams(minAbs, minPct float64, periods, accounts []string) (AnalysisParams, error) {
	if minAbs < 0 {
		return AnalysisParams{}, fmt.Errorf("%w: min_absolute_threshold must be >= 0, got %v", ErrInvalidParameter, minAbs)
	}
	if minPct < 0 || minPct > 100 {
		return AnalysisParams{}, fmt.Errorf("%w: min_percentage_threshold must be within 0..100, got %v", ErrInvalidParameter, minPct)
	}
	return AnalysisParams{
		MinAbsoluteThreshold:   minAbs,
		MinPercentageThreshold: minPct,
		Periods:                cloneSet(periods),
		Accounts:               cloneSet(accounts),
	}, nil
}

func cloneSet(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// ColumnMapping assigns source column names to the canonical fields.
type ColumnMapping struct {
	Account      string   `json:"account"`
	Period       string   `json:"period"`
	Actual       string   `json:"actual"`
	Budget       string   `json:"budget"`
	Confidence   float64  `json:"confidence"`
	ExtraColumns []string `json:"extra_columns,omitempty"`
}

// Columns returns the mapped source columns in canonical order.
func (m ColumnMapping) Columns() []string {
	return []string{m.Account, m.Period, m.Actual, m.Budget}
}

// FileMetadata describes a loaded source for reporting.
type FileMetadata struct {
	Filename    string            `json:"filename"`
	Rows        int               `json:"rows"`
	Columns     []string          `json:"columns"`
	ColumnTypes map[string]string `json:"column_types"`
	FileType    string            `json:"file_type"`
	SizeBytes   int64             `json:"size_bytes"`
}

// SizeKB returns the source size in kibibytes.
func (m FileMetadata) SizeKB() float64 {
	return float64(m.SizeBytes) / 1024
}

// Report is the outcome of one filtered analysis run.
type Report struct {
	Rows         []Record       `json:"rows"`
	Params       AnalysisParams `json:"params"`
	TotalRows    int            `json:"total_rows"`
	FilteredRows int            `json:"filtered_rows"`
}

// Analyze computes variance on rows in place, filters them with params and
// returns the resulting report.
func Analyze(rows []Record, params AnalysisParams) Report {
	ComputeVariance(rows)
	filtered := ApplyFilters(rows, params)
	return Report{
		Rows:         filtered,
		Params:       params,
		TotalRows:    len(rows),
		FilteredRows: len(filtered),
	}
}

// TopVariances ranks the report rows by the given metric.
func (r Report) TopVariances(n int, metric Metric) ([]Record, error) {
	return Rank(r.Rows, n, metric)
}
