package variance

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Metric selects which variance drives ranking.
type Metric string

const (
	MetricAbsolute   Metric = "absolute"
	MetricPercentage Metric = "percentage"
)

// ParseMetric accepts "absolute" or "percentage" exactly; there is no default.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricAbsolute, MetricPercentage:
		return m, nil
	default:
		return "", fmt.Errorf("%w: metric must be %q or %q, got %q", ErrInvalidParameter, MetricAbsolute, MetricPercentage, s)
	}
}

// Magnitude returns |metric| for r, treating an unset value as zero.
func (m Metric) Magnitude(r Record) float64 {
	if m == MetricPercentage {
		return math.Abs(deref(r.PercentageVariance))
	}
	return math.Abs(deref(r.AbsoluteVariance))
}

// Rank returns the min(n, len(rows)) records with the largest magnitude of
// metric, largest first. Equal magnitudes keep their input order. rows is
// not modified.
func Rank(rows []Record, n int, metric Metric) ([]Record, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: n must be >= 0, got %d", ErrInvalidParameter, n)
	}
	sorted := make([]Record, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return metric.Magnitude(sorted[i]) > metric.Magnitude(sorted[j])
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted, nil
}

// RankBy parses metric and ranks rows.
func RankBy(rows []Record, n int, metric string) ([]Record, error) {
	m, err := ParseMetric(strings.TrimSpace(metric))
	if err != nil {
		return nil, err
	}
	return Rank(rows, n, m)
}
