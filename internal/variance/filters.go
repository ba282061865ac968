package variance

import "math"

// Filter stage names, in application order.
const (
	StagePeriods    = "periods"
	StageAccounts   = "accounts"
	StageAbsolute   = "absolute_threshold"
	StagePercentage = "percentage_threshold"
)

// StageFunc observes the number of records remaining after a filter stage.
type StageFunc func(stage string, remaining int)

// FilterByAbsoluteThreshold keeps records with |absolute variance| >= threshold.
// Records not yet computed count as zero.
func FilterByAbsoluteThreshold(rows []Record, threshold float64) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if math.Abs(deref(r.AbsoluteVariance)) >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// FilterByPercentageThreshold keeps records with a percentage variance whose
// magnitude is >= threshold. Records without one are always dropped.
func FilterByPercentageThreshold(rows []Record, threshold float64) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if r.PercentageVariance != nil && math.Abs(*r.PercentageVariance) >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// FilterByPeriods keeps records whose period is in periods.
func FilterByPeriods(rows []Record, periods []string) []Record {
	set := toSet(periods)
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if _, ok := set[r.Period]; ok {
			out = append(out, r)
		}
	}
	return out
}

// FilterByAccounts keeps records whose account is in accounts.
func FilterByAccounts(rows []Record, accounts []string) []Record {
	set := toSet(accounts)
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if _, ok := set[r.Account]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ApplyFilters runs periods, accounts, absolute and percentage filters in
// that order. Nil period or account sets skip their stage.
func ApplyFilters(rows []Record, params AnalysisParams) []Record {
	return ApplyFiltersTraced(rows, params, nil)
}

// ApplyFiltersTraced is ApplyFilters reporting the count after each stage
// that ran.
func ApplyFiltersTraced(rows []Record, params AnalysisParams, observe StageFunc) []Record {
	report := func(stage string, rs []Record) {
		if observe != nil {
			observe(stage, len(rs))
		}
	}
	out := rows
	if params.Periods != nil {
		out = FilterByPeriods(out, params.Periods)
		report(StagePeriods, out)
	}
	if params.Accounts != nil {
		out = FilterByAccounts(out, params.Accounts)
		report(StageAccounts, out)
	}
	out = FilterByAbsoluteThreshold(out, params.MinAbsoluteThreshold)
	report(StageAbsolute, out)
	out = FilterByPercentageThreshold(out, params.MinPercentageThreshold)
	report(StagePercentage, out)
	return out
}

func toSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return set
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
