package variance

import (
	"math"
	"sort"
)

// Summary aggregates computed records.
type Summary struct {
	TotalRows        int      `json:"total_rows"`
	Periods          []string `json:"periods"`
	Accounts         []string `json:"accounts"`
	TotalVarianceAbs float64  `json:"total_variance_abs"`
	AvgVariancePct   *float64 `json:"avg_variance_pct"`
}

// Summarize returns row count, sorted distinct periods and accounts, the sum
// of absolute variance magnitudes and the mean percentage variance over the
// records that have one. AvgVariancePct is nil when no record has one.
func Summarize(rows []Record) Summary {
	s := Summary{TotalRows: len(rows)}
	periods := map[string]struct{}{}
	accounts := map[string]struct{}{}
	var pctSum float64
	pctCount := 0
	for _, r := range rows {
		periods[r.Period] = struct{}{}
		accounts[r.Account] = struct{}{}
		s.TotalVarianceAbs += math.Abs(deref(r.AbsoluteVariance))
		if r.PercentageVariance != nil {
			pctSum += *r.PercentageVariance
			pctCount++
		}
	}
	s.Periods = sortedKeys(periods)
	s.Accounts = sortedKeys(accounts)
	if pctCount > 0 {
		avg := pctSum / float64(pctCount)
		s.AvgVariancePct = &avg
	}
	return s
}

// Labels returns the sorted distinct periods and accounts of rows.
func Labels(rows []Record) (periods, accounts []string) {
	s := Summarize(rows)
	return s.Periods, s.Accounts
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
