package variance

// CalculateVariance returns actual-budget and, when budget is nonzero, the
// deviation as a percentage of budget. The sign follows the arithmetic, so
// negative budgets are not special-cased.
func CalculateVariance(actual, budget float64) (float64, *float64) {
	abs := actual - budget
	if budget == 0 {
		return abs, nil
	}
	pct := abs / budget * 100
	return abs, &pct
}

// ComputeRecord sets both variance fields on r. Recomputing is harmless.
func ComputeRecord(r *Record) {
	abs, pct := CalculateVariance(r.Actual, r.Budget)
	r.AbsoluteVariance = &abs
	r.PercentageVariance = pct
}

// ComputeVariance computes every record in place and returns the same slice.
func ComputeVariance(rows []Record) []Record {
	for i := range rows {
		ComputeRecord(&rows[i])
	}
	return rows
}
