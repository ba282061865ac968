package mapper

import (
	"strings"

	"github.com/vinodismyname/mcpvariance/internal/table"
	"github.com/vinodismyname/mcpvariance/internal/variance"
	"golang.org/x/text/unicode/norm"
)

// Keywords recognised in column names, per canonical slot. Matching is a
// case-insensitive substring test on the NFC form of the name.
var Keywords = map[string][]string{
	variance.ColAccount: {"account", "статья", "item", "category", "name", "счет", "счёт", "наименование"},
	variance.ColPeriod:  {"period", "date", "month", "период", "дата", "месяц", "quarter", "year"},
	variance.ColActual:  {"actual", "фактический", "fact", "real", "факт"},
	variance.ColBudget:  {"budget", "бюджет", "plan", "planned", "план"},
}

const (
	baseConfidence = 0.8
	keywordBonus   = 0.05
)

// assignment is the partial mapping the rules fill in.
type assignment map[string]string

// rule resolves a slot from the column list and what is already assigned.
// It returns "" when it cannot.
type rule func(cols []ColumnInfo, got assignment) string

// slotRules holds the ordered rules for one slot.
type slotRules struct {
	slot  string
	rules []rule
}

// Keyword rules run for every slot before any fallback so a fallback never
// sees a half-resolved keyword pass.
var keywordPass = []slotRules{
	{variance.ColAccount, []rule{keywordRule(variance.ColAccount)}},
	{variance.ColPeriod, []rule{keywordRule(variance.ColPeriod)}},
	{variance.ColActual, []rule{keywordRule(variance.ColActual)}},
	{variance.ColBudget, []rule{keywordRule(variance.ColBudget)}},
}

var fallbackPass = []slotRules{
	{variance.ColAccount, []rule{firstOfKind(nil, table.KindString)}},
	{variance.ColPeriod, []rule{periodFallback}},
	{variance.ColActual, []rule{firstOfKind(nil, table.KindNumber)}},
	{variance.ColBudget, []rule{firstOfKind([]string{variance.ColActual}, table.KindNumber)}},
}

func keywordRule(slot string) rule {
	return func(cols []ColumnInfo, _ assignment) string {
		for _, c := range cols {
			if matchesKeywords(c.Name, slot) {
				return c.Name
			}
		}
		return ""
	}
}

// firstOfKind picks the first column of one of kinds whose name differs from
// the columns assigned to the excluded slots.
func firstOfKind(exclude []string, kinds ...table.Kind) rule {
	return func(cols []ColumnInfo, got assignment) string {
		for _, c := range cols {
			if !hasKind(c, kinds) || takenBy(c.Name, got, exclude) {
				continue
			}
			return c.Name
		}
		return ""
	}
}

// periodFallback looks at the date-or-string columns: the first one, or the
// second when the first is already the account.
func periodFallback(cols []ColumnInfo, got assignment) string {
	var candidates []string
	for _, c := range cols {
		if hasKind(c, []table.Kind{table.KindDate, table.KindString}) {
			candidates = append(candidates, c.Name)
		}
	}
	switch {
	case len(candidates) == 0:
		return ""
	case candidates[0] != got[variance.ColAccount]:
		return candidates[0]
	case len(candidates) > 1:
		return candidates[1]
	default:
		return ""
	}
}

func hasKind(c ColumnInfo, kinds []table.Kind) bool {
	for _, k := range kinds {
		if c.DType == string(k) {
			return true
		}
	}
	return false
}

func takenBy(name string, got assignment, slots []string) bool {
	for _, s := range slots {
		if got[s] == name {
			return true
		}
	}
	return false
}

func matchesKeywords(name, slot string) bool {
	lower := strings.ToLower(norm.NFC.String(name))
	for _, kw := range Keywords[slot] {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func run(passes [][]slotRules, cols []ColumnInfo) assignment {
	got := assignment{}
	for _, pass := range passes {
		for _, sr := range pass {
			if got[sr.slot] != "" {
				continue
			}
			for _, r := range sr.rules {
				if name := r(cols, got); name != "" {
					got[sr.slot] = name
					break
				}
			}
		}
	}
	return got
}

// SuggestMapping proposes a mapping from column names first and column types
// second. Slots no rule can fill are reported through an UndeterminedError.
// Confidence starts at 0.8 and gains 0.05 for every slot whose column name
// carries one of the slot keywords; it is informational only.
func SuggestMapping(info []ColumnInfo) (variance.ColumnMapping, error) {
	got := run([][]slotRules{keywordPass, fallbackPass}, info)

	var missing []string
	for _, slot := range variance.MandatoryColumns {
		if got[slot] == "" {
			missing = append(missing, slot)
		}
	}
	if len(missing) > 0 {
		return variance.ColumnMapping{}, &variance.UndeterminedError{Slots: missing}
	}

	confidence := baseConfidence
	for _, slot := range variance.MandatoryColumns {
		if matchesKeywords(got[slot], slot) {
			confidence += keywordBonus
		}
	}

	m := variance.ColumnMapping{
		Account:    got[variance.ColAccount],
		Period:     got[variance.ColPeriod],
		Actual:     got[variance.ColActual],
		Budget:     got[variance.ColBudget],
		Confidence: min(confidence, 1.0),
	}
	names := make([]string, len(info))
	for i, c := range info {
		names[i] = c.Name
	}
	m.ExtraColumns = UnmappedColumns(names, m)
	return m, nil
}

// UnmappedColumns returns the columns of cols that m does not use, in order.
func UnmappedColumns(cols []string, m variance.ColumnMapping) []string {
	used := map[string]struct{}{}
	for _, c := range m.Columns() {
		used[c] = struct{}{}
	}
	var out []string
	for _, c := range cols {
		if _, ok := used[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}
