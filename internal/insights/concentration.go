// Package insights derives higher-level observations from computed variance
// records.
package insights

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/vinodismyname/mcpvariance/internal/variance"
)

// Dimension selects the label records are grouped by.
type Dimension string

const (
	ByAccount Dimension = "account"
	ByPeriod  Dimension = "period"
)

// HHI bands.
const (
	BandUnconcentrated = "unconcentrated"
	BandModerate       = "moderately_concentrated"
	BandHigh           = "highly_concentrated"
)

const maxTopN = 10

// ErrZeroVariance is returned when no record deviates from budget, so shares
// are undefined.
var ErrZeroVariance = errors.New("insights: total absolute variance is zero")

// ParseDimension validates a dimension name. Empty means account.
func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case "", ByAccount:
		return ByAccount, nil
	case ByPeriod:
		return ByPeriod, nil
	default:
		return "", fmt.Errorf("%w: dimension must be %q or %q, got %q", variance.ErrInvalidParameter, ByAccount, ByPeriod, s)
	}
}

// GroupShare is one group's part of the total absolute variance.
type GroupShare struct {
	Name  string  `json:"name"`
	Share float64 `json:"share"`
	Total float64 `json:"total"`
}

// Concentration reports how much of the total |variance| the largest groups
// carry.
type Concentration struct {
	By         Dimension    `json:"by"`
	TopN       int          `json:"top_n"`
	Total      float64      `json:"total_variance_abs"`
	Groups     []GroupShare `json:"groups"`
	OtherShare float64      `json:"other_share"`
	HHI        float64      `json:"hhi"`
	Band       string       `json:"band"`
}

// VarianceConcentration sums |absolute variance| per group, reports the topN
// groups with their share of the total, and the Herfindahl-Hirschman index
// over all groups. topN outside 1..10 becomes 5. Equal totals keep the order
// in which groups first appear.
func VarianceConcentration(rows []variance.Record, by Dimension, topN int) (Concentration, error) {
	if topN <= 0 || topN > maxTopN {
		topN = 5
	}
	out := Concentration{By: by, TopN: topN}

	var order []string
	acc := map[string]float64{}
	for _, r := range rows {
		key := r.Account
		if by == ByPeriod {
			key = r.Period
		}
		if _, seen := acc[key]; !seen {
			order = append(order, key)
			acc[key] = 0
		}
		if r.AbsoluteVariance != nil {
			acc[key] += math.Abs(*r.AbsoluteVariance)
		}
	}
	for _, k := range order {
		out.Total += acc[k]
	}
	if out.Total == 0 {
		return out, ErrZeroVariance
	}

	sort.SliceStable(order, func(i, j int) bool { return acc[order[i]] > acc[order[j]] })

	keep := min(topN, len(order))
	var topShare float64
	for _, k := range order[:keep] {
		sh := acc[k] / out.Total
		out.Groups = append(out.Groups, GroupShare{Name: k, Share: round3(sh), Total: acc[k]})
		topShare += sh
	}
	out.OtherShare = round3(math.Max(0, 1-topShare))

	var hhi float64
	for _, k := range order {
		sh := acc[k] / out.Total
		hhi += sh * sh
	}
	out.HHI = round3(hhi)
	switch {
	case hhi < 0.15:
		out.Band = BandUnconcentrated
	case hhi < 0.25:
		out.Band = BandModerate
	default:
		out.Band = BandHigh
	}
	return out, nil
}

func round3(f float64) float64 { return math.Round(f*1000) / 1000 }
