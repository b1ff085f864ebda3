package rollup

import (
	"database/sql"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/riverchem/saltflux/internal/models"
)

// MonthFilter selects which calendar months feed the annual rollup.
type MonthFilter map[time.Month]bool

// AllMonths includes every calendar month.
func AllMonths() MonthFilter {
	f := make(MonthFilter, 12)
	for m := time.January; m <= time.December; m++ {
		f[m] = true
	}
	return f
}

// Months builds a filter from an explicit month list, e.g. the July to
// October low-flow season.
func Months(ms ...time.Month) MonthFilter {
	f := make(MonthFilter, len(ms))
	for _, m := range ms {
		f[m] = true
	}
	return f
}

type annualKey struct {
	siteID    string
	year      int
	parameter string
}

// Annual collapses a daily series into per-(site, calendar year, parameter)
// mean and sample variance, restricted to the included months. Variance
// uses the n-1 denominator and is null for groups with fewer than 2
// values; the mean is still defined for singleton groups.
func Annual(daily []models.DailyValue, months MonthFilter) []models.AnnualSummary {
	if months == nil {
		months = AllMonths()
	}

	groups := make(map[annualKey][]float64)
	for _, dv := range daily {
		if !months[dv.Date.Month()] {
			continue
		}
		key := annualKey{siteID: dv.SiteID, year: dv.Date.Year(), parameter: dv.Parameter}
		groups[key] = append(groups[key], dv.Value)
	}

	keys := make([]annualKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.siteID != b.siteID {
			return a.siteID < b.siteID
		}
		if a.year != b.year {
			return a.year < b.year
		}
		return a.parameter < b.parameter
	})

	out := make([]models.AnnualSummary, 0, len(keys))
	for _, key := range keys {
		values := groups[key]
		mean, err := stats.Mean(values)
		if err != nil {
			continue
		}
		summary := models.AnnualSummary{
			SiteID:    key.siteID,
			Year:      key.year,
			Parameter: key.parameter,
			Mean:      mean,
			Count:     len(values),
		}
		if len(values) >= 2 {
			if variance, err := stats.SampleVariance(values); err == nil {
				summary.Variance = sql.NullFloat64{Float64: variance, Valid: true}
			}
		}
		out = append(out, summary)
	}
	return out
}
