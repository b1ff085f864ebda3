package rollup

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/riverchem/saltflux/internal/models"
)

// DailyStats accounts for the daily rollup: RowsIn - RowsOut is the
// duplicate-observation count, AllMissingGroups the groups that produced
// no output row because every value was null.
type DailyStats struct {
	RowsIn           int
	RowsOut          int
	MissingValues    int
	AllMissingGroups int
}

type dailyKey struct {
	siteID    string
	date      time.Time
	parameter string
}

// Daily collapses same-day observations into one value per (site, date,
// parameter): the arithmetic mean of the non-missing values. Groups whose
// values are all missing emit no row. Output is ordered by site, date,
// parameter so reruns are byte-for-byte reproducible.
func Daily(obs []models.Observation) ([]models.DailyValue, DailyStats) {
	st := DailyStats{RowsIn: len(obs)}

	groups := make(map[dailyKey][]float64)
	var order []dailyKey
	for _, o := range obs {
		key := dailyKey{siteID: o.SiteID, date: o.Date, parameter: o.Parameter}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		if !o.Value.Valid {
			st.MissingValues++
			groups[key] = groups[key] // keep the all-missing group visible
			continue
		}
		groups[key] = append(groups[key], o.Value.Float64)
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.siteID != b.siteID {
			return a.siteID < b.siteID
		}
		if !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		return a.parameter < b.parameter
	})

	out := make([]models.DailyValue, 0, len(order))
	for _, key := range order {
		values := groups[key]
		if len(values) == 0 {
			st.AllMissingGroups++
			continue
		}
		mean, err := stats.Mean(values)
		if err != nil {
			// Unreachable: the slice is non-empty by construction.
			continue
		}
		out = append(out, models.DailyValue{
			SiteID:      key.siteID,
			Date:        key.date,
			Parameter:   key.parameter,
			Value:       mean,
			SampleCount: len(values),
		})
	}
	st.RowsOut = len(out)
	return out, st
}
