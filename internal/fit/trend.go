package fit

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// TrendResult is the outcome of the Mann-Kendall monotonic trend test on
// one ordered series, with a Sen (median of pairwise slopes) estimate of
// the trend magnitude per unit of the series index.
type TrendResult struct {
	N      int
	S      int
	Z      float64
	Slope  float64
	PValue float64
}

// MannKendall runs the non-parametric trend test over a series in time
// order. It requires at least 3 points. The variance of S is corrected
// for tied values and the Z statistic carries the usual continuity
// correction; a constant series yields S=0, slope 0 and p=1.
func MannKendall(series []float64) (TrendResult, error) {
	n := len(series)
	if n < 3 {
		return TrendResult{}, fmt.Errorf("mann-kendall needs >=3 points, got %d: %w", n, ErrInsufficientData)
	}

	s := 0
	var slopes []float64
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			diff := series[j] - series[i]
			switch {
			case diff > 0:
				s++
			case diff < 0:
				s--
			}
			slopes = append(slopes, diff/float64(j-i))
		}
	}

	// Tie correction: sum t(t-1)(2t+5) over groups of equal values.
	counts := make(map[float64]int, n)
	for _, v := range series {
		counts[v]++
	}
	tieTerm := 0
	for _, t := range counts {
		if t > 1 {
			tieTerm += t * (t - 1) * (2*t + 5)
		}
	}

	variance := float64(n*(n-1)*(2*n+5)-tieTerm) / 18.0

	var z float64
	if variance > 0 {
		switch {
		case s > 0:
			z = float64(s-1) / math.Sqrt(variance)
		case s < 0:
			z = float64(s+1) / math.Sqrt(variance)
		}
	}

	slope, err := stats.Median(slopes)
	if err != nil {
		return TrendResult{}, fmt.Errorf("median slope: %w", err)
	}

	return TrendResult{
		N:      n,
		S:      s,
		Z:      z,
		Slope:  slope,
		PValue: normalTwoSided(z),
	}, nil
}

// TrendModel adapts the trend test into a partition model function. Rows
// must already be in time order within each partition; the runner
// preserves input order, so sorting the input table once is enough.
func TrendModel[R any](value func(R) float64) ModelFunc[R] {
	return func(rows []R) ([]Coefficient, error) {
		series := make([]float64, len(rows))
		for i, row := range rows {
			series[i] = value(row)
		}
		res, err := MannKendall(series)
		if err != nil {
			return nil, err
		}
		return []Coefficient{{
			Term:      "slope",
			Estimate:  res.Slope,
			Statistic: sql.NullFloat64{Float64: res.Z, Valid: true},
			PValue:    sql.NullFloat64{Float64: res.PValue, Valid: true},
		}}, nil
	}
}
