package fit

import (
	"database/sql"
	"fmt"
	"math"
)

// InterceptTerm is the coefficient name for the fitted intercept.
const InterceptTerm = "(Intercept)"

// OLS fits y against one or two predictor series by ordinary least
// squares, with an intercept and, when requested for two predictors, a
// product interaction term. It returns one Coefficient per model term
// carrying estimate, standard error, t statistic and two-sided p-value.
// A model with p terms needs more than p points (ErrInsufficientData);
// collinear or degenerate predictors fail with ErrSingularFit.
func OLS(y []float64, predictors [][]float64, names []string, interaction bool) ([]Coefficient, error) {
	if len(predictors) < 1 || len(predictors) > 2 {
		return nil, fmt.Errorf("ols supports 1 or 2 predictors, got %d", len(predictors))
	}
	if len(names) != len(predictors) {
		return nil, fmt.Errorf("ols: %d names for %d predictors", len(names), len(predictors))
	}
	if interaction && len(predictors) != 2 {
		return nil, fmt.Errorf("ols: interaction requires 2 predictors")
	}
	n := len(y)
	for _, pred := range predictors {
		if len(pred) != n {
			return nil, fmt.Errorf("ols: predictor length %d != response length %d", len(pred), n)
		}
	}

	terms := []string{InterceptTerm}
	terms = append(terms, names...)
	if interaction {
		terms = append(terms, names[0]+":"+names[1])
	}
	p := len(terms)
	if n <= p {
		return nil, fmt.Errorf("ols needs more than %d points, got %d: %w", p, n, ErrInsufficientData)
	}

	// Design matrix rows: intercept, predictors, optional product term.
	design := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, 0, p)
		row = append(row, 1)
		for _, pred := range predictors {
			row = append(row, pred[i])
		}
		if interaction {
			row = append(row, predictors[0][i]*predictors[1][i])
		}
		design[i] = row
	}

	// Normal equations: (X'X) b = X'y, solved with the inverse kept for
	// the coefficient covariance diagonal.
	xtx := make([][]float64, p)
	xty := make([]float64, p)
	for j := 0; j < p; j++ {
		xtx[j] = make([]float64, p)
		for k := 0; k < p; k++ {
			var sum float64
			for i := 0; i < n; i++ {
				sum += design[i][j] * design[i][k]
			}
			xtx[j][k] = sum
		}
		var sum float64
		for i := 0; i < n; i++ {
			sum += design[i][j] * y[i]
		}
		xty[j] = sum
	}

	inv, err := invert(xtx)
	if err != nil {
		return nil, err
	}

	beta := make([]float64, p)
	for j := 0; j < p; j++ {
		for k := 0; k < p; k++ {
			beta[j] += inv[j][k] * xty[k]
		}
	}

	var rss float64
	for i := 0; i < n; i++ {
		fitted := 0.0
		for j := 0; j < p; j++ {
			fitted += design[i][j] * beta[j]
		}
		r := y[i] - fitted
		rss += r * r
	}
	df := n - p
	sigma2 := rss / float64(df)

	out := make([]Coefficient, p)
	for j := 0; j < p; j++ {
		c := Coefficient{Term: terms[j], Estimate: beta[j]}
		if v := sigma2 * inv[j][j]; v > 0 {
			se := math.Sqrt(v)
			t := beta[j] / se
			c.StdError = sql.NullFloat64{Float64: se, Valid: true}
			c.Statistic = sql.NullFloat64{Float64: t, Valid: true}
			c.PValue = sql.NullFloat64{Float64: tTwoSided(t, df), Valid: true}
		}
		out[j] = c
	}
	return out, nil
}

// invert computes the inverse of a symmetric positive matrix by
// Gauss-Jordan elimination with partial pivoting. A vanishing pivot means
// the predictors are collinear.
func invert(m [][]float64) ([][]float64, error) {
	p := len(m)
	a := make([][]float64, p)
	for i := range m {
		a[i] = make([]float64, 2*p)
		copy(a[i], m[i])
		a[i][p+i] = 1
	}

	const pivotTol = 1e-12
	for col := 0; col < p; col++ {
		pivot := col
		for row := col + 1; row < p; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < pivotTol {
			return nil, fmt.Errorf("collinear predictors: %w", ErrSingularFit)
		}
		a[col], a[pivot] = a[pivot], a[col]

		scale := a[col][col]
		for k := col; k < 2*p; k++ {
			a[col][k] /= scale
		}
		for row := 0; row < p; row++ {
			if row == col {
				continue
			}
			factor := a[row][col]
			if factor == 0 {
				continue
			}
			for k := col; k < 2*p; k++ {
				a[row][k] -= factor * a[col][k]
			}
		}
	}

	inv := make([][]float64, p)
	for i := 0; i < p; i++ {
		inv[i] = a[i][p:]
	}
	return inv, nil
}
