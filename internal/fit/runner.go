package fit

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/riverchem/saltflux/internal/metrics"
	"github.com/riverchem/saltflux/internal/models"
)

// Terminal partition failure reasons. Model functions wrap these so the
// runner and callers can branch without string matching.
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrSingularFit      = errors.New("singular fit")
)

// Key is one partition's grouping-key values, in grouping order.
type Key []models.KeyValue

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, kv := range k {
		parts[i] = kv.Name + "=" + kv.Value
	}
	return strings.Join(parts, " ")
}

// Coefficient is one row of a model's output before partition tagging.
// StdError, Statistic and PValue are null for models that do not produce
// them.
type Coefficient struct {
	Term      string
	Estimate  float64
	StdError  sql.NullFloat64
	Statistic sql.NullFloat64
	PValue    sql.NullFloat64
}

// ModelFunc fits one partition's rows. Returning an error marks the
// partition Failed; it must not abort other partitions.
type ModelFunc[R any] func(rows []R) ([]Coefficient, error)

// Failure records one Failed partition: its key and why the fit was not
// produced.
type Failure struct {
	Key Key
	Err error
}

// Outcome is the flattened product of a partitioned run: successful rows
// tagged with their partition keys, in partition-first-appearance order,
// plus one Failure per partition that did not fit.
type Outcome struct {
	Results  []models.ModelResult
	Failures []Failure
}

// Run partitions rows by the grouping key and fits the model to each
// partition independently. Every distinct key combination reaches a
// terminal state: Fitted (rows in Results) or Failed (entry in Failures).
// Each partition's fit sees only its own extracted subset; rows within a
// partition keep input order, and partitions are processed in order of
// first appearance.
func Run[R any](rows []R, keyFn func(R) Key, model ModelFunc[R]) Outcome {
	partitions := make(map[string][]R)
	keys := make(map[string]Key)
	var order []string
	for _, row := range rows {
		key := keyFn(row)
		id := key.String()
		if _, ok := partitions[id]; !ok {
			order = append(order, id)
			keys[id] = key
		}
		partitions[id] = append(partitions[id], row)
	}

	var out Outcome
	for _, id := range order {
		key := keys[id]
		coeffs, err := model(partitions[id])
		if err != nil {
			out.Failures = append(out.Failures, Failure{Key: key, Err: err})
			metrics.PartitionsTotal.WithLabelValues("failed").Inc()
			continue
		}
		for _, c := range coeffs {
			out.Results = append(out.Results, models.ModelResult{
				Keys:      append([]models.KeyValue(nil), key...),
				Term:      c.Term,
				Estimate:  c.Estimate,
				StdError:  c.StdError,
				Statistic: c.Statistic,
				PValue:    c.PValue,
			})
		}
		metrics.PartitionsTotal.WithLabelValues("fitted").Inc()
	}
	return out
}
