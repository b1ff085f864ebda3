package harmonize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/riverchem/saltflux/internal/metrics"
	"github.com/riverchem/saltflux/internal/models"
)

// FilterWater restricts observations to the water medium and reports how
// many rows were dropped.
func FilterWater(obs []models.Observation) ([]models.Observation, int) {
	out := make([]models.Observation, 0, len(obs))
	dropped := 0
	for _, o := range obs {
		if o.Medium != models.MediumWater {
			dropped++
			continue
		}
		out = append(out, o)
	}
	if dropped > 0 {
		metrics.RecordsDropped.WithLabelValues("non_water_medium").Add(float64(dropped))
	}
	return out, dropped
}

// UnitMismatchError reports that more than one unit survived filtering for
// a single parameter. Mixed units must never reach the aggregator.
type UnitMismatchError struct {
	Parameter string
	Units     []string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("unit mismatch for %s: found %s", e.Parameter, strings.Join(e.Units, ", "))
}

// UnitsByParameter returns the distinct units observed per parameter,
// sorted, for reporting. An empty unit string counts as a unit: a record
// with no unit is itself a data-quality finding.
func UnitsByParameter(obs []models.Observation) map[string][]string {
	seen := make(map[string]map[string]bool)
	for _, o := range obs {
		if seen[o.Parameter] == nil {
			seen[o.Parameter] = make(map[string]bool)
		}
		seen[o.Parameter][o.Unit] = true
	}

	units := make(map[string][]string, len(seen))
	for param, set := range seen {
		list := make([]string, 0, len(set))
		for u := range set {
			list = append(list, u)
		}
		sort.Strings(list)
		units[param] = list
	}
	return units
}

// RequireSingleUnit enforces the default strict policy: every parameter
// must carry exactly one unit. The returned error joins one
// UnitMismatchError per offending parameter so the caller can report all
// of them, not just the first.
func RequireSingleUnit(obs []models.Observation) error {
	units := UnitsByParameter(obs)

	params := make([]string, 0, len(units))
	for param := range units {
		params = append(params, param)
	}
	sort.Strings(params)

	var errs []error
	for _, param := range params {
		if len(units[param]) > 1 {
			errs = append(errs, &UnitMismatchError{Parameter: param, Units: units[param]})
		}
	}
	return errors.Join(errs...)
}

// ExcludeMismatched implements the override policy: parameters with mixed
// units are removed wholesale and reported, instead of failing the run.
func ExcludeMismatched(obs []models.Observation) ([]models.Observation, []*UnitMismatchError) {
	units := UnitsByParameter(obs)

	bad := make(map[string]bool)
	var faults []*UnitMismatchError
	params := make([]string, 0, len(units))
	for param := range units {
		params = append(params, param)
	}
	sort.Strings(params)
	for _, param := range params {
		if len(units[param]) > 1 {
			bad[param] = true
			faults = append(faults, &UnitMismatchError{Parameter: param, Units: units[param]})
		}
	}
	if len(bad) == 0 {
		return obs, nil
	}

	out := make([]models.Observation, 0, len(obs))
	for _, o := range obs {
		if bad[o.Parameter] {
			metrics.RecordsDropped.WithLabelValues("unit_mismatch").Inc()
			continue
		}
		out = append(out, o)
	}
	return out, faults
}
