// Package analyze wires the pipeline stages together: filter and clean
// canonical observations, roll up over time, join cohorts, and run the
// partitioned model fits. Each stage consumes the previous stage's output
// and data flows strictly forward; no stage mutates its input.
package analyze

import (
	"fmt"
	"log"
	"sort"

	"github.com/riverchem/saltflux/internal/cohort"
	"github.com/riverchem/saltflux/internal/fit"
	"github.com/riverchem/saltflux/internal/harmonize"
	"github.com/riverchem/saltflux/internal/models"
	"github.com/riverchem/saltflux/internal/rollup"
)

const (
	ModelTrend = "trend"
	ModelOLS   = "ols"
)

// Options is the per-run configuration surface.
type Options struct {
	// Model selects the partition model: ModelTrend (Mann-Kendall over
	// annual means) or ModelOLS (concentration against conductance and,
	// when a discharge stream is present, discharge).
	Model string

	// GroupKeys name the partition grouping columns, in order. Supported:
	// "parameter", "site". Empty means both.
	GroupKeys []string

	// Months restricts the annual rollup to a seasonal window. Nil means
	// all twelve months.
	Months rollup.MonthFilter

	// AllowUnitMismatch switches the unit policy from fail-the-run to
	// exclude-the-parameter-and-report.
	AllowUnitMismatch bool

	// Interaction adds the conductance:discharge product term to the OLS
	// model. Requires a discharge stream.
	Interaction bool
}

// Data carries the harmonized inputs for one run. Chemistry is the
// canonical observation table (possibly mixed media and units; the run
// filters it), Sensor and Discharge are daily series, Sites is static
// metadata. Discharge is optional.
type Data struct {
	Chemistry []models.Observation
	Sensor    []models.DailyValue
	Discharge []models.DailyValue
	Sites     []models.SiteMetadata
}

// Report is everything a run produced: the fitted outcome plus the
// accounting every stage reported on the way. Per-record and
// per-partition faults are never silently dropped.
type Report struct {
	MediumDropped  int
	UnitFaults     []*harmonize.UnitMismatchError
	DailyStats     rollup.DailyStats
	AnnualCount    int
	PairStats      cohort.JoinStats
	DischargeStats cohort.JoinStats
	SiteJoinStats  cohort.JoinStats
	Outcome        fit.Outcome
}

// Run executes the pipeline for the configured model.
func Run(data Data, opts Options) (*Report, error) {
	report := &Report{}

	chemDaily, err := cleanAndRollup(data.Chemistry, opts, report)
	if err != nil {
		return nil, err
	}

	switch opts.Model {
	case ModelTrend:
		err = runTrend(data, opts, chemDaily, report)
	case ModelOLS:
		err = runOLS(data, opts, chemDaily, report)
	default:
		err = fmt.Errorf("unknown model %q", opts.Model)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("analyze: %d result rows, %d failed partitions",
		len(report.Outcome.Results), len(report.Outcome.Failures))
	for _, failure := range report.Outcome.Failures {
		log.Printf("analyze: partition %s failed: %v", failure.Key, failure.Err)
	}
	return report, nil
}

func cleanAndRollup(obs []models.Observation, opts Options, report *Report) ([]models.DailyValue, error) {
	obs, dropped := harmonize.FilterWater(obs)
	report.MediumDropped = dropped
	if dropped > 0 {
		log.Printf("analyze: dropped %d non-water records", dropped)
	}

	if opts.AllowUnitMismatch {
		var faults []*harmonize.UnitMismatchError
		obs, faults = harmonize.ExcludeMismatched(obs)
		report.UnitFaults = faults
		for _, fault := range faults {
			log.Printf("analyze: excluding parameter: %v", fault)
		}
	} else if err := harmonize.RequireSingleUnit(obs); err != nil {
		return nil, fmt.Errorf("filter stage: %w", err)
	}

	daily, dailyStats := rollup.Daily(obs)
	report.DailyStats = dailyStats
	log.Printf("analyze: daily rollup: %d rows in, %d out (%d duplicates collapsed, %d all-missing groups)",
		dailyStats.RowsIn, dailyStats.RowsOut,
		dailyStats.RowsIn-dailyStats.RowsOut-dailyStats.AllMissingGroups, dailyStats.AllMissingGroups)
	return daily, nil
}

func runTrend(data Data, opts Options, chemDaily []models.DailyValue, report *Report) error {
	annual := rollup.Annual(chemDaily, opts.Months)
	report.AnnualCount = len(annual)
	log.Printf("analyze: annual rollup: %d summaries", len(annual))

	rows, joinStats := cohort.AnnualWithSites(annual, data.Sites)
	report.SiteJoinStats = joinStats
	if joinStats.LeftDropped > 0 {
		log.Printf("analyze: %d annual summaries had no site metadata", joinStats.LeftDropped)
	}

	// Trend input must be in time order within each partition.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Year < rows[j].Year })

	keyFn, err := keyFunc(opts.GroupKeys, func(r models.AnnualSiteRow) (string, string) {
		return r.Parameter, r.SiteID
	})
	if err != nil {
		return err
	}
	report.Outcome = fit.Run(rows, keyFn, fit.TrendModel(func(r models.AnnualSiteRow) float64 {
		return r.Mean
	}))
	return nil
}

func runOLS(data Data, opts Options, chemDaily []models.DailyValue, report *Report) error {
	pairs, pairStats := cohort.PairWithSensor(chemDaily, data.Sensor)
	report.PairStats = pairStats
	log.Printf("analyze: paired with sensor: %d matched, %d chem-only, %d sensor-only",
		pairStats.Matched, pairStats.LeftDropped, pairStats.RightDropped)

	withDischarge := len(data.Discharge) > 0
	if withDischarge {
		var dischargeStats cohort.JoinStats
		pairs, dischargeStats = cohort.AttachDischarge(pairs, data.Discharge)
		report.DischargeStats = dischargeStats
		log.Printf("analyze: attached discharge: %d matched, %d dropped",
			dischargeStats.Matched, dischargeStats.LeftDropped)
	}
	if opts.Interaction && !withDischarge {
		return fmt.Errorf("interaction term requires a discharge stream")
	}

	keyFn, err := keyFunc(opts.GroupKeys, func(r models.PairedSample) (string, string) {
		return r.Parameter, r.SiteID
	})
	if err != nil {
		return err
	}
	report.Outcome = fit.Run(pairs, keyFn, olsModel(withDischarge, opts.Interaction))
	return nil
}

func olsModel(withDischarge, interaction bool) fit.ModelFunc[models.PairedSample] {
	return func(rows []models.PairedSample) ([]fit.Coefficient, error) {
		y := make([]float64, len(rows))
		conductance := make([]float64, len(rows))
		for i, row := range rows {
			y[i] = row.Concentration
			conductance[i] = row.Conductance
		}
		predictors := [][]float64{conductance}
		names := []string{"conductance"}
		if withDischarge {
			discharge := make([]float64, len(rows))
			for i, row := range rows {
				discharge[i] = row.Discharge.Float64
			}
			predictors = append(predictors, discharge)
			names = append(names, "discharge")
		}
		return fit.OLS(y, predictors, names, interaction)
	}
}

// keyFunc builds a grouping-key extractor from column names. Rows expose
// their groupable columns through the extract callback.
func keyFunc[R any](names []string, extract func(R) (parameter, site string)) (func(R) fit.Key, error) {
	if len(names) == 0 {
		names = []string{"parameter", "site"}
	}
	for _, name := range names {
		if name != "parameter" && name != "site" {
			return nil, fmt.Errorf("unsupported grouping key %q", name)
		}
	}
	keys := append([]string(nil), names...)
	return func(r R) fit.Key {
		parameter, site := extract(r)
		key := make(fit.Key, len(keys))
		for i, name := range keys {
			switch name {
			case "parameter":
				key[i] = models.KeyValue{Name: name, Value: parameter}
			case "site":
				key[i] = models.KeyValue{Name: name, Value: site}
			}
		}
		return key
	}, nil
}
