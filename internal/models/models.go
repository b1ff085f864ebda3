package models

import (
	"database/sql"
	"time"
)

type Medium string

const (
	MediumWater Medium = "water"
	MediumOther Medium = "other"
)

// Canonical constituent names used throughout the pipeline. Upstream
// characteristic-name variants are mapped onto these at normalization time.
const (
	ParamCalcium     = "Calcium"
	ParamMagnesium   = "Magnesium"
	ParamSodium      = "Sodium"
	ParamChloride    = "Chloride"
	ParamSulfate     = "Sulfate"
	ParamBicarbonate = "Bicarbonate"
	ParamConductance = "Specific conductance"
	ParamDischarge   = "Discharge"
)

// RawRecord is one upstream tabular record before normalization: raw
// column name to string cell value, as decoded straight off the wire.
type RawRecord map[string]string

// Observation is one measured value of a constituent at a site and date.
// Value is null when the upstream record carried an empty result, so that
// all-missing groups stay visible to the aggregator.
type Observation struct {
	SiteID       string
	Date         time.Time // UTC midnight, no time-of-day
	Parameter    string
	Value        sql.NullFloat64
	Unit         string
	Medium       Medium
	Organization string
	Method       string
}

type SiteMetadata struct {
	SiteID       string
	Name         string
	DrainageArea sql.NullFloat64
	AreaUnit     string
	Latitude     float64
	Longitude    float64
}

// DailyValue is one (site, date, parameter) row after the daily rollup.
// SampleCount records how many raw observations collapsed into it.
type DailyValue struct {
	SiteID      string
	Date        time.Time
	Parameter   string
	Value       float64
	SampleCount int
}

// AnnualSummary is one (site, year, parameter) row. Variance is sample
// variance (n-1 denominator) and is null when fewer than 2 daily values
// contributed.
type AnnualSummary struct {
	SiteID    string
	Year      int
	Parameter string
	Mean      float64
	Variance  sql.NullFloat64
	Count     int
}

// PairedSample is the inner join of a chemistry daily series with a sensor
// daily series on (site, date). Discharge is set once the optional third
// stream has been attached.
type PairedSample struct {
	SiteID        string
	Date          time.Time
	Parameter     string
	Concentration float64
	Conductance   float64
	Discharge     sql.NullFloat64
}

// AnnualSiteRow is an annual summary carrying its site's static metadata,
// produced by the many-to-one join on site ID.
type AnnualSiteRow struct {
	AnnualSummary
	SiteName     string
	DrainageArea sql.NullFloat64
	Latitude     float64
	Longitude    float64
}

// KeyValue is one component of a partition key, in grouping order.
type KeyValue struct {
	Name  string
	Value string
}

// ModelResult is one coefficient or statistic from one partition's fitted
// model, tagged with that partition's key values. Created once, never
// mutated.
type ModelResult struct {
	Keys      []KeyValue
	Term      string
	Estimate  float64
	StdError  sql.NullFloat64
	Statistic sql.NullFloat64
	PValue    sql.NullFloat64
}

// Date returns a UTC calendar date with no time-of-day component.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
