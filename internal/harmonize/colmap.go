package harmonize

import "sort"

// SourceShape identifies which upstream record layout a raw record uses.
type SourceShape string

const (
	// ShapePortalResult is the broad multi-site result-search layout: one
	// row per analytical result with dozens of metadata columns.
	ShapePortalResult SourceShape = "portal_result"

	// ShapeDailyValue is the single-site daily-value layout produced by
	// the continuous-sensor endpoint.
	ShapeDailyValue SourceShape = "daily_value"
)

// Canonical field names targeted by the column maps.
const (
	fieldSiteID       = "site_id"
	fieldDate         = "date"
	fieldParameter    = "parameter"
	fieldValue        = "value"
	fieldUnit         = "unit"
	fieldMedium       = "medium"
	fieldOrganization = "organization"
	fieldMethod       = "method"
)

// columnMaps declares, per source shape, which raw columns feed which
// canonical fields. Raw columns not listed here are dropped without error.
var columnMaps = map[SourceShape]map[string]string{
	ShapePortalResult: {
		"MonitoringLocationIdentifier":      fieldSiteID,
		"ActivityStartDate":                 fieldDate,
		"CharacteristicName":                fieldParameter,
		"ResultMeasureValue":                fieldValue,
		"ResultMeasure/MeasureUnitCode":     fieldUnit,
		"ActivityMediaName":                 fieldMedium,
		"OrganizationIdentifier":            fieldOrganization,
		"ResultAnalyticalMethod/MethodName": fieldMethod,
	},
	ShapeDailyValue: {
		"site_no":     fieldSiteID,
		"dateTime":    fieldDate,
		"variable_nm": fieldParameter,
		"value":       fieldValue,
		"unit_cd":     fieldUnit,
		// No medium column: the daily-value endpoint serves water sensor
		// series only, so normalization assumes MediumWater.
	},
}

// parameterAliases maps upstream characteristic-name variants onto the
// canonical constituent names. Matching is exact after whitespace trim.
var parameterAliases = map[string]string{
	"Calcium":                          "Calcium",
	"Magnesium":                        "Magnesium",
	"Sodium":                           "Sodium",
	"Chloride":                         "Chloride",
	"Sulfate":                          "Sulfate",
	"Sulfate as SO4":                   "Sulfate",
	"Bicarbonate":                      "Bicarbonate",
	"Alkalinity, bicarbonate":          "Bicarbonate",
	"Specific conductance":             "Specific conductance",
	"Specific conductivity":            "Specific conductance",
	"Specific cond at 25C":             "Specific conductance",
	"Discharge":                        "Discharge",
	"Stream flow, mean. daily":         "Discharge",
	"Discharge, cubic feet per second": "Discharge",
}

// CanonicalParameter resolves an upstream characteristic name to its
// canonical constituent name. Unknown names pass through unchanged so new
// constituents can flow end to end without a code change.
func CanonicalParameter(raw string) string {
	if canonical, ok := parameterAliases[raw]; ok {
		return canonical
	}
	return raw
}

// ParameterVariants returns every upstream name that maps to the given
// canonical constituent, for building retrieval queries.
func ParameterVariants(canonical string) []string {
	var variants []string
	for raw, c := range parameterAliases {
		if c == canonical {
			variants = append(variants, raw)
		}
	}
	sort.Strings(variants)
	return variants
}
