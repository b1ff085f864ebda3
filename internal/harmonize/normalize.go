package harmonize

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/riverchem/saltflux/internal/metrics"
	"github.com/riverchem/saltflux/internal/models"
)

// DateFormat is the single accepted layout for upstream date strings.
const DateFormat = "2006-01-02"

// NormalizeStats accounts for every input record: each one either becomes
// an observation or increments exactly one drop counter.
type NormalizeStats struct {
	RecordsIn       int
	Observations    int
	MissingField    int
	UnparseableDate int
}

// Normalize maps raw records of the given source shape onto canonical
// observations. Records missing a required field (site, date, parameter,
// value column) or carrying an unparseable date are excluded and counted,
// never fatal. An empty value cell is kept as a null value so that
// all-missing groups remain visible downstream.
func Normalize(shape SourceShape, records []models.RawRecord) ([]models.Observation, NormalizeStats, error) {
	colmap, ok := columnMaps[shape]
	if !ok {
		return nil, NormalizeStats{}, fmt.Errorf("normalize: unknown source shape %q", shape)
	}

	stats := NormalizeStats{RecordsIn: len(records)}
	shapeHasMedium := false
	for _, field := range colmap {
		if field == fieldMedium {
			shapeHasMedium = true
		}
	}

	var out []models.Observation
	for _, record := range records {
		fields := make(map[string]string, len(colmap))
		for rawCol, field := range colmap {
			if cell, ok := record[rawCol]; ok {
				fields[field] = cell
			}
		}

		siteID := strings.TrimSpace(fields[fieldSiteID])
		dateStr := strings.TrimSpace(fields[fieldDate])
		param := strings.TrimSpace(fields[fieldParameter])
		valueStr, valuePresent := fields[fieldValue]
		valueStr = strings.TrimSpace(valueStr)

		if siteID == "" || dateStr == "" || param == "" || !valuePresent {
			stats.MissingField++
			metrics.RecordsDropped.WithLabelValues("missing_field").Inc()
			continue
		}

		date, err := time.ParseInLocation(DateFormat, dateStr, time.UTC)
		if err != nil {
			stats.UnparseableDate++
			metrics.RecordsDropped.WithLabelValues("unparseable_date").Inc()
			continue
		}

		var value sql.NullFloat64
		if valueStr != "" {
			v, err := strconv.ParseFloat(valueStr, 64)
			if err != nil {
				stats.MissingField++
				metrics.RecordsDropped.WithLabelValues("missing_field").Inc()
				continue
			}
			value = sql.NullFloat64{Float64: v, Valid: true}
		}

		medium := models.MediumWater
		if shapeHasMedium {
			medium = parseMedium(fields[fieldMedium])
		}

		out = append(out, models.Observation{
			SiteID:       siteID,
			Date:         date,
			Parameter:    CanonicalParameter(param),
			Value:        value,
			Unit:         strings.TrimSpace(fields[fieldUnit]),
			Medium:       medium,
			Organization: strings.TrimSpace(fields[fieldOrganization]),
			Method:       strings.TrimSpace(fields[fieldMethod]),
		})
		stats.Observations++
	}

	return out, stats, nil
}

func parseMedium(raw string) models.Medium {
	if strings.EqualFold(strings.TrimSpace(raw), "water") {
		return models.MediumWater
	}
	return models.MediumOther
}

// NormalizeSites deduplicates raw site-inventory records into metadata
// rows. First-seen wins on duplicate site IDs.
func NormalizeSites(records []models.RawRecord) []models.SiteMetadata {
	seen := make(map[string]bool)
	var sites []models.SiteMetadata
	for _, record := range records {
		siteID := strings.TrimSpace(record["MonitoringLocationIdentifier"])
		if siteID == "" {
			siteID = strings.TrimSpace(record["site_no"])
		}
		if siteID == "" || seen[siteID] {
			continue
		}
		seen[siteID] = true

		site := models.SiteMetadata{
			SiteID:   siteID,
			Name:     strings.TrimSpace(firstOf(record, "MonitoringLocationName", "station_nm")),
			AreaUnit: strings.TrimSpace(firstOf(record, "DrainageAreaMeasure/MeasureUnitCode", "drain_area_unit")),
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(firstOf(record, "DrainageAreaMeasure/MeasureValue", "drain_area_va")), 64); err == nil {
			site.DrainageArea = sql.NullFloat64{Float64: v, Valid: true}
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(firstOf(record, "LatitudeMeasure", "dec_lat_va")), 64); err == nil {
			site.Latitude = v
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(firstOf(record, "LongitudeMeasure", "dec_long_va")), 64); err == nil {
			site.Longitude = v
		}
		sites = append(sites, site)
	}
	return sites
}

func firstOf(record models.RawRecord, cols ...string) string {
	for _, col := range cols {
		if v, ok := record[col]; ok && v != "" {
			return v
		}
	}
	return ""
}
