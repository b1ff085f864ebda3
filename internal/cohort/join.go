package cohort

import (
	"time"

	"github.com/riverchem/saltflux/internal/metrics"
	"github.com/riverchem/saltflux/internal/models"
)

// JoinStats reports what an inner join kept and dropped. Dropped counts
// are per input row, so sparse overlap between a chemistry series and a
// sensor series is directly diagnosable from logs.
type JoinStats struct {
	Matched      int
	LeftDropped  int
	RightDropped int
}

type siteDate struct {
	siteID string
	date   time.Time
}

// PairWithSensor inner-joins a chemistry daily series against a sensor
// daily series on exact (site, date) equality. Only keys present on both
// sides survive. The sensor series is expected to hold one parameter
// (e.g. specific conductance); duplicate sensor keys keep the first row.
func PairWithSensor(chem, sensor []models.DailyValue) ([]models.PairedSample, JoinStats) {
	sensorByKey := make(map[siteDate]models.DailyValue, len(sensor))
	for _, sv := range sensor {
		key := siteDate{siteID: sv.SiteID, date: sv.Date}
		if _, ok := sensorByKey[key]; !ok {
			sensorByKey[key] = sv
		}
	}

	matchedSensor := make(map[siteDate]bool)
	var st JoinStats
	out := make([]models.PairedSample, 0, len(chem))
	for _, cv := range chem {
		key := siteDate{siteID: cv.SiteID, date: cv.Date}
		sv, ok := sensorByKey[key]
		if !ok {
			st.LeftDropped++
			continue
		}
		matchedSensor[key] = true
		out = append(out, models.PairedSample{
			SiteID:        cv.SiteID,
			Date:          cv.Date,
			Parameter:     cv.Parameter,
			Concentration: cv.Value,
			Conductance:   sv.Value,
		})
	}
	st.Matched = len(out)
	st.RightDropped = len(sensorByKey) - len(matchedSensor)

	metrics.JoinRowsDropped.WithLabelValues("left").Add(float64(st.LeftDropped))
	metrics.JoinRowsDropped.WithLabelValues("right").Add(float64(st.RightDropped))
	return out, st
}

// AttachDischarge extends paired samples with a third stream by a further
// inner join on (site, date). Pairs without a discharge row are dropped.
func AttachDischarge(pairs []models.PairedSample, discharge []models.DailyValue) ([]models.PairedSample, JoinStats) {
	dischargeByKey := make(map[siteDate]models.DailyValue, len(discharge))
	for _, dv := range discharge {
		key := siteDate{siteID: dv.SiteID, date: dv.Date}
		if _, ok := dischargeByKey[key]; !ok {
			dischargeByKey[key] = dv
		}
	}

	matched := make(map[siteDate]bool)
	var st JoinStats
	out := make([]models.PairedSample, 0, len(pairs))
	for _, p := range pairs {
		key := siteDate{siteID: p.SiteID, date: p.Date}
		dv, ok := dischargeByKey[key]
		if !ok {
			st.LeftDropped++
			continue
		}
		matched[key] = true
		joined := p
		joined.Discharge.Float64 = dv.Value
		joined.Discharge.Valid = true
		out = append(out, joined)
	}
	st.Matched = len(out)
	st.RightDropped = len(dischargeByKey) - len(matched)

	metrics.JoinRowsDropped.WithLabelValues("left").Add(float64(st.LeftDropped))
	metrics.JoinRowsDropped.WithLabelValues("right").Add(float64(st.RightDropped))
	return out, st
}

// AnnualWithSites attaches static site metadata to annual summaries: a
// many-to-one join on site ID alone, year ignored on the metadata side.
// Summaries for unknown sites are dropped and counted.
func AnnualWithSites(annual []models.AnnualSummary, sites []models.SiteMetadata) ([]models.AnnualSiteRow, JoinStats) {
	siteByID := make(map[string]models.SiteMetadata, len(sites))
	for _, site := range sites {
		if _, ok := siteByID[site.SiteID]; !ok {
			siteByID[site.SiteID] = site
		}
	}

	var st JoinStats
	out := make([]models.AnnualSiteRow, 0, len(annual))
	for _, summary := range annual {
		site, ok := siteByID[summary.SiteID]
		if !ok {
			st.LeftDropped++
			continue
		}
		out = append(out, models.AnnualSiteRow{
			AnnualSummary: summary,
			SiteName:      site.Name,
			DrainageArea:  site.DrainageArea,
			Latitude:      site.Latitude,
			Longitude:     site.Longitude,
		})
	}
	st.Matched = len(out)

	metrics.JoinRowsDropped.WithLabelValues("left").Add(float64(st.LeftDropped))
	return out, st
}
