package cohort

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/riverchem/saltflux/internal/models"
)

func dv(siteID string, date time.Time, param string, value float64) models.DailyValue {
	return models.DailyValue{SiteID: siteID, Date: date, Parameter: param, Value: value, SampleCount: 1}
}

func TestPairWithSensorIntersection(t *testing.T) {
	d1 := models.Date(2020, time.January, 1)
	d2 := models.Date(2020, time.January, 2)
	d3 := models.Date(2020, time.January, 3)

	chem := []models.DailyValue{
		dv("S1", d1, models.ParamChloride, 12),
		dv("S1", d2, models.ParamChloride, 14),
	}
	sensor := []models.DailyValue{
		dv("S1", d1, models.ParamConductance, 400),
		dv("S2", d3, models.ParamConductance, 500),
	}

	pairs, stats := PairWithSensor(chem, sensor)

	want := []models.PairedSample{
		{SiteID: "S1", Date: d1, Parameter: models.ParamChloride, Concentration: 12, Conductance: 400},
	}
	if diff := cmp.Diff(want, pairs); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
	if stats.Matched != 1 || stats.LeftDropped != 1 || stats.RightDropped != 1 {
		t.Errorf("stats = %+v, want 1/1/1", stats)
	}
}

func TestPairWithSelfReproducesKeys(t *testing.T) {
	table := []models.DailyValue{
		dv("S1", models.Date(2020, time.January, 1), models.ParamCalcium, 1),
		dv("S1", models.Date(2020, time.January, 2), models.ParamCalcium, 2),
		dv("S2", models.Date(2020, time.January, 1), models.ParamCalcium, 3),
	}

	pairs, stats := PairWithSensor(table, table)
	if len(pairs) != len(table) {
		t.Fatalf("self-join row count = %d, want %d", len(pairs), len(table))
	}
	if stats.LeftDropped != 0 || stats.RightDropped != 0 {
		t.Errorf("self-join dropped rows: %+v", stats)
	}
	for i, p := range pairs {
		if p.SiteID != table[i].SiteID || !p.Date.Equal(table[i].Date) {
			t.Errorf("pair %d key = %s/%v, want %s/%v", i, p.SiteID, p.Date, table[i].SiteID, table[i].Date)
		}
		if p.Concentration != p.Conductance {
			t.Errorf("pair %d: self-join values differ: %v vs %v", i, p.Concentration, p.Conductance)
		}
	}
}

func TestAttachDischarge(t *testing.T) {
	d1 := models.Date(2020, time.June, 1)
	d2 := models.Date(2020, time.June, 2)

	pairs := []models.PairedSample{
		{SiteID: "S1", Date: d1, Parameter: models.ParamChloride, Concentration: 10, Conductance: 300},
		{SiteID: "S1", Date: d2, Parameter: models.ParamChloride, Concentration: 11, Conductance: 310},
	}
	discharge := []models.DailyValue{
		dv("S1", d1, models.ParamDischarge, 55),
	}

	joined, stats := AttachDischarge(pairs, discharge)
	if len(joined) != 1 {
		t.Fatalf("len(joined) = %d, want 1", len(joined))
	}
	if got := joined[0].Discharge; !got.Valid || got.Float64 != 55 {
		t.Errorf("Discharge = %+v, want 55", got)
	}
	if stats.Matched != 1 || stats.LeftDropped != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// The input pairs must not have been mutated.
	if pairs[0].Discharge.Valid {
		t.Error("AttachDischarge mutated its input")
	}
}

func TestAnnualWithSites(t *testing.T) {
	annual := []models.AnnualSummary{
		{SiteID: "S1", Year: 2019, Parameter: models.ParamCalcium, Mean: 10, Count: 3},
		{SiteID: "S1", Year: 2020, Parameter: models.ParamCalcium, Mean: 12, Count: 4},
		{SiteID: "S9", Year: 2020, Parameter: models.ParamCalcium, Mean: 99, Count: 2},
	}
	sites := []models.SiteMetadata{
		{
			SiteID:       "S1",
			Name:         "Schoharie Creek",
			DrainageArea: sql.NullFloat64{Float64: 237, Valid: true},
			Latitude:     42.39,
			Longitude:    -74.44,
		},
	}

	rows, stats := AnnualWithSites(annual, sites)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2 (many-to-one, year ignored)", len(rows))
	}
	for _, row := range rows {
		if row.SiteName != "Schoharie Creek" {
			t.Errorf("SiteName = %q", row.SiteName)
		}
		if !row.DrainageArea.Valid || row.DrainageArea.Float64 != 237 {
			t.Errorf("DrainageArea = %+v", row.DrainageArea)
		}
	}
	if stats.Matched != 2 || stats.LeftDropped != 1 {
		t.Errorf("stats = %+v, want 2 matched / 1 dropped", stats)
	}
}
