package waterdata

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/riverchem/saltflux/internal/models"
)

func TestFetchResults(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("MonitoringLocationIdentifier,ActivityStartDate,CharacteristicName,ResultMeasureValue\n" +
			"USGS-01350000,2020-06-15,Calcium,12.5\n" +
			"USGS-01350000,2020-06-16,Calcium,\n"))
	}))
	defer server.Close()

	client := NewPortalClientWithBase(server.URL)
	records, err := client.FetchResults(ResultQuery{
		SiteIDs:    []string{"USGS-01350000"},
		Parameters: []string{models.ParamConductance},
		Start:      models.Date(2015, time.January, 1),
		End:        models.Date(2020, time.December, 31),
		Medium:     "Water",
	})
	if err != nil {
		t.Fatalf("FetchResults: %v", err)
	}

	if gotPath != "/data/Result/search" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery.Get("mimeType") != "csv" {
		t.Errorf("mimeType = %q", gotQuery.Get("mimeType"))
	}
	if gotQuery.Get("startDateLo") != "01-01-2015" || gotQuery.Get("startDateHi") != "12-31-2020" {
		t.Errorf("date window = %q..%q", gotQuery.Get("startDateLo"), gotQuery.Get("startDateHi"))
	}
	if gotQuery.Get("sampleMedia") != "Water" {
		t.Errorf("sampleMedia = %q", gotQuery.Get("sampleMedia"))
	}
	// Canonical conductance expands to its upstream name variants.
	names := gotQuery["characteristicName"]
	if len(names) < 2 {
		t.Errorf("characteristicName = %v, want the upstream variants", names)
	}

	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0]["ResultMeasureValue"] != "12.5" {
		t.Errorf("record 0 value = %q", records[0]["ResultMeasureValue"])
	}
	if v, ok := records[1]["ResultMeasureValue"]; !ok || v != "" {
		t.Errorf("record 1 value = %q (present=%v), want empty cell kept", v, ok)
	}
}

func TestFetchResultsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such site", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewPortalClientWithBase(server.URL)
	_, err := client.FetchResults(ResultQuery{SiteIDs: []string{"bogus"}})
	if err == nil {
		t.Fatal("expected error for status 400")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("err = %v, want status in message", err)
	}
}

func TestFetchSites(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/Station/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte("MonitoringLocationIdentifier,MonitoringLocationName\nUSGS-01350000,Schoharie Creek\n"))
	}))
	defer server.Close()

	records, err := NewPortalClientWithBase(server.URL).FetchSites([]string{"USGS-01350000"})
	if err != nil {
		t.Fatalf("FetchSites: %v", err)
	}
	if len(records) != 1 || records[0]["MonitoringLocationName"] != "Schoharie Creek" {
		t.Errorf("records = %+v", records)
	}
}

func TestDecodeCSVShortRows(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5\n"
	records, err := decodeCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("decodeCSV: %v", err)
	}
	want := []models.RawRecord{
		{"a": "1", "b": "2", "c": "3"},
		{"a": "4", "b": "5", "c": ""},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCSVEmpty(t *testing.T) {
	records, err := decodeCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("decodeCSV: %v", err)
	}
	if records != nil {
		t.Errorf("records = %+v, want nil", records)
	}
}

const dailySeriesFixture = `{
  "value": {
    "timeSeries": [
      {
        "sourceInfo": {
          "siteCode": [{"value": "01350000"}]
        },
        "variable": {
          "variableName": "Specific conductance",
          "unit": {"unitCode": "uS/cm"},
          "noDataValue": -999999
        },
        "values": [
          {
            "value": [
              {"value": "412", "dateTime": "2020-06-15T00:00:00.000"},
              {"value": "-999999", "dateTime": "2020-06-16T00:00:00.000"},
              {"value": "398", "dateTime": "2020-06-17T00:00:00.000"}
            ]
          }
        ]
      }
    ]
  }
}`

func TestDecodeDailySeries(t *testing.T) {
	records, err := DecodeDailySeries([]byte(dailySeriesFixture))
	if err != nil {
		t.Fatalf("DecodeDailySeries: %v", err)
	}
	want := []models.RawRecord{
		{"site_no": "01350000", "dateTime": "2020-06-15", "variable_nm": "Specific conductance", "value": "412", "unit_cd": "uS/cm"},
		{"site_no": "01350000", "dateTime": "2020-06-16", "variable_nm": "Specific conductance", "value": "", "unit_cd": "uS/cm"},
		{"site_no": "01350000", "dateTime": "2020-06-17", "variable_nm": "Specific conductance", "value": "398", "unit_cd": "uS/cm"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDailySeriesNoSeries(t *testing.T) {
	if _, err := DecodeDailySeries([]byte(`{"value": {}}`)); err == nil {
		t.Fatal("expected error for missing timeSeries")
	}
}

func TestFetchDailySeries(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(dailySeriesFixture))
	}))
	defer server.Close()

	client := NewDailyValuesClientWithBase(server.URL)
	records, err := client.FetchDailySeries("01350000", "00095",
		models.Date(2020, time.June, 15), models.Date(2020, time.June, 17))
	if err != nil {
		t.Fatalf("FetchDailySeries: %v", err)
	}
	if gotQuery.Get("sites") != "01350000" || gotQuery.Get("parameterCd") != "00095" {
		t.Errorf("query = %v", gotQuery)
	}
	if gotQuery.Get("startDT") != "2020-06-15" || gotQuery.Get("endDT") != "2020-06-17" {
		t.Errorf("date window = %q..%q", gotQuery.Get("startDT"), gotQuery.Get("endDT"))
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
}

const rdbFixture = "# US Geological Survey\n" +
	"# retrieved 2021-03-01\n" +
	"#\n" +
	"site_no\tstation_nm\tdec_lat_va\tdec_long_va\tdrain_area_va\n" +
	"15s\t50s\t16s\t16s\t8s\n" +
	"01350000\tSchoharie Creek\t42.39\t-74.44\t237\n" +
	"01362500\tEsopus Creek\t42.12\t-74.25\n"

func TestParseRDB(t *testing.T) {
	records, err := ParseRDB(strings.NewReader(rdbFixture))
	if err != nil {
		t.Fatalf("ParseRDB: %v", err)
	}
	want := []models.RawRecord{
		{"site_no": "01350000", "station_nm": "Schoharie Creek", "dec_lat_va": "42.39", "dec_long_va": "-74.44", "drain_area_va": "237"},
		{"site_no": "01362500", "station_nm": "Esopus Creek", "dec_lat_va": "42.12", "dec_long_va": "-74.25", "drain_area_va": ""},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRDBNoHeader(t *testing.T) {
	if _, err := ParseRDB(strings.NewReader("# only comments\n")); err == nil {
		t.Fatal("expected error for header-less stream")
	}
}
