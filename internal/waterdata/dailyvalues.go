package waterdata

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/riverchem/saltflux/internal/httputil"
	"github.com/riverchem/saltflux/internal/metrics"
	"github.com/riverchem/saltflux/internal/models"
)

const defaultDailyValuesBaseURL = "https://waterservices.usgs.gov/nwis/dv"

// DailyValuesClient retrieves per-site daily sensor series (the
// single-site daily-value source shape) from the continuous-record
// service. The JSON is deeply nested, so fields are picked out with
// gjson paths rather than a full struct mapping.
type DailyValuesClient struct {
	baseURL string
	client  *http.Client
}

func NewDailyValuesClient() *DailyValuesClient {
	return &DailyValuesClient{
		baseURL: defaultDailyValuesBaseURL,
		client:  httputil.NewClient(),
	}
}

// NewDailyValuesClientWithBase is used by tests to point at a stub server.
func NewDailyValuesClientWithBase(baseURL string) *DailyValuesClient {
	return &DailyValuesClient{baseURL: baseURL, client: httputil.NewClient()}
}

// FetchDailySeries retrieves one site's daily values for one parameter
// code over the window, as raw records in the ShapeDailyValue layout.
func (c *DailyValuesClient) FetchDailySeries(siteID, parameterCode string, start, end time.Time) ([]models.RawRecord, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("sites", siteID)
	params.Set("parameterCd", parameterCode)
	if !start.IsZero() {
		params.Set("startDT", start.Format("2006-01-02"))
	}
	if !end.IsZero() {
		params.Set("endDT", end.Format("2006-01-02"))
	}
	reqURL := fmt.Sprintf("%s/?%s", c.baseURL, params.Encode())

	var body []byte
	operation := func() error {
		startAt := time.Now()
		resp, err := c.client.Get(reqURL)
		metrics.PortalAPILatency.WithLabelValues("dv").Observe(time.Since(startAt).Seconds())
		if err != nil {
			metrics.PortalAPICallsTotal.WithLabelValues("dv", "error").Inc()
			return backoff.Permanent(fmt.Errorf("fetch daily values: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			metrics.PortalAPICallsTotal.WithLabelValues("dv", "throttled").Inc()
			return fmt.Errorf("throttled: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			metrics.PortalAPICallsTotal.WithLabelValues("dv", "error").Inc()
			return backoff.Permanent(fmt.Errorf("fetch daily values: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			metrics.PortalAPICallsTotal.WithLabelValues("dv", "error").Inc()
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		metrics.PortalAPICallsTotal.WithLabelValues("dv", "ok").Inc()
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}

	return DecodeDailySeries(body)
}

// DecodeDailySeries flattens a daily-values JSON document into raw
// records. Sentinel no-data values become empty cells so the normalizer
// keeps them as null observations.
func DecodeDailySeries(body []byte) ([]models.RawRecord, error) {
	doc := gjson.ParseBytes(body)
	seriesList := doc.Get("value.timeSeries")
	if !seriesList.Exists() {
		return nil, fmt.Errorf("daily values: no timeSeries in response")
	}

	var records []models.RawRecord
	seriesList.ForEach(func(_, series gjson.Result) bool {
		siteNo := series.Get("sourceInfo.siteCode.0.value").String()
		variable := series.Get("variable.variableName").String()
		unit := series.Get("variable.unit.unitCode").String()
		noData := series.Get("variable.noDataValue")

		series.Get("values.0.value").ForEach(func(_, point gjson.Result) bool {
			value := point.Get("value").String()
			if noData.Exists() && value == noData.String() {
				value = ""
			}
			dateTime := point.Get("dateTime").String()
			if len(dateTime) > 10 {
				dateTime = dateTime[:10]
			}
			records = append(records, models.RawRecord{
				"site_no":     siteNo,
				"dateTime":    dateTime,
				"variable_nm": variable,
				"value":       value,
				"unit_cd":     unit,
			})
			return true
		})
		return true
	})
	return records, nil
}
