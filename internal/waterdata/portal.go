package waterdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/riverchem/saltflux/internal/harmonize"
	"github.com/riverchem/saltflux/internal/httputil"
	"github.com/riverchem/saltflux/internal/metrics"
	"github.com/riverchem/saltflux/internal/models"
)

const defaultPortalBaseURL = "https://www.waterqualitydata.us"

// PortalClient retrieves raw result and site records from the public
// water-quality portal. Responses are tabular CSV; rows come back as raw
// records in the ShapePortalResult layout for the normalizer.
type PortalClient struct {
	baseURL string
	client  *http.Client
}

func NewPortalClient() *PortalClient {
	return &PortalClient{
		baseURL: defaultPortalBaseURL,
		client:  httputil.NewClient(),
	}
}

// NewPortalClientWithBase is used by tests to point at a stub server.
func NewPortalClientWithBase(baseURL string) *PortalClient {
	return &PortalClient{baseURL: baseURL, client: httputil.NewClient()}
}

// ResultQuery describes one result-search retrieval: which sites, which
// canonical constituents (expanded to their upstream name variants), the
// date window, and the sampled medium.
type ResultQuery struct {
	SiteIDs    []string
	Parameters []string
	Start, End time.Time
	Medium     string
}

// FetchResults performs a result search. Retrieval is synchronous and
// return-or-fail: an exhausted retry budget aborts the run for this
// source.
func (c *PortalClient) FetchResults(q ResultQuery) ([]models.RawRecord, error) {
	params := url.Values{}
	for _, siteID := range q.SiteIDs {
		params.Add("siteid", siteID)
	}
	for _, canonical := range q.Parameters {
		variants := harmonize.ParameterVariants(canonical)
		if len(variants) == 0 {
			variants = []string{canonical}
		}
		for _, v := range variants {
			params.Add("characteristicName", v)
		}
	}
	if !q.Start.IsZero() {
		params.Set("startDateLo", q.Start.Format("01-02-2006"))
	}
	if !q.End.IsZero() {
		params.Set("startDateHi", q.End.Format("01-02-2006"))
	}
	if q.Medium != "" {
		params.Set("sampleMedia", q.Medium)
	}
	params.Set("mimeType", "csv")

	return c.fetchCSV("Result/search", params)
}

// FetchSites retrieves site metadata records for the given identifiers.
func (c *PortalClient) FetchSites(siteIDs []string) ([]models.RawRecord, error) {
	params := url.Values{}
	for _, siteID := range siteIDs {
		params.Add("siteid", siteID)
	}
	params.Set("mimeType", "csv")

	return c.fetchCSV("Station/search", params)
}

func (c *PortalClient) fetchCSV(endpoint string, params url.Values) ([]models.RawRecord, error) {
	reqURL := fmt.Sprintf("%s/data/%s?%s", c.baseURL, endpoint, params.Encode())

	var body []byte
	operation := func() error {
		start := time.Now()
		resp, err := c.client.Get(reqURL)
		metrics.PortalAPILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PortalAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", endpoint, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			metrics.PortalAPICallsTotal.WithLabelValues(endpoint, "throttled").Inc()
			return fmt.Errorf("throttled: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			metrics.PortalAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			metrics.PortalAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		metrics.PortalAPICallsTotal.WithLabelValues(endpoint, "ok").Inc()
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}

	return decodeCSV(strings.NewReader(string(body)))
}

// decodeCSV turns a header-plus-rows CSV payload into raw records. Rows
// shorter than the header are padded with empty cells rather than
// rejected; the normalizer decides what is required.
func decodeCSV(r io.Reader) ([]models.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var records []models.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		record := make(models.RawRecord, len(header))
		for i, col := range header {
			if i < len(row) {
				record[col] = row[i]
			} else {
				record[col] = ""
			}
		}
		records = append(records, record)
	}
	return records, nil
}
