package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/riverchem/saltflux/internal/analyze"
	"github.com/riverchem/saltflux/internal/harmonize"
	"github.com/riverchem/saltflux/internal/models"
	"github.com/riverchem/saltflux/internal/rollup"
	"github.com/riverchem/saltflux/internal/store"
	"github.com/riverchem/saltflux/internal/waterdata"
)

// Sensor parameter codes for the daily-values service.
const (
	codeConductance = "00095"
	codeDischarge   = "00060"
)

var cli struct {
	DB         string   `help:"Path to the SQLite cache database." default:"data/saltflux.db" env:"SALTFLUX_DB"`
	Sites      []string `help:"Monitoring site identifiers." env:"SALTFLUX_SITES" required:""`
	Parameters []string `help:"Canonical constituent names to retrieve." default:"Calcium,Magnesium,Sodium,Chloride,Sulfate"`
	Start      string   `help:"Window start date (2006-01-02 layout)." required:""`
	End        string   `help:"Window end date (2006-01-02 layout)." required:""`

	Months      []int    `help:"Months included in the annual rollup (default: all twelve)."`
	GroupBy     []string `help:"Partition grouping keys." default:"parameter,site"`
	Model       string   `help:"Partition model." enum:"trend,ols" default:"trend"`
	Interaction bool     `help:"Add the conductance:discharge interaction term (ols only)."`

	WithDischarge     bool `help:"Fetch and join the discharge stream."`
	AllowUnitMismatch bool `help:"Exclude mixed-unit parameters instead of failing the run."`
	UseCache          bool `help:"Analyze previously cached data without refetching."`

	SiteMirrorHost string `help:"Agency FTP mirror host for bulk site inventory (host:port)." env:"SALTFLUX_SITE_MIRROR_HOST"`
	SiteMirrorPath string `help:"Site inventory file path on the FTP mirror." env:"SALTFLUX_SITE_MIRROR_PATH"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("saltflux"),
		kong.Description("Water-quality salinity and ion chemistry trend analysis."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	start, err := time.ParseInLocation(harmonize.DateFormat, cli.Start, time.UTC)
	if err != nil {
		log.Fatalf("parse --start: %v", err)
	}
	end, err := time.ParseInLocation(harmonize.DateFormat, cli.End, time.UTC)
	if err != nil {
		log.Fatalf("parse --end: %v", err)
	}

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if !cli.UseCache {
		if err := fetchAll(st, start, end); err != nil {
			// Retrieval is return-or-fail: no partial results, no rerun
			// loop beyond the per-call retry budget.
			log.Fatalf("fetch: %v", err)
		}
	}

	data, err := loadData(st)
	if err != nil {
		log.Fatalf("load cache: %v", err)
	}

	months := rollup.MonthFilter(nil)
	if len(cli.Months) > 0 {
		ms := make([]time.Month, len(cli.Months))
		for i, m := range cli.Months {
			ms[i] = time.Month(m)
		}
		months = rollup.Months(ms...)
	}

	report, err := analyze.Run(data, analyze.Options{
		Model:             cli.Model,
		GroupKeys:         cli.GroupBy,
		Months:            months,
		AllowUnitMismatch: cli.AllowUnitMismatch,
		Interaction:       cli.Interaction,
	})
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}

	printResults(report)

	if err := st.InsertModelResults(time.Now().UTC(), report.Outcome.Results); err != nil {
		log.Fatalf("store results: %v", err)
	}
}

func fetchAll(st *store.Store, start, end time.Time) error {
	portal := waterdata.NewPortalClient()

	records, err := portal.FetchResults(waterdata.ResultQuery{
		SiteIDs:    cli.Sites,
		Parameters: cli.Parameters,
		Start:      start,
		End:        end,
		Medium:     "Water",
	})
	if err != nil {
		return fmt.Errorf("result search: %w", err)
	}
	obs, stats, err := harmonize.Normalize(harmonize.ShapePortalResult, records)
	if err != nil {
		return err
	}
	log.Printf("fetch: chemistry: %d records, %d observations, %d missing field, %d bad date",
		stats.RecordsIn, stats.Observations, stats.MissingField, stats.UnparseableDate)
	if err := st.ReplaceObservations(obs); err != nil {
		return fmt.Errorf("cache observations: %w", err)
	}

	if err := fetchSites(st, portal); err != nil {
		return err
	}

	dv := waterdata.NewDailyValuesClient()
	if err := fetchSensor(st, dv, codeConductance, models.ParamConductance, start, end); err != nil {
		return err
	}
	if cli.WithDischarge {
		if err := fetchSensor(st, dv, codeDischarge, models.ParamDischarge, start, end); err != nil {
			return err
		}
	}
	return nil
}

func fetchSites(st *store.Store, portal *waterdata.PortalClient) error {
	var records []models.RawRecord
	var err error
	if cli.SiteMirrorHost != "" {
		mirror := waterdata.NewSiteMirror(cli.SiteMirrorHost, cli.SiteMirrorPath)
		records, err = mirror.FetchSiteInventory()
	} else {
		records, err = portal.FetchSites(cli.Sites)
	}
	if err != nil {
		return fmt.Errorf("site inventory: %w", err)
	}

	sites := harmonize.NormalizeSites(records)
	for _, site := range sites {
		if err := st.UpsertSite(site); err != nil {
			return fmt.Errorf("cache site %s: %w", site.SiteID, err)
		}
	}
	log.Printf("fetch: %d sites", len(sites))
	return nil
}

func fetchSensor(st *store.Store, dv *waterdata.DailyValuesClient, code, canonical string, start, end time.Time) error {
	total := 0
	for _, siteID := range cli.Sites {
		records, err := dv.FetchDailySeries(siteID, code, start, end)
		if err != nil {
			return fmt.Errorf("daily series %s/%s: %w", siteID, code, err)
		}
		obs, _, err := harmonize.Normalize(harmonize.ShapeDailyValue, records)
		if err != nil {
			return err
		}
		daily, _ := rollup.Daily(obs)
		for _, value := range daily {
			value.Parameter = canonical
			unit := ""
			if len(obs) > 0 {
				unit = obs[0].Unit
			}
			if err := st.UpsertSensorValue(value, unit); err != nil {
				return fmt.Errorf("cache sensor value: %w", err)
			}
		}
		total += len(daily)
	}
	log.Printf("fetch: %s: %d daily values", canonical, total)
	return nil
}

func loadData(st *store.Store) (analyze.Data, error) {
	var data analyze.Data
	var err error

	if data.Chemistry, err = st.GetObservations(); err != nil {
		return data, fmt.Errorf("observations: %w", err)
	}
	if data.Sensor, err = st.GetSensorValues(models.ParamConductance); err != nil {
		return data, fmt.Errorf("sensor values: %w", err)
	}
	if data.Discharge, err = st.GetSensorValues(models.ParamDischarge); err != nil {
		return data, fmt.Errorf("discharge values: %w", err)
	}
	if data.Sites, err = st.GetSites(); err != nil {
		return data, fmt.Errorf("sites: %w", err)
	}
	return data, nil
}

func printResults(report *analyze.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARTITION\tTERM\tESTIMATE\tSTD ERROR\tSTATISTIC\tP VALUE")
	for _, r := range report.Outcome.Results {
		key := ""
		for i, kv := range r.Keys {
			if i > 0 {
				key += " "
			}
			key += kv.Name + "=" + kv.Value
		}
		fmt.Fprintf(w, "%s\t%s\t%.4g\t%s\t%s\t%s\n",
			key, r.Term, r.Estimate,
			nullStr(r.StdError), nullStr(r.Statistic), nullStr(r.PValue))
	}
	w.Flush()
}

func nullStr(v sql.NullFloat64) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%.4g", v.Float64)
}
