package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/riverchem/saltflux/internal/models"
)

// Store caches fetched raw data and fitted results in SQLite so a rerun
// can analyze without refetching.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) UpsertSite(site models.SiteMetadata) error {
	_, err := s.db.Exec(`
		INSERT INTO sites (site_id, name, drainage_area, area_unit, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_id) DO UPDATE SET
			name = excluded.name,
			drainage_area = excluded.drainage_area,
			area_unit = excluded.area_unit,
			latitude = excluded.latitude,
			longitude = excluded.longitude
	`, site.SiteID, site.Name, site.DrainageArea, site.AreaUnit, site.Latitude, site.Longitude)
	return err
}

func (s *Store) GetSites() ([]models.SiteMetadata, error) {
	rows, err := s.db.Query(`SELECT site_id, name, drainage_area, area_unit, latitude, longitude FROM sites ORDER BY site_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []models.SiteMetadata
	for rows.Next() {
		var site models.SiteMetadata
		if err := rows.Scan(&site.SiteID, &site.Name, &site.DrainageArea, &site.AreaUnit, &site.Latitude, &site.Longitude); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// ReplaceObservations clears the cached chemistry observations and
// inserts the fresh fetch in one transaction. Same-key replicates are
// legitimate (that is what the daily rollup collapses), so there is no
// uniqueness constraint here.
func (s *Store) ReplaceObservations(obs []models.Observation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM observations`); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear observations: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO observations (site_id, sample_date, parameter, value, unit, medium, organization, method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.Exec(o.SiteID, o.Date, o.Parameter, o.Value, o.Unit, string(o.Medium), o.Organization, o.Method); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert observation: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetObservations() ([]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT site_id, sample_date, parameter, value, unit, medium, organization, method
		FROM observations
		ORDER BY site_id, sample_date, parameter, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []models.Observation
	for rows.Next() {
		var o models.Observation
		var medium string
		if err := rows.Scan(&o.SiteID, &o.Date, &o.Parameter, &o.Value, &o.Unit, &medium, &o.Organization, &o.Method); err != nil {
			return nil, err
		}
		o.Medium = models.Medium(medium)
		o.Date = o.Date.UTC()
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func (s *Store) UpsertSensorValue(dv models.DailyValue, unit string) error {
	_, err := s.db.Exec(`
		INSERT INTO sensor_daily_values (site_id, sample_date, parameter, value, unit)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(site_id, sample_date, parameter) DO UPDATE SET
			value = excluded.value,
			unit = excluded.unit
	`, dv.SiteID, dv.Date, dv.Parameter, dv.Value, unit)
	return err
}

func (s *Store) GetSensorValues(parameter string) ([]models.DailyValue, error) {
	rows, err := s.db.Query(`
		SELECT site_id, sample_date, parameter, value
		FROM sensor_daily_values
		WHERE parameter = ?
		ORDER BY site_id, sample_date
	`, parameter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []models.DailyValue
	for rows.Next() {
		var dv models.DailyValue
		if err := rows.Scan(&dv.SiteID, &dv.Date, &dv.Parameter, &dv.Value); err != nil {
			return nil, err
		}
		dv.Date = dv.Date.UTC()
		dv.SampleCount = 1
		values = append(values, dv)
	}
	return values, rows.Err()
}

// InsertModelResults persists one run's flattened result table. Partition
// keys are stored as a JSON array so the key arity is not baked into the
// schema.
func (s *Store) InsertModelResults(runAt time.Time, results []models.ModelResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO model_results (run_at, partition_key, term, estimate, std_error, statistic, p_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		keyJSON, err := json.Marshal(r.Keys)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal partition key: %w", err)
		}
		if _, err := stmt.Exec(runAt.UTC(), string(keyJSON), r.Term, r.Estimate, r.StdError, r.Statistic, r.PValue); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert model result: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetModelResults(runAt time.Time) ([]models.ModelResult, error) {
	rows, err := s.db.Query(`
		SELECT partition_key, term, estimate, std_error, statistic, p_value
		FROM model_results
		WHERE run_at = ?
		ORDER BY id
	`, runAt.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.ModelResult
	for rows.Next() {
		var r models.ModelResult
		var keyJSON string
		if err := rows.Scan(&keyJSON, &r.Term, &r.Estimate, &r.StdError, &r.Statistic, &r.PValue); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(keyJSON), &r.Keys); err != nil {
			return nil, fmt.Errorf("unmarshal partition key: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
