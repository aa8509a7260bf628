package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/observability"
)

// ErrEmptyDataset is returned by MaxDate when the measurement table has no rows.
var ErrEmptyDataset = errors.New("dataset contains no observations")

// Store is the read-only view of the climate dataset used by the query service.
// Implementations must be safe for concurrent use.
type Store interface {
	// MaxDate returns the most recent observation date.
	MaxDate(ctx context.Context) (time.Time, error)
	// ObservationsSince returns every observation with date >= since, unordered.
	ObservationsSince(ctx context.Context, since string) ([]models.Observation, error)
	// ObservationsInRange returns observations with date >= start and, when end is
	// non-empty, date <= end.
	ObservationsInRange(ctx context.Context, start, end string) ([]models.Observation, error)
	// AllStationIDs returns one id per station row, in storage order.
	AllStationIDs(ctx context.Context) ([]string, error)
	// ObservationCountsByStation returns the number of observations per station.
	ObservationCountsByStation(ctx context.Context) (map[string]int, error)
}

// GormStore implements Store over the measurement and station tables.
type GormStore struct {
	db *gorm.DB
}

// New wraps an open gorm handle. The handle is shared by all requests.
func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// observationColumns casts date to text so DATE-typed columns (Postgres) scan into strings.
const observationColumns = "CAST(date AS TEXT) AS date, station, prcp, tobs"

func (s *GormStore) MaxDate(ctx context.Context) (t time.Time, err error) {
	defer observe("max_date", time.Now(), &err)

	var latest sql.NullString
	err = s.db.WithContext(ctx).
		Model(&models.Observation{}).
		Select("CAST(MAX(date) AS TEXT)").
		Row().
		Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("query max date: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return time.Time{}, ErrEmptyDataset
	}
	t, err = time.Parse(models.DateLayout, latest.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse max date %q: %w", latest.String, err)
	}
	return t, nil
}

func (s *GormStore) ObservationsSince(ctx context.Context, since string) (obs []models.Observation, err error) {
	defer observe("observations_since", time.Now(), &err)

	err = s.db.WithContext(ctx).
		Select(observationColumns).
		Where("date >= ?", since).
		Find(&obs).Error
	if err != nil {
		return nil, fmt.Errorf("query observations since %s: %w", since, err)
	}
	return obs, nil
}

func (s *GormStore) ObservationsInRange(ctx context.Context, start, end string) (obs []models.Observation, err error) {
	defer observe("observations_in_range", time.Now(), &err)

	q := s.db.WithContext(ctx).
		Select(observationColumns).
		Where("date >= ?", start)
	if end != "" {
		q = q.Where("date <= ?", end)
	}
	if err = q.Find(&obs).Error; err != nil {
		return nil, fmt.Errorf("query observations %s..%s: %w", start, end, err)
	}
	return obs, nil
}

func (s *GormStore) AllStationIDs(ctx context.Context) (ids []string, err error) {
	defer observe("all_station_ids", time.Now(), &err)

	if err = s.db.WithContext(ctx).Model(&models.Station{}).Pluck("station", &ids).Error; err != nil {
		return nil, fmt.Errorf("query station ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

type stationCount struct {
	Station string
	Total   int
}

func (s *GormStore) ObservationCountsByStation(ctx context.Context) (counts map[string]int, err error) {
	defer observe("observation_counts", time.Now(), &err)

	var rows []stationCount
	err = s.db.WithContext(ctx).
		Model(&models.Observation{}).
		Select("station, COUNT(*) AS total").
		Group("station").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count observations by station: %w", err)
	}
	counts = make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Station] = r.Total
	}
	return counts, nil
}

// observe records latency and failure for a primitive once its named error result is final.
// An empty dataset is an answer, not a read failure.
func observe(primitive string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, ErrEmptyDataset) {
		err = nil
	}
	observability.ObserveStoreQuery(primitive, start, err)
}

// Ping checks the underlying connection pool.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
