// Package climate answers the analytical questions the API exposes: trailing-year
// precipitation, the station list, the most active station's temperatures, and
// min/avg/max temperature over a date range.
package climate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/observability"
	"github.com/kjstillabower/climate-api/internal/store"
	"github.com/kjstillabower/climate-api/internal/validation"
)

// windowDays is the trailing window length. It is a fixed day count, not a calendar year.
const windowDays = 365

var (
	// ErrEmptyDataset means no window can be anchored because there are no observations.
	ErrEmptyDataset = store.ErrEmptyDataset
	// ErrNoData means a valid temperature query matched zero observations.
	ErrNoData = errors.New("no data available")
	// ErrInvalidDate means a start or end date is not a YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("invalid date")
)

// Service implements the climate queries over a read-only Store. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// PrecipitationLastYear returns date -> precipitation for every observation within
// 365 days of the dataset's latest date. Several stations report on the same day;
// only the last one read for a date is kept.
func (s *Service) PrecipitationLastYear(ctx context.Context) (result models.Precipitation, err error) {
	defer record(ctx, "precipitation", &err)

	mostRecent, err := s.store.MaxDate(ctx)
	if err != nil {
		return nil, err
	}
	obs, err := s.store.ObservationsSince(ctx, windowStart(mostRecent))
	if err != nil {
		return nil, err
	}
	result = make(models.Precipitation, len(obs))
	for _, o := range obs {
		result[o.Date] = o.Precipitation
	}
	return result, nil
}

// ListStations returns every station id in storage order.
func (s *Service) ListStations(ctx context.Context) (ids []string, err error) {
	defer record(ctx, "stations", &err)

	ids, err = s.store.AllStationIDs(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// MostActiveStationTemperatures returns the trailing-year temperature readings of the
// station with the most observations across the whole dataset. Ties go to the
// lexicographically smallest station id.
func (s *Service) MostActiveStationTemperatures(ctx context.Context) (readings []models.TemperatureReading, err error) {
	defer record(ctx, "tobs", &err)

	var (
		mostRecent time.Time
		counts     map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mostRecent, err = s.store.MaxDate(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.store.ObservationCountsByStation(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	station, ok := MostActiveStation(counts)
	if !ok {
		return nil, ErrEmptyDataset
	}
	observability.LoggerFromContext(ctx).Debug("most active station",
		zap.String("station", station), zap.Int("observations", counts[station]))

	obs, err := s.store.ObservationsInRange(ctx, windowStart(mostRecent), mostRecent.Format(models.DateLayout))
	if err != nil {
		return nil, err
	}
	readings = make([]models.TemperatureReading, 0, counts[station])
	for _, o := range obs {
		if o.StationID != station {
			continue
		}
		readings = append(readings, models.TemperatureReading{Date: o.Date, Temperature: o.Temperature})
	}
	return readings, nil
}

// TemperatureStats returns min, mean and max temperature for observations dated on or
// after start and, when end is non-empty, on or before end. ErrNoData when nothing matches.
func (s *Service) TemperatureStats(ctx context.Context, start, end string) (stats models.TemperatureStats, err error) {
	defer record(ctx, "temperature_stats", &err)

	start, err = validation.ValidateDate(start)
	if err != nil {
		return models.TemperatureStats{}, fmt.Errorf("%w: start: %v", ErrInvalidDate, err)
	}
	var obs []models.Observation
	if end == "" {
		obs, err = s.store.ObservationsSince(ctx, start)
	} else {
		end, err = validation.ValidateDate(end)
		if err != nil {
			return models.TemperatureStats{}, fmt.Errorf("%w: end: %v", ErrInvalidDate, err)
		}
		obs, err = s.store.ObservationsInRange(ctx, start, end)
	}
	if err != nil {
		return models.TemperatureStats{}, err
	}
	if len(obs) == 0 {
		return models.TemperatureStats{}, ErrNoData
	}

	temps := make([]float64, len(obs))
	for i, o := range obs {
		temps[i] = o.Temperature
	}
	return models.TemperatureStats{
		StartDate: start,
		EndDate:   end,
		Min:       floats.Min(temps),
		Avg:       stat.Mean(temps, nil),
		Max:       floats.Max(temps),
	}, nil
}

// MostActiveStation picks the id with the highest count; equal counts resolve to the
// smallest id. ok is false for an empty map.
func MostActiveStation(counts map[string]int) (id string, ok bool) {
	best := -1
	for station, n := range counts {
		if n > best || (n == best && station < id) {
			id, best = station, n
		}
	}
	return id, best >= 0
}

func windowStart(mostRecent time.Time) string {
	return mostRecent.AddDate(0, 0, -windowDays).Format(models.DateLayout)
}

// record counts the call outcome and logs store failures with the request logger.
func record(ctx context.Context, operation string, errp *error) {
	err := *errp
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoData):
		outcome = "no_data"
	case errors.Is(err, ErrInvalidDate):
		outcome = "invalid"
	case errors.Is(err, ErrEmptyDataset):
		outcome = "empty_dataset"
	default:
		outcome = "error"
		observability.LoggerFromContext(ctx).Error("climate query failed",
			zap.String("operation", operation), zap.Error(err))
	}
	observability.RecordClimateQuery(operation, outcome)
}
