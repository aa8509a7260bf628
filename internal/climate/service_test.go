package climate

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/store"
)

// mockStore evaluates the Store primitives over an in-memory slice, in slice order.
type mockStore struct {
	observations []models.Observation
	stations     []string
	err          error

	mu    sync.Mutex
	calls map[string]int
}

func (m *mockStore) called(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

func (m *mockStore) MaxDate(ctx context.Context) (time.Time, error) {
	m.called("MaxDate")
	if m.err != nil {
		return time.Time{}, m.err
	}
	latest := ""
	for _, o := range m.observations {
		if o.Date > latest {
			latest = o.Date
		}
	}
	if latest == "" {
		return time.Time{}, store.ErrEmptyDataset
	}
	return time.Parse(models.DateLayout, latest)
}

func (m *mockStore) ObservationsSince(ctx context.Context, since string) ([]models.Observation, error) {
	m.called("ObservationsSince")
	return m.ObservationsInRange(ctx, since, "")
}

func (m *mockStore) ObservationsInRange(ctx context.Context, start, end string) ([]models.Observation, error) {
	m.called("ObservationsInRange")
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Observation
	for _, o := range m.observations {
		if o.Date >= start && (end == "" || o.Date <= end) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockStore) AllStationIDs(ctx context.Context) ([]string, error) {
	m.called("AllStationIDs")
	if m.err != nil {
		return nil, m.err
	}
	return m.stations, nil
}

func (m *mockStore) ObservationCountsByStation(ctx context.Context) (map[string]int, error) {
	m.called("ObservationCountsByStation")
	if m.err != nil {
		return nil, m.err
	}
	counts := make(map[string]int)
	for _, o := range m.observations {
		counts[o.StationID]++
	}
	return counts, nil
}

func prcp(v float64) *float64 { return &v }

func obs(date, station string, p *float64, temp float64) models.Observation {
	return models.Observation{Date: date, StationID: station, Precipitation: p, Temperature: temp}
}

func TestPrecipitationLastYear_TwoRowExample(t *testing.T) {
	m := &mockStore{observations: []models.Observation{
		obs("2017-08-20", "S1", prcp(1.2), 70),
		obs("2017-08-21", "S1", prcp(1.0), 71),
	}}
	svc := NewService(m)

	got, err := svc.PrecipitationLastYear(context.Background())
	if err != nil {
		t.Fatalf("PrecipitationLastYear() error = %v", err)
	}
	if len(got) != 2 || *got["2017-08-20"] != 1.2 || *got["2017-08-21"] != 1.0 {
		t.Errorf("PrecipitationLastYear() = %v, want {2017-08-20:1.2, 2017-08-21:1.0}", got)
	}
}

func TestPrecipitationLastYear_WindowBounds(t *testing.T) {
	m := &mockStore{observations: []models.Observation{
		obs("2016-08-21", "S1", prcp(0.5), 70), // exactly 365 days before max
		obs("2016-08-20", "S1", prcp(9.9), 70), // one day outside
		obs("2015-01-01", "S2", prcp(3.0), 70),
		obs("2017-08-21", "S2", prcp(0.1), 70),
	}}
	svc := NewService(m)

	got, err := svc.PrecipitationLastYear(context.Background())
	if err != nil {
		t.Fatalf("PrecipitationLastYear() error = %v", err)
	}
	for date := range got {
		if date < "2016-08-21" || date > "2017-08-21" {
			t.Errorf("result contains %s outside [2016-08-21, 2017-08-21]", date)
		}
	}
	if _, ok := got["2016-08-21"]; !ok {
		t.Error("window start date should be included")
	}
	if len(got) != 2 {
		t.Errorf("len(result) = %d, want 2", len(got))
	}
}

func TestPrecipitationLastYear_FixedOffsetAcrossLeapDay(t *testing.T) {
	// 2016 is a leap year: 365 days before 2016-12-31 is 2016-01-01, not 2015-12-31.
	m := &mockStore{observations: []models.Observation{
		obs("2015-12-31", "S1", prcp(1), 70),
		obs("2016-01-01", "S1", prcp(2), 70),
		obs("2016-12-31", "S1", prcp(3), 70),
	}}
	got, err := NewService(m).PrecipitationLastYear(context.Background())
	if err != nil {
		t.Fatalf("PrecipitationLastYear() error = %v", err)
	}
	if _, ok := got["2015-12-31"]; ok {
		t.Error("2015-12-31 is 366 days before the max and must be excluded")
	}
	if _, ok := got["2016-01-01"]; !ok {
		t.Error("2016-01-01 is exactly 365 days before the max and must be included")
	}
}

func TestPrecipitationLastYear_DuplicateDateLastWins(t *testing.T) {
	m := &mockStore{observations: []models.Observation{
		obs("2017-08-21", "S1", prcp(0.3), 70),
		obs("2017-08-21", "S2", prcp(0.7), 71),
	}}
	got, err := NewService(m).PrecipitationLastYear(context.Background())
	if err != nil {
		t.Fatalf("PrecipitationLastYear() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(result) = %d, want 1 entry per date", len(got))
	}
	if v := got["2017-08-21"]; v == nil || *v != 0.7 {
		t.Errorf("result[2017-08-21] = %v, want 0.7 (last row read)", v)
	}
}

func TestPrecipitationLastYear_NullPreserved(t *testing.T) {
	m := &mockStore{observations: []models.Observation{
		obs("2017-08-21", "S1", nil, 70),
	}}
	got, err := NewService(m).PrecipitationLastYear(context.Background())
	if err != nil {
		t.Fatalf("PrecipitationLastYear() error = %v", err)
	}
	v, ok := got["2017-08-21"]
	if !ok || v != nil {
		t.Errorf("result[2017-08-21] = %v (present=%v), want nil present", v, ok)
	}
}

func TestPrecipitationLastYear_EmptyDataset(t *testing.T) {
	_, err := NewService(&mockStore{}).PrecipitationLastYear(context.Background())
	if !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("PrecipitationLastYear() error = %v, want ErrEmptyDataset", err)
	}
}

func TestListStations(t *testing.T) {
	m := &mockStore{stations: []string{"USC00519397", "USC00513117", "USC00514830"}}
	got, err := NewService(m).ListStations(context.Background())
	if err != nil {
		t.Fatalf("ListStations() error = %v", err)
	}
	if !reflect.DeepEqual(got, m.stations) {
		t.Errorf("ListStations() = %v, want %v in storage order", got, m.stations)
	}
}

func TestListStations_EmptyIsNotNil(t *testing.T) {
	got, err := NewService(&mockStore{}).ListStations(context.Background())
	if err != nil {
		t.Fatalf("ListStations() error = %v", err)
	}
	if got == nil {
		t.Error("ListStations() = nil, want empty slice")
	}
}

func TestMostActiveStation(t *testing.T) {
	tests := []struct {
		name   string
		counts map[string]int
		want   string
		wantOK bool
	}{
		{name: "example", counts: map[string]int{"S1": 5, "S2": 9}, want: "S2", wantOK: true},
		{name: "single", counts: map[string]int{"S1": 1}, want: "S1", wantOK: true},
		{name: "tie picks smallest id", counts: map[string]int{"S3": 4, "S1": 4, "S2": 4}, want: "S1", wantOK: true},
		{name: "tie below max ignored", counts: map[string]int{"A": 2, "B": 2, "Z": 7}, want: "Z", wantOK: true},
		{name: "empty", counts: map[string]int{}, wantOK: false},
		{name: "nil", counts: nil, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Repeat to shake out map iteration order dependence.
			for i := 0; i < 20; i++ {
				got, ok := MostActiveStation(tt.counts)
				if ok != tt.wantOK || got != tt.want {
					t.Fatalf("MostActiveStation(%v) = (%q, %v), want (%q, %v)", tt.counts, got, ok, tt.want, tt.wantOK)
				}
			}
		})
	}
}

func TestMostActiveStation_IsMaximal(t *testing.T) {
	counts := map[string]int{"USC00519397": 2724, "USC00519281": 2772, "USC00513117": 2709, "USC00516128": 2612}
	got, _ := MostActiveStation(counts)
	for id, n := range counts {
		if n > counts[got] {
			t.Errorf("station %s has %d observations, more than chosen %s (%d)", id, n, got, counts[got])
		}
	}
}

func TestMostActiveStationTemperatures(t *testing.T) {
	m := &mockStore{observations: []models.Observation{
		obs("2015-06-01", "BUSY", prcp(0), 60), // outside window but counts toward activity
		obs("2015-06-02", "BUSY", prcp(0), 61),
		obs("2016-09-01", "BUSY", prcp(0), 75),
		obs("2016-09-01", "QUIET", prcp(0), 99),
		obs("2017-08-01", "QUIET", prcp(0), 98),
		obs("2017-08-20", "BUSY", prcp(0), 80),
		obs("2017-08-21", "QUIET", prcp(0), 97),
	}}
	got, err := NewService(m).MostActiveStationTemperatures(context.Background())
	if err != nil {
		t.Fatalf("MostActiveStationTemperatures() error = %v", err)
	}
	want := []models.TemperatureReading{
		{Date: "2016-09-01", Temperature: 75},
		{Date: "2017-08-20", Temperature: 80},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MostActiveStationTemperatures() = %v, want %v", got, want)
	}
}

func TestMostActiveStationTemperatures_EmptyDataset(t *testing.T) {
	_, err := NewService(&mockStore{}).MostActiveStationTemperatures(context.Background())
	if !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("MostActiveStationTemperatures() error = %v, want ErrEmptyDataset", err)
	}
}

func TestMostActiveStationTemperatures_StoreError(t *testing.T) {
	storeErr := errors.New("database is locked")
	_, err := NewService(&mockStore{err: storeErr}).MostActiveStationTemperatures(context.Background())
	if !errors.Is(err, storeErr) {
		t.Fatalf("MostActiveStationTemperatures() error = %v, want %v", err, storeErr)
	}
}

func TestTemperatureStats_Range(t *testing.T) {
	m := &mockStore{observations: []models.Observation{
		obs("2017-01-01", "S1", nil, 62),
		obs("2017-01-02", "S2", nil, 70),
		obs("2017-01-03", "S1", nil, 74),
		obs("2017-01-04", "S1", nil, 90),
	}}
	got, err := NewService(m).TemperatureStats(context.Background(), "2017-01-01", "2017-01-03")
	if err != nil {
		t.Fatalf("TemperatureStats() error = %v", err)
	}
	want := models.TemperatureStats{StartDate: "2017-01-01", EndDate: "2017-01-03", Min: 62, Avg: 206.0 / 3, Max: 74}
	if got.StartDate != want.StartDate || got.EndDate != want.EndDate || got.Min != want.Min || got.Max != want.Max {
		t.Errorf("TemperatureStats() = %+v, want %+v", got, want)
	}
	if math.Abs(got.Avg-want.Avg) > 1e-9 {
		t.Errorf("Avg = %v, want %v", got.Avg, want.Avg)
	}
	if !(got.Min <= got.Avg && got.Avg <= got.Max) {
		t.Errorf("min <= avg <= max violated: %+v", got)
	}
}

func TestTemperatureStats_StartOnly(t *testing.T) {
	m := &mockStore{observations: []models.Observation{
		obs("2017-08-20", "S1", prcp(1.2), 78),
		obs("2017-08-21", "S1", prcp(1.0), 82),
	}}
	got, err := NewService(m).TemperatureStats(context.Background(), "2017-08-21", "")
	if err != nil {
		t.Fatalf("TemperatureStats() error = %v", err)
	}
	if got.EndDate != "" {
		t.Errorf("EndDate = %q, want empty when not supplied", got.EndDate)
	}
	if got.Min != 82 || got.Avg != 82 || got.Max != 82 {
		t.Errorf("TemperatureStats() = %+v, want all 82", got)
	}
	if m.calls["ObservationsSince"] != 1 {
		t.Errorf("ObservationsSince calls = %d, want 1 for start-only query", m.calls["ObservationsSince"])
	}
}

func TestTemperatureStats_StartAfterLatest(t *testing.T) {
	m := &mockStore{observations: []models.Observation{
		obs("2017-08-20", "S1", prcp(1.2), 78),
		obs("2017-08-21", "S1", prcp(1.0), 82),
	}}
	_, err := NewService(m).TemperatureStats(context.Background(), "2017-08-23", "")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("TemperatureStats() error = %v, want ErrNoData", err)
	}
}

func TestTemperatureStats_EndBeforeStart(t *testing.T) {
	m := &mockStore{observations: []models.Observation{obs("2017-01-02", "S1", nil, 70)}}
	_, err := NewService(m).TemperatureStats(context.Background(), "2017-01-03", "2017-01-01")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("TemperatureStats() error = %v, want ErrNoData", err)
	}
}

func TestTemperatureStats_InvalidDates(t *testing.T) {
	m := &mockStore{observations: []models.Observation{obs("2017-01-02", "S1", nil, 70)}}
	svc := NewService(m)
	tests := []struct{ start, end string }{
		{"2017", ""},
		{"not-a-date", ""},
		{"2017-01-01", "2017-13-01"},
		{"", ""},
	}
	for _, tt := range tests {
		_, err := svc.TemperatureStats(context.Background(), tt.start, tt.end)
		if !errors.Is(err, ErrInvalidDate) {
			t.Errorf("TemperatureStats(%q, %q) error = %v, want ErrInvalidDate", tt.start, tt.end, err)
		}
	}
	if n := m.calls["ObservationsSince"] + m.calls["ObservationsInRange"]; n != 0 {
		t.Errorf("store read %d times for invalid input, want 0", n)
	}
}

func TestTemperatureStats_MeanOfExactlyMatchedRows(t *testing.T) {
	temps := []float64{71, 68.5, 80, 77, 73.25, 66}
	var rows []models.Observation
	for i, tmp := range temps {
		rows = append(rows, obs("2017-02-0"+string(rune('1'+i)), "S1", nil, tmp))
	}
	got, err := NewService(&mockStore{observations: rows}).TemperatureStats(context.Background(), "2017-02-01", "2017-02-06")
	if err != nil {
		t.Fatalf("TemperatureStats() error = %v", err)
	}
	var sum float64
	for _, v := range temps {
		sum += v
	}
	sorted := append([]float64(nil), temps...)
	sort.Float64s(sorted)
	if math.Abs(got.Avg-sum/float64(len(temps))) > 1e-9 {
		t.Errorf("Avg = %v, want %v", got.Avg, sum/float64(len(temps)))
	}
	if got.Min != sorted[0] || got.Max != sorted[len(sorted)-1] {
		t.Errorf("Min/Max = %v/%v, want %v/%v", got.Min, got.Max, sorted[0], sorted[len(sorted)-1])
	}
}

func TestQueries_Idempotent(t *testing.T) {
	m := &mockStore{
		stations: []string{"S1", "S2"},
		observations: []models.Observation{
			obs("2017-08-20", "S1", prcp(1.2), 78),
			obs("2017-08-21", "S2", prcp(1.0), 82),
			obs("2017-08-21", "S1", prcp(0.4), 80),
		},
	}
	svc := NewService(m)
	ctx := context.Background()

	p1, _ := svc.PrecipitationLastYear(ctx)
	p2, _ := svc.PrecipitationLastYear(ctx)
	if !reflect.DeepEqual(p1, p2) {
		t.Errorf("PrecipitationLastYear not idempotent: %v vs %v", p1, p2)
	}
	t1, _ := svc.MostActiveStationTemperatures(ctx)
	t2, _ := svc.MostActiveStationTemperatures(ctx)
	if !reflect.DeepEqual(t1, t2) {
		t.Errorf("MostActiveStationTemperatures not idempotent: %v vs %v", t1, t2)
	}
	s1, _ := svc.TemperatureStats(ctx, "2017-08-20", "2017-08-21")
	s2, _ := svc.TemperatureStats(ctx, "2017-08-20", "2017-08-21")
	if s1 != s2 {
		t.Errorf("TemperatureStats not idempotent: %+v vs %+v", s1, s2)
	}
}
