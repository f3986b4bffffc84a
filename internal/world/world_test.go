package world

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/arkilian/worlddb/internal/cache"
	"github.com/arkilian/worlddb/internal/dataset/datasettest"
	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/notify"
	"github.com/arkilian/worlddb/internal/partition"
	"github.com/arkilian/worlddb/internal/repository"
)

type countingCities struct {
	CityStore
	calls int
	err   error
}

func (c *countingCities) FindTopXMostPopulatedCities(ctx context.Context, limit int) ([]model.PopulousCity, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.CityStore.FindTopXMostPopulatedCities(ctx, limit)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, interface{}) (bool, error) {
	return false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, interface{}) error { return errors.New("cache down") }
func (brokenCache) Generation(context.Context) (uint64, error)     { return 0, errors.New("cache down") }
func (brokenCache) Bump(context.Context) (uint64, error)           { return 0, errors.New("cache down") }
func (brokenCache) Close() error                                   { return nil }

// fixedCities returns the same ranking for every limit.
type fixedCities struct {
	CityStore
	rows []model.PopulousCity
}

func (c fixedCities) FindTopXMostPopulatedCities(context.Context, int) ([]model.PopulousCity, error) {
	return c.rows, nil
}

func newStores(t *testing.T) (*repository.CityRepository, *repository.CountryRepository) {
	t.Helper()
	s := datasettest.OpenWorld(t)
	cities, err := repository.NewCityRepository(s)
	if err != nil {
		t.Fatal(err)
	}
	countries, err := repository.NewCountryRepository(s)
	if err != nil {
		t.Fatal(err)
	}
	return cities, countries
}

func TestService_MostPopulated(t *testing.T) {
	cities, countries := newStores(t)
	svc := NewService(cities, countries, nil)
	ctx := context.Background()

	tests := []struct {
		limit   int
		want    int
		wantErr bool
	}{
		{limit: 1, want: 1},
		{limit: 3, want: 3},
		{limit: 10, want: 10},
		{limit: 1000, want: 24},
		{limit: 0, wantErr: true},
		{limit: -5, wantErr: true},
	}
	for _, tt := range tests {
		rows, err := svc.MostPopulated(ctx, tt.limit)
		if tt.wantErr {
			if !werrors.IsValidation(err) {
				t.Errorf("limit %d: expected validation error, got %v", tt.limit, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		if len(rows) != tt.want {
			t.Errorf("limit %d: got %d rows, want %d", tt.limit, len(rows), tt.want)
		}
		for i := 1; i < len(rows); i++ {
			if rows[i].Population > rows[i-1].Population {
				t.Errorf("limit %d: row %d out of order", tt.limit, i)
			}
		}
	}
}

func TestService_MostPopulatedUsesCache(t *testing.T) {
	cities, countries := newStores(t)
	counting := &countingCities{CityStore: cities}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := cache.NewRedisWithClient(rdb, "test:", time.Minute)
	defer rc.Close()

	svc := NewService(counting, countries, rc)
	ctx := context.Background()

	first, err := svc.MostPopulated(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.MostPopulated(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if counting.calls != 1 {
		t.Errorf("repository called %d times, want 1", counting.calls)
	}
	if len(second) != len(first) || second[0] != first[0] {
		t.Errorf("cached rows differ: %+v vs %+v", second, first)
	}
	if !mr.Exists("test:v0:mostPopulated:5") {
		t.Errorf("expected cache key to be stored")
	}

	mr.FastForward(2 * time.Minute)
	if _, err := svc.MostPopulated(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if counting.calls != 2 {
		t.Errorf("expired entry should reach the repository, calls = %d", counting.calls)
	}
}

func TestService_WatchInvalidates(t *testing.T) {
	cities, countries := newStores(t)
	counting := &countingCities{CityStore: cities}

	mr := miniredis.RunT(t)
	rc := cache.NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", time.Hour)
	defer rc.Close()
	svc := NewService(counting, countries, rc)

	n := notify.New(4)
	sub := n.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		svc.Watch(ctx, sub)
		close(done)
	}()

	if _, err := svc.MostPopulated(ctx, 3); err != nil {
		t.Fatal(err)
	}
	n.Publish(notify.Notification{Kind: notify.DatasetLoaded, Source: "world.sql"})

	deadline := time.Now().Add(time.Second)
	for !mr.Exists("generation") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := svc.MostPopulated(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if counting.calls != 2 {
		t.Errorf("repository calls = %d, want 2 after invalidation", counting.calls)
	}
	if !mr.Exists("v1:mostPopulated:3") {
		t.Errorf("expected entry under the new generation, keys = %v", mr.Keys())
	}

	n.Unsubscribe(sub)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after unsubscribe")
	}
}

func TestService_GenerationSharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	newCache := func() *cache.RedisCache {
		rc := cache.NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "w:", time.Hour)
		t.Cleanup(func() { rc.Close() })
		return rc
	}
	ctx := context.Background()

	before := NewService(fixedCities{rows: []model.PopulousCity{{CityName: "Old", Population: 1}}}, nil, newCache())
	if rows, err := before.MostPopulated(ctx, 1); err != nil || rows[0].CityName != "Old" {
		t.Fatalf("first ranking = %+v, %v", rows, err)
	}

	// A reload committed by the first process, then a second process
	// (or a restart) sharing the same redis.
	if err := before.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	after := NewService(fixedCities{rows: []model.PopulousCity{{CityName: "New", Population: 2}}}, nil, newCache())
	rows, err := after.MostPopulated(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].CityName != "New" {
		t.Errorf("ranking cached before the reload was served: %+v", rows)
	}
	if rows, _ := before.MostPopulated(ctx, 1); rows[0].CityName != "New" {
		t.Errorf("first process still sees %+v after the reload", rows)
	}
}

func TestService_CacheFailureIsBypassed(t *testing.T) {
	cities, countries := newStores(t)
	svc := NewService(cities, countries, brokenCache{})

	rows, err := svc.MostPopulated(context.Background(), 2)
	if err != nil {
		t.Fatalf("cache failure should be bypassed, got %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows", len(rows))
	}
}

func TestService_EngineErrorPropagates(t *testing.T) {
	cities, countries := newStores(t)
	boom := errors.New("engine unavailable")
	svc := NewService(&countingCities{CityStore: cities, err: boom}, countries, nil)

	if _, err := svc.MostPopulated(context.Background(), 3); !errors.Is(err, boom) {
		t.Errorf("expected engine error, got %v", err)
	}
}

func TestService_Lookups(t *testing.T) {
	cities, countries := newStores(t)
	svc := NewService(cities, countries, nil)
	ctx := context.Background()

	city, ok, err := svc.City(ctx, 34)
	if err != nil || !ok || city.Name != "Tirana" {
		t.Errorf("City(34) = %+v, %v, %v", city, ok, err)
	}
	if _, ok, err := svc.City(ctx, -1); ok || err != nil {
		t.Errorf("City(-1): ok=%v err=%v", ok, err)
	}

	country, ok, err := svc.Country(ctx, "ALB")
	if err != nil || !ok || country.Name != "Albania" {
		t.Errorf("Country(ALB) = %+v, %v, %v", country, ok, err)
	}
	if _, ok, err := svc.Country(ctx, "ZZZ"); ok || err != nil {
		t.Errorf("Country(ZZZ): ok=%v err=%v", ok, err)
	}

	large, err := svc.LargeCountries(ctx, 100_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(large) == 0 || large[0].Code != "CHN" {
		t.Errorf("large countries = %+v", large)
	}

	brazil, err := svc.CitiesOf(ctx, "BRA")
	if err != nil {
		t.Fatal(err)
	}
	if len(brazil) == 0 || brazil[0].Name != "São Paulo" {
		t.Errorf("cities of BRA = %+v", brazil)
	}

	summary, err := svc.UrbanSummary(ctx, "North America")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary) == 0 {
		t.Errorf("expected a North America summary")
	}
}

func TestDiagnostics(t *testing.T) {
	s := datasettest.OpenWorld(t)
	affinity, err := partition.NewAffinity(8)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDiagnostics(s, affinity)
	ctx := context.Background()

	if err := d.LogStartup(ctx); err != nil {
		t.Fatal(err)
	}

	report, err := d.DemonstrateAccess(ctx, 34)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Found || report.Record.Name != "Tirana" {
		t.Fatalf("report = %+v", report)
	}
	if report.Value == nil || report.Value.String("DISTRICT") != "Tirana" || report.Value.Has("ID") {
		t.Errorf("key/value result = %#v", report.Value)
	}
	if report.Name != "Tirana" || report.Population != 270000 {
		t.Errorf("sql result = %s %d", report.Name, report.Population)
	}
	if want := affinity.PartitionOf("ALB"); report.Partition != want {
		t.Errorf("partition = %d, want %d", report.Partition, want)
	}
	if report.Node.Name != "node-0" {
		t.Errorf("node = %+v", report.Node)
	}

	missing, err := d.DemonstrateAccess(ctx, 424242)
	if err != nil || missing.Found {
		t.Errorf("missing city: %+v, %v", missing, err)
	}
}

func TestPrintTopCities(t *testing.T) {
	var buf bytes.Buffer
	rows := []model.PopulousCity{
		{CityName: "Mumbai (Bombay)", Population: 10500000, CountryName: "India"},
		{CityName: "Seoul", Population: 9981619, CountryName: "South Korea"},
	}
	if err := PrintTopCities(&buf, rows); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "           City      Country Population" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "Mumbai (Bombay)        India   10500000" {
		t.Errorf("row = %q", lines[2])
	}
}
