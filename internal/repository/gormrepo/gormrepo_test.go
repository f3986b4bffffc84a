package gormrepo

import (
	"context"
	"reflect"
	"testing"

	"github.com/arkilian/worlddb/internal/dataset/datasettest"
	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/repository"
)

func newRepos(t *testing.T) (*CountryRepository, *CityRepository) {
	t.Helper()
	db, err := Open(datasettest.OpenWorld(t), "silent")
	if err != nil {
		t.Fatal(err)
	}
	return NewCountryRepository(db), NewCityRepository(db)
}

func TestCityRepository(t *testing.T) {
	_, cities := newRepos(t)
	ctx := context.Background()

	city, ok, err := cities.FindByID(ctx, 34)
	if err != nil || !ok || city.Name != "Tirana" || city.CountryCode != "ALB" {
		t.Fatalf("FindByID(34) = %+v ok=%v err=%v", city, ok, err)
	}
	if _, ok, err := cities.FindByID(ctx, 999999); ok || err != nil {
		t.Errorf("unknown id: ok=%v err=%v", ok, err)
	}

	top, err := cities.FindTopXMostPopulatedCities(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []model.PopulousCity{
		{CityName: "Mumbai (Bombay)", Population: 10500000, CountryName: "India"},
		{CityName: "Seoul", Population: 9981619, CountryName: "South Korea"},
		{CityName: "São Paulo", Population: 9968485, CountryName: "Brazil"},
	}
	if len(top) != len(want) {
		t.Fatalf("top = %+v", top)
	}
	for i := range want {
		if top[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, top[i], want[i])
		}
	}

	if _, err := cities.FindTopXMostPopulatedCities(ctx, 0); !werrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	usa, err := cities.FindByCountryCode(ctx, "USA")
	if err != nil || len(usa) != 3 || usa[0].Name != "New York" {
		t.Errorf("FindByCountryCode(USA) = %+v, %v", usa, err)
	}

	n, err := cities.Count(ctx)
	if err != nil || n != 24 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestCountryRepository(t *testing.T) {
	countries, _ := newRepos(t)
	ctx := context.Background()

	large, err := countries.FindByPopulationGreaterThanOrderByPopulationDesc(ctx, 100_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(large) != 10 || large[0].Code != "CHN" {
		t.Errorf("large countries = %d, first %+v", len(large), large)
	}

	ata, ok, err := countries.FindByID(ctx, "ATA")
	if err != nil || !ok {
		t.Fatalf("FindByID(ATA): ok=%v err=%v", ok, err)
	}
	if ata.HeadOfState != nil || ata.IndepYear != nil {
		t.Errorf("nullable columns should be nil: %+v", ata)
	}
	if _, ok, _ := countries.FindByID(ctx, "ZZZ"); ok {
		t.Error("ZZZ should be absent")
	}

	summary, err := countries.FindUrbanSummary(ctx, "North America")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary) != 2 || summary[0].CountryName != "United States" || summary[0].CityCount != 3 {
		t.Errorf("summary = %+v", summary)
	}

	n, err := countries.Count(ctx)
	if err != nil || n != 16 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestGormNamed(t *testing.T) {
	got := gormNamed(`SELECT ':skip', name FROM t WHERE a = :a AND b = :b`)
	want := `SELECT ':skip', name FROM t WHERE a = @a AND b = @b`
	if got != want {
		t.Errorf("gormNamed = %q, want %q", got, want)
	}
}

func TestRepositoriesAgree(t *testing.T) {
	s := datasettest.OpenWorld(t)
	db, err := Open(s, "silent")
	if err != nil {
		t.Fatal(err)
	}
	gormCountries, gormCities := NewCountryRepository(db), NewCityRepository(db)
	countries, err := repository.NewCountryRepository(s)
	if err != nil {
		t.Fatal(err)
	}
	cities, err := repository.NewCityRepository(s)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, continent := range []string{"Asia", "Europe", "North America", "Atlantis"} {
		want, err := countries.FindUrbanSummary(ctx, continent)
		if err != nil {
			t.Fatal(err)
		}
		got, err := gormCountries.FindUrbanSummary(ctx, continent)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) == 0 && len(want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: gorm %+v, native %+v", continent, got, want)
		}
	}

	want, err := cities.FindTopXMostPopulatedCities(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	got, err := gormCities.FindTopXMostPopulatedCities(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("top cities: gorm %+v, native %+v", got, want)
	}
}
