package repository

import (
	"context"
	"fmt"

	"github.com/arkilian/worlddb/internal/engine"
	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/query"
)

// TopCitiesSQL ranks cities by population with their country name.
const TopCitiesSQL = `SELECT city.name AS city_name, MAX(city.population) AS population, country.name AS country_name
FROM country JOIN city ON city.countrycode = country.code
GROUP BY city.name, country.name, city.population
ORDER BY city.population DESC, city.name ASC
LIMIT ?`

// UrbanSummarySQL summarises the recorded cities of each country on a
// continent.
const UrbanSummarySQL = `SELECT country.name AS country_name, COUNT(city.id) AS city_count, SUM(city.population) AS urban_population
FROM country JOIN city ON city.countrycode = country.code
WHERE country.continent = :continent
GROUP BY country.name
ORDER BY urban_population DESC, country_name ASC`

// CountryRepository reads countries.
type CountryRepository struct {
	*Repository[model.Country]
	largerThan *Derived[model.Country]
	urban      *Projection[model.CountryCities]
}

// NewCountryRepository compiles the country queries.
func NewCountryRepository(s *engine.Session) (*CountryRepository, error) {
	base, err := New[model.Country](s)
	if err != nil {
		return nil, err
	}
	r := &CountryRepository{Repository: base}
	r.largerThan, err = Derive[model.Country](s, query.Select(model.CountryTable).
		Where(query.Gt("Population")).
		OrderBy(query.Desc("Population")))
	if err != nil {
		return nil, fmt.Errorf("country repository: %w", err)
	}
	r.urban, err = NewProjection[model.CountryCities](s, UrbanSummarySQL)
	if err != nil {
		return nil, fmt.Errorf("country repository: %w", err)
	}
	return r, nil
}

// FindByID returns the country with the given code.
func (r *CountryRepository) FindByID(ctx context.Context, code string) (model.Country, bool, error) {
	return r.Repository.FindByID(ctx, code)
}

// FindByPopulationGreaterThanOrderByPopulationDesc returns the countries
// with more than min inhabitants, most populated first.
func (r *CountryRepository) FindByPopulationGreaterThanOrderByPopulationDesc(ctx context.Context, min int64) ([]model.Country, error) {
	return r.largerThan.Find(ctx, min)
}

// FindUrbanSummary returns per-country city totals for a continent.
func (r *CountryRepository) FindUrbanSummary(ctx context.Context, continent string) ([]model.CountryCities, error) {
	return r.urban.List(ctx, engine.Named("continent", continent))
}

// CityRepository reads cities.
type CityRepository struct {
	*Repository[model.City]
	byCountry *Derived[model.City]
	top       *Projection[model.PopulousCity]
}

// NewCityRepository compiles the city queries.
func NewCityRepository(s *engine.Session) (*CityRepository, error) {
	base, err := New[model.City](s)
	if err != nil {
		return nil, err
	}
	r := &CityRepository{Repository: base}
	r.byCountry, err = Derive[model.City](s, query.Select(model.CityTable).
		Where(query.Eq("CountryCode")).
		OrderBy(query.Desc("Population"), query.Asc("Name")))
	if err != nil {
		return nil, fmt.Errorf("city repository: %w", err)
	}
	r.top, err = NewProjection[model.PopulousCity](s, TopCitiesSQL)
	if err != nil {
		return nil, fmt.Errorf("city repository: %w", err)
	}
	return r, nil
}

// FindByID returns the city with the given id.
func (r *CityRepository) FindByID(ctx context.Context, id int64) (model.City, bool, error) {
	return r.Repository.FindByID(ctx, id)
}

// FindTopXMostPopulatedCities returns up to limit cities, most populated
// first, each with its country name.
func (r *CityRepository) FindTopXMostPopulatedCities(ctx context.Context, limit int) ([]model.PopulousCity, error) {
	if limit < 1 {
		return nil, werrors.NewValidationError(werrors.CodeInvalidLimit,
			fmt.Sprintf("limit must be >= 1, got %d", limit))
	}
	return r.top.List(ctx, limit)
}

// FindByCountryCode returns the cities of a country, most populated first.
func (r *CityRepository) FindByCountryCode(ctx context.Context, code string) ([]model.City, error) {
	return r.byCountry.Find(ctx, code)
}
