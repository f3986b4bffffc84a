// Package world serves the world dataset: city rankings, lookups and the
// startup diagnostics of the engine.
package world

import (
	"context"
	"fmt"
	"log"

	"github.com/arkilian/worlddb/internal/cache"
	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/notify"
)

// CityStore is the city repository the service reads from.
type CityStore interface {
	FindByID(ctx context.Context, id int64) (model.City, bool, error)
	FindTopXMostPopulatedCities(ctx context.Context, limit int) ([]model.PopulousCity, error)
	FindByCountryCode(ctx context.Context, code string) ([]model.City, error)
}

// CountryStore is the country repository the service reads from.
type CountryStore interface {
	FindByID(ctx context.Context, code string) (model.Country, bool, error)
	FindByPopulationGreaterThanOrderByPopulationDesc(ctx context.Context, min int64) ([]model.Country, error)
	FindUrbanSummary(ctx context.Context, continent string) ([]model.CountryCities, error)
}

// Service answers world queries for the HTTP and gRPC surfaces.
type Service struct {
	cities    CityStore
	countries CountryStore
	cache     cache.ResultCache
}

// NewService creates a service. A nil cache disables caching.
func NewService(cities CityStore, countries CountryStore, rc cache.ResultCache) *Service {
	if rc == nil {
		rc = cache.Noop{}
	}
	return &Service{cities: cities, countries: countries, cache: rc}
}

// MostPopulated returns up to limit cities, most populated first.
func (s *Service) MostPopulated(ctx context.Context, limit int) ([]model.PopulousCity, error) {
	if limit < 1 {
		return nil, werrors.NewValidationError(werrors.CodeInvalidLimit,
			fmt.Sprintf("limit must be >= 1, got %d", limit))
	}

	// Keys carry the shared dataset generation, so entries cached before a
	// reload by any process are orphaned.
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		log.Printf("Cache generation lookup failed, bypassing cache: %v", err)
		return s.cities.FindTopXMostPopulatedCities(ctx, limit)
	}
	key := fmt.Sprintf("v%d:mostPopulated:%d", gen, limit)
	var rows []model.PopulousCity
	hit, err := s.cache.Get(ctx, key, &rows)
	if err != nil {
		log.Printf("Cache lookup for %s failed: %v", key, err)
	} else if hit {
		return rows, nil
	}

	rows, err = s.cities.FindTopXMostPopulatedCities(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, rows); err != nil {
		log.Printf("Cache store for %s failed: %v", key, err)
	}
	return rows, nil
}

// City returns the city with the given id and whether it exists.
func (s *Service) City(ctx context.Context, id int64) (model.City, bool, error) {
	return s.cities.FindByID(ctx, id)
}

// CitiesOf returns the cities of a country, most populated first.
func (s *Service) CitiesOf(ctx context.Context, countryCode string) ([]model.City, error) {
	return s.cities.FindByCountryCode(ctx, countryCode)
}

// Country returns the country with the given code and whether it exists.
func (s *Service) Country(ctx context.Context, code string) (model.Country, bool, error) {
	return s.countries.FindByID(ctx, code)
}

// LargeCountries returns the countries with more than min inhabitants,
// most populated first.
func (s *Service) LargeCountries(ctx context.Context, min int64) ([]model.Country, error) {
	return s.countries.FindByPopulationGreaterThanOrderByPopulationDesc(ctx, min)
}

// UrbanSummary returns per-country city totals for a continent.
func (s *Service) UrbanSummary(ctx context.Context, continent string) ([]model.CountryCities, error) {
	return s.countries.FindUrbanSummary(ctx, continent)
}

// Invalidate drops every cached result by advancing the shared
// generation.
func (s *Service) Invalidate(ctx context.Context) error {
	gen, err := s.cache.Bump(ctx)
	if err != nil {
		return err
	}
	log.Printf("Cache generation is now %d", gen)
	return nil
}

// Watch invalidates cached results on every notification until ctx is
// done or the subscription is closed.
func (s *Service) Watch(ctx context.Context, sub *notify.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			log.Printf("Dataset changed (%s: %s), invalidating cached results", n.Kind, n.Source)
			if err := s.Invalidate(ctx); err != nil {
				log.Printf("Cache invalidation failed: %v", err)
			}
		}
	}
}
