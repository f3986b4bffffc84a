// Package gormrepo implements the country and city repositories on gorm,
// sharing the engine session's connection pool.
package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arkilian/worlddb/internal/dialect"
	"github.com/arkilian/worlddb/internal/engine"
	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/query/parser"
	"github.com/arkilian/worlddb/internal/repository"
)

// Open wraps the session's pool in a gorm handle. logLevel is one of
// silent, error, warn or info.
func Open(s *engine.Session, logLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch s.Dialect().Family {
	case dialect.FamilySQLite:
		dialector = &sqlite.Dialector{DriverName: s.Dialect().Driver, Conn: s.DB()}
	case dialect.FamilyPostgres:
		dialector = postgres.New(postgres.Config{Conn: s.DB()})
	case dialect.FamilyMySQL:
		dialector = mysql.New(mysql.Config{Conn: s.DB(), SkipInitializeWithVersion: true})
	default:
		return nil, werrors.NewConnectionError(werrors.CodeUnsupportedDriver,
			fmt.Sprintf("gorm: no dialector for %s", s.Dialect().Family), nil)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.New(os.Stderr, "", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  parseLevel(logLevel),
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: %w", err)
	}
	return db, nil
}

func parseLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// first loads one record, reporting a missing record as absence.
func first[T any](ctx context.Context, db *gorm.DB, query string, arg interface{}) (T, bool, error) {
	var out T
	err := db.WithContext(ctx).Where(query, arg).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		return out, false, err
	}
	return out, true, nil
}

// CountryRepository reads countries through gorm.
type CountryRepository struct {
	db *gorm.DB
}

// NewCountryRepository creates a country repository.
func NewCountryRepository(db *gorm.DB) *CountryRepository {
	return &CountryRepository{db: db}
}

// FindByID returns the country with the given code.
func (r *CountryRepository) FindByID(ctx context.Context, code string) (model.Country, bool, error) {
	return first[model.Country](ctx, r.db, "code = ?", code)
}

// FindByPopulationGreaterThanOrderByPopulationDesc returns the countries
// with more than min inhabitants, most populated first.
func (r *CountryRepository) FindByPopulationGreaterThanOrderByPopulationDesc(ctx context.Context, min int64) ([]model.Country, error) {
	out := []model.Country{}
	err := r.db.WithContext(ctx).
		Where("population > ?", min).
		Order("population DESC").
		Find(&out).Error
	return out, err
}

// urbanSummarySQL is the shared urban summary query with gorm's @name
// parameters.
var urbanSummarySQL = gormNamed(repository.UrbanSummarySQL)

// gormNamed rewrites :name parameters outside literals to @name.
func gormNamed(query string) string {
	b := []byte(query)
	for _, tok := range parser.Tokenize(query) {
		switch tok.Type {
		case parser.TokenNamed:
			b[tok.Pos] = '@'
		case parser.TokenError:
			panic(fmt.Sprintf("gormrepo: %s", tok.Literal))
		}
	}
	return string(b)
}

// FindUrbanSummary returns per-country city totals for a continent.
func (r *CountryRepository) FindUrbanSummary(ctx context.Context, continent string) ([]model.CountryCities, error) {
	out := []model.CountryCities{}
	err := r.db.WithContext(ctx).Raw(urbanSummarySQL, map[string]interface{}{"continent": continent}).
		Scan(&out).Error
	return out, err
}

// Count returns the number of countries.
func (r *CountryRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Country{}).Count(&n).Error
	return n, err
}

// CityRepository reads cities through gorm.
type CityRepository struct {
	db *gorm.DB
}

// NewCityRepository creates a city repository.
func NewCityRepository(db *gorm.DB) *CityRepository {
	return &CityRepository{db: db}
}

// FindByID returns the city with the given id.
func (r *CityRepository) FindByID(ctx context.Context, id int64) (model.City, bool, error) {
	return first[model.City](ctx, r.db, "id = ?", id)
}

// FindTopXMostPopulatedCities returns up to limit cities, most populated
// first, each with its country name.
func (r *CityRepository) FindTopXMostPopulatedCities(ctx context.Context, limit int) ([]model.PopulousCity, error) {
	if limit < 1 {
		return nil, werrors.NewValidationError(werrors.CodeInvalidLimit,
			fmt.Sprintf("limit must be >= 1, got %d", limit))
	}
	out := []model.PopulousCity{}
	err := r.db.WithContext(ctx).Raw(repository.TopCitiesSQL, limit).Scan(&out).Error
	return out, err
}

// FindByCountryCode returns the cities of a country, most populated first.
func (r *CityRepository) FindByCountryCode(ctx context.Context, code string) ([]model.City, error) {
	out := []model.City{}
	err := r.db.WithContext(ctx).
		Where("countrycode = ?", code).
		Order("population DESC").
		Order("name ASC").
		Find(&out).Error
	return out, err
}

// Count returns the number of cities.
func (r *CityRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.City{}).Count(&n).Error
	return n, err
}
