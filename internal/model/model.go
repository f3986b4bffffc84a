// Package model defines the world dataset entities and the projections
// the service reads from them.
package model

import "github.com/arkilian/worlddb/internal/mapping"

// Country is a sovereign or dependent territory, keyed by its 3-letter code.
type Country struct {
	Code           string   `db:"CODE,key" gorm:"column:code;primaryKey" json:"code"`
	Name           string   `db:"NAME" gorm:"column:name" json:"name"`
	Continent      string   `db:"CONTINENT" gorm:"column:continent" json:"continent"`
	Region         string   `db:"REGION" gorm:"column:region" json:"region"`
	SurfaceArea    float64  `db:"SURFACEAREA" gorm:"column:surfacearea" json:"surfaceArea"`
	IndepYear      *int16   `db:"INDEPYEAR" gorm:"column:indepyear" json:"indepYear,omitempty"`
	Population     int64    `db:"POPULATION" gorm:"column:population" json:"population"`
	LifeExpectancy *float64 `db:"LIFEEXPECTANCY" gorm:"column:lifeexpectancy" json:"lifeExpectancy,omitempty"`
	GNP            float64  `db:"GNP" gorm:"column:gnp" json:"gnp"`
	GNPOld         *float64 `db:"GNPOLD" gorm:"column:gnpold" json:"gnpOld,omitempty"`
	LocalName      string   `db:"LOCALNAME" gorm:"column:localname" json:"localName"`
	GovernmentForm string   `db:"GOVERNMENTFORM" gorm:"column:governmentform" json:"governmentForm"`
	HeadOfState    *string  `db:"HEADOFSTATE" gorm:"column:headofstate" json:"headOfState,omitempty"`
	Capital        *int64   `db:"CAPITAL" gorm:"column:capital" json:"capital,omitempty"`
	Code2          string   `db:"CODE2" gorm:"column:code2" json:"code2"`
}

// TableName returns the engine table holding countries.
func (Country) TableName() string { return "country" }

// City is a populated place. Cities of the same country share a partition.
type City struct {
	ID          int64  `db:"ID,key" gorm:"column:id;primaryKey" json:"id"`
	CountryCode string `db:"COUNTRYCODE,affinity" gorm:"column:countrycode" json:"countryCode"`
	Name        string `db:"NAME" gorm:"column:name" json:"name"`
	District    string `db:"DISTRICT" gorm:"column:district" json:"district"`
	Population  int64  `db:"POPULATION" gorm:"column:population" json:"population"`
}

// TableName returns the engine table holding cities.
func (City) TableName() string { return "city" }

// PopulousCity is one row of the most-populated-cities ranking.
type PopulousCity struct {
	CityName    string `json:"cityName"`
	Population  int64  `json:"population"`
	CountryName string `json:"countryName"`
}

// CountryCities summarises the cities recorded for one country.
type CountryCities struct {
	CountryName     string `json:"countryName"`
	CityCount       int64  `json:"cityCount"`
	UrbanPopulation int64  `json:"urbanPopulation"`
}

var (
	// CountryTable is the mapping of Country.
	CountryTable = mapping.MustOf[Country]()
	// CityTable is the mapping of City.
	CityTable = mapping.MustOf[City]()
)
