package store

// DateLayout is the calendar-day format used for weather entry dates,
// matching the wire format of the archive API. Lexicographic order on
// values in this layout equals chronological order.
const DateLayout = "2006-01-02"

// Country is a row in the countries table. Countries are created on first
// reference from a resolved city and never deleted by normal operation.
type Country struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"not null;uniqueIndex" json:"name"`
	Timezone string `json:"timezone,omitempty"`

	Cities []City `json:"-"`
}

// City is a row in the cities table. No two cities may share the same
// (latitude, longitude) pair; the composite unique index enforces this at
// the persistence boundary.
type City struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	Name      string   `gorm:"not null;index" json:"name"`
	Latitude  float64  `gorm:"not null;uniqueIndex:idx_cities_coordinates" json:"latitude"`
	Longitude float64  `gorm:"not null;uniqueIndex:idx_cities_coordinates" json:"longitude"`
	CountryID uint     `gorm:"not null" json:"countryId"`
	Country   *Country `json:"country,omitempty"`

	Population int64   `json:"population,omitempty"`
	Area       float64 `json:"area,omitempty"`
	IsCapital  bool    `json:"isCapital"`
	Timezone   string  `json:"timezone,omitempty"`

	Entries []DailyWeatherEntry `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// DailyWeatherEntry is a row in the daily_weather_entries table: one record
// per city per calendar day, enforced by the (city_id, date) unique index.
// MeanTemp is derived as the midpoint of MinTemp and MaxTemp. Entries are
// never mutated after creation; they disappear only by cascade when their
// city is deleted.
type DailyWeatherEntry struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	CityID        uint    `gorm:"not null;uniqueIndex:idx_entries_city_date" json:"cityId"`
	Date          string  `gorm:"not null;uniqueIndex:idx_entries_city_date" json:"date"`
	MinTemp       float64 `gorm:"not null" json:"minTemp"`
	MaxTemp       float64 `gorm:"not null" json:"maxTemp"`
	MeanTemp      float64 `gorm:"not null" json:"meanTemp"`
	Precipitation float64 `gorm:"not null" json:"precipitation"`
}

func (e DailyWeatherEntry) sameValues(other DailyWeatherEntry) bool {
	return e.MinTemp == other.MinTemp &&
		e.MaxTemp == other.MaxTemp &&
		e.MeanTemp == other.MeanTemp &&
		e.Precipitation == other.Precipitation
}
