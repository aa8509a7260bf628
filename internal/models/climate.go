package models

// DateLayout is the on-disk and on-the-wire format of observation dates.
const DateLayout = "2006-01-02"

// Observation is one daily reading from the measurement table.
type Observation struct {
	Date          string   `gorm:"column:date"`
	StationID     string   `gorm:"column:station"`
	Precipitation *float64 `gorm:"column:prcp"`
	Temperature   float64  `gorm:"column:tobs"`
}

func (Observation) TableName() string {
	return "measurement"
}

// Station is one reporting location from the station table.
type Station struct {
	ID   string `gorm:"column:station"`
	Name string `gorm:"column:name"`
}

func (Station) TableName() string {
	return "station"
}

// Precipitation maps a date to the precipitation recorded on it. A nil value encodes as JSON null.
type Precipitation map[string]*float64

type TemperatureReading struct {
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"`
}

// TemperatureStats is the min/avg/max aggregate over a date range. EndDate is empty
// when the caller supplied only a start date.
type TemperatureStats struct {
	StartDate string  `json:"Start Date"`
	EndDate   string  `json:"End Date,omitempty"`
	Min       float64 `json:"Min Temperature"`
	Avg       float64 `json:"Avg Temperature"`
	Max       float64 `json:"Max Temperature"`
}
