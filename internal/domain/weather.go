package domain

import "time"

// WeatherRecord is a single weather reading as served by the backend.
// Identity is ID, which the backend assigns.
type WeatherRecord struct {
	ID          int     `json:"id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CityName    string  `json:"city_name"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Description string  `json:"description"`
	// Timestamp is kept as the ISO-8601 string the backend sent.
	Timestamp string `json:"timestamp"`
}

// Time parses Timestamp. The backend has been seen sending both RFC3339 and
// a space-separated layout without zone, so both are accepted.
func (r WeatherRecord) Time() (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, r.Timestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// DefaultCity is the city selected when the dashboard first opens.
const DefaultCity = "Paris"

// Filter is the dashboard's current selection. It drives the REST query and
// is never persisted.
type Filter struct {
	City  string
	Start *time.Time
	End   *time.Time
}

// DefaultFilter returns the filter a fresh dashboard starts with.
func DefaultFilter() Filter {
	return Filter{City: DefaultCity}
}

// Matches reports whether a record falls inside the filter window.
// Records with an unparseable timestamp only match on city.
func (f Filter) Matches(r WeatherRecord) bool {
	if f.City != "" && r.CityName != f.City {
		return false
	}
	t, ok := r.Time()
	if !ok {
		return true
	}
	if f.Start != nil && t.Before(*f.Start) {
		return false
	}
	if f.End != nil && t.After(*f.End) {
		return false
	}
	return true
}
