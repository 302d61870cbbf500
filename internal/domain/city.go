package domain

// City is an entry of the static city table used by the record forms.
type City struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Cities lists the cities the dashboard offers, in display order.
var Cities = []City{
	{Name: "Paris", Latitude: 48.8566, Longitude: 2.3522},
	{Name: "New York", Latitude: 40.7128, Longitude: -74.0060},
	{Name: "Tokyo", Latitude: 35.6895, Longitude: 139.6917},
	{Name: "Sydney", Latitude: -33.8688, Longitude: 151.2093},
	{Name: "Cape Town", Latitude: -33.9249, Longitude: 18.4241},
}

// LookupCity finds a city by its exact display name.
func LookupCity(name string) (City, bool) {
	for _, c := range Cities {
		if c.Name == name {
			return c, true
		}
	}
	return City{}, false
}

// CityNames returns the names of all known cities.
func CityNames() []string {
	names := make([]string, len(Cities))
	for i, c := range Cities {
		names[i] = c.Name
	}
	return names
}
