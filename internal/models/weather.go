package models

// Coordinates is a single location fix.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// WeatherResponse mirrors the OpenWeatherMap current-weather payload. It is also
// the serialized form kept in the preference store, so field names follow the
// upstream JSON exactly.
type WeatherResponse struct {
	Coord      Coordinates `json:"coord"`
	Weather    []Condition `json:"weather"`
	Base       string      `json:"base,omitempty"`
	Main       Main        `json:"main"`
	Visibility int         `json:"visibility,omitempty"`
	Wind       Wind        `json:"wind"`
	Clouds     Clouds      `json:"clouds"`
	Dt         int64       `json:"dt,omitempty"`
	Sys        Sys         `json:"sys"`
	Timezone   int         `json:"timezone,omitempty"`
	ID         int64       `json:"id,omitempty"`
	Name       string      `json:"name"`
	Cod        int         `json:"cod,omitempty"`
}

// Condition is one entry of the "weather" array.
type Condition struct {
	ID          int    `json:"id,omitempty"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type Main struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like,omitempty"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure,omitempty"`
	Humidity  int     `json:"humidity"`
}

type Wind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg,omitempty"`
}

type Clouds struct {
	All int `json:"all"`
}

// Sys carries sunrise/sunset as unix seconds.
type Sys struct {
	Type    int    `json:"type,omitempty"`
	ID      int64  `json:"id,omitempty"`
	Country string `json:"country"`
	Sunrise int64  `json:"sunrise"`
	Sunset  int64  `json:"sunset"`
}
