// Package presenter maps a weather response to the strings shown on screen.
package presenter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/kjstillabower/weatherapp/internal/models"
)

// IconCategory is the semantic icon drawn for a condition.
type IconCategory string

const (
	IconClear   IconCategory = "clear"
	IconCloud   IconCategory = "cloud"
	IconRain    IconCategory = "rain"
	IconStorm   IconCategory = "storm"
	IconSnow    IconCategory = "snow"
	IconUnknown IconCategory = "unknown"
)

const (
	Celsius    = "°C"
	Fahrenheit = "°F"
)

// Night codes follow the app's historical artwork: several of them reuse
// the cloud icon.
var iconCategories = map[string]IconCategory{
	"01d": IconClear,
	"02d": IconCloud,
	"03d": IconCloud,
	"04d": IconCloud,
	"04n": IconCloud,
	"10d": IconRain,
	"11d": IconStorm,
	"13d": IconSnow,
	"01n": IconCloud,
	"02n": IconCloud,
	"03n": IconCloud,
	"10n": IconCloud,
	"11n": IconStorm,
	"13n": IconSnow,
}

var fahrenheitRegions = map[string]struct{}{
	"US": {},
	"LR": {},
	"MM": {},
}

// DisplayFields is everything the screen shows.
type DisplayFields struct {
	Main        string       `json:"main"`
	Description string       `json:"description"`
	Temperature string       `json:"temperature"`
	Humidity    string       `json:"humidity"`
	Min         string       `json:"min"`
	Max         string       `json:"max"`
	WindSpeed   string       `json:"windSpeed"`
	Name        string       `json:"name"`
	Country     string       `json:"country"`
	Sunrise     string       `json:"sunrise"`
	Sunset      string       `json:"sunset"`
	Icon        IconCategory `json:"icon"`
}

// Empty reports whether nothing has been rendered yet.
func (d DisplayFields) Empty() bool {
	return d == DisplayFields{}
}

// Presenter formats for one device region and time zone.
type Presenter struct {
	region   string
	location *time.Location
}

// New returns a Presenter. A nil location means time.Local.
func New(region string, location *time.Location) Presenter {
	if location == nil {
		location = time.Local
	}
	return Presenter{region: region, location: location}
}

// Render applies resp on top of current. Every field is written once per
// weather condition, so with several conditions the last one wins; with
// none, current is returned unchanged. An unrecognized icon code keeps the
// current icon.
func (p Presenter) Render(current DisplayFields, resp models.WeatherResponse) DisplayFields {
	out := current
	unit := UnitLabel(p.region)
	for _, cond := range resp.Weather {
		out.Main = cond.Main
		out.Description = cond.Description
		out.Temperature = plainNumber(resp.Main.Temp) + unit
		out.Sunrise = FormatClock(resp.Sys.Sunrise, p.location)
		out.Sunset = FormatClock(resp.Sys.Sunset, p.location)
		out.Humidity = fmt.Sprintf("%d%%", resp.Main.Humidity)
		out.Min = OneDecimal(resp.Main.TempMin) + "min"
		out.Max = OneDecimal(resp.Main.TempMax) + "max"
		out.WindSpeed = plainNumber(resp.Wind.Speed)
		out.Name = resp.Name
		out.Country = resp.Sys.Country

		if icon := IconFor(cond.Icon); icon != IconUnknown {
			out.Icon = icon
		}
	}
	return out
}

// IconFor maps an OpenWeatherMap icon code to a category.
func IconFor(code string) IconCategory {
	if c, ok := iconCategories[code]; ok {
		return c
	}
	return IconUnknown
}

// UnitLabel starts from Celsius and switches to Fahrenheit for US, LR and MM.
func UnitLabel(region string) string {
	unit := Celsius
	if _, ok := fahrenheitRegions[strings.ToUpper(strings.TrimSpace(region))]; ok {
		unit = Fahrenheit
	}
	return unit
}

// FormatClock renders unix seconds as 24-hour HH:mm in loc.
func FormatClock(unix int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(unix, 0).In(loc).Format("15:04")
}

// OneDecimal prints v with at most one decimal place ("12.3", "17").
func OneDecimal(v float64) string {
	return strings.TrimSuffix(strconv.FormatFloat(v, 'f', 1, 64), ".0")
}

// plainNumber prints v in shortest form but always with a fractional part ("15.0").
func plainNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

// RegionFromLocale extracts an explicit region from a POSIX locale
// ("en_US.UTF-8") or BCP 47 tag ("fr-FR"). Inferred regions are ignored,
// so "en" yields "".
func RegionFromLocale(locale string) string {
	s := strings.TrimSpace(locale)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", "-")
	if s == "" || s == "C" || s == "POSIX" {
		return ""
	}
	tag, err := language.Parse(s)
	if err != nil {
		return ""
	}
	region, conf := tag.Region()
	if conf != language.Exact {
		return ""
	}
	return region.String()
}
