// Package tools holds the built-in travel tools exposed to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/version"
)

const (
	defaultForecastDays = 7
	maxForecastDays     = 16
	weatherCacheSize    = 256
)

// WeatherOptions configures the forecast tool.
type WeatherOptions struct {
	ForecastURL string
	GeocodeURL  string
	CacheTTL    time.Duration
	HTTPClient  *http.Client
}

// Weather looks up daily forecasts from Open-Meteo. Results are cached per
// city and day count.
type Weather struct {
	forecastURL string
	geocodeURL  string
	client      *http.Client
	cache       *expirable.LRU[string, string]
	group       singleflight.Group
	log         *logging.Logger
}

// NewWeather creates the weatherForecast tool.
func NewWeather(opts WeatherOptions, log *logging.Logger) *Weather {
	if opts.ForecastURL == "" {
		opts.ForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	if opts.GeocodeURL == "" {
		opts.GeocodeURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Weather{
		forecastURL: opts.ForecastURL,
		geocodeURL:  opts.GeocodeURL,
		client:      opts.HTTPClient,
		cache:       expirable.NewLRU[string, string](weatherCacheSize, nil, opts.CacheTTL),
		log:         log.Sub("tools.weather"),
	}
}

func (w *Weather) Name() string { return "weatherForecast" }

func (w *Weather) Description() string {
	return "Get the daily weather forecast for a city: conditions, high and low temperature, chance of rain and wind. Use it before recommending outdoor plans."
}

func (w *Weather) InputSchema() string {
	return `{"type":"object","properties":{"city":{"type":"string","description":"City name, e.g. 北京 or Paris"},"days":{"type":"integer","minimum":1,"maximum":16,"description":"Number of days, default 7"}},"required":["city"]}`
}

type weatherInput struct {
	City string `json:"city"`
	Days int    `json:"days"`
}

// DayForecast is one day of the tool's output.
type DayForecast struct {
	Date                     string  `json:"date"`
	Weather                  string  `json:"weather"`
	TempMax                  float64 `json:"tempMax"`
	TempMin                  float64 `json:"tempMin"`
	PrecipitationProbability int     `json:"precipitationProbability"`
	WindSpeedMax             float64 `json:"windSpeedMax"`
}

// Forecast is the tool's JSON output.
type Forecast struct {
	City      string        `json:"city"`
	Country   string        `json:"country,omitempty"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Days      []DayForecast `json:"days"`
}

// Execute returns the forecast as JSON. Bad input is reported as text for
// the model to read; only transport failures are Go errors.
func (w *Weather) Execute(ctx context.Context, input string) (string, error) {
	var in weatherInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "Error: input must be a JSON object with a city field", nil
	}
	in.City = strings.TrimSpace(in.City)
	if in.City == "" {
		return "Error: city is required", nil
	}
	switch {
	case in.Days <= 0:
		in.Days = defaultForecastDays
	case in.Days > maxForecastDays:
		in.Days = maxForecastDays
	}

	key := in.City + "|" + strconv.Itoa(in.Days)
	if out, ok := w.cache.Get(key); ok {
		return out, nil
	}
	v, err, _ := w.group.Do(key, func() (any, error) {
		return w.fetch(ctx, in)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (w *Weather) fetch(ctx context.Context, in weatherInput) (string, error) {
	place, err := w.geocode(ctx, in.City)
	if err != nil {
		return "", err
	}
	if place == nil {
		return fmt.Sprintf("Error: city not found: %s", in.City), nil
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(place.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(place.Longitude, 'f', 4, 64))
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max,wind_speed_10m_max")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(in.Days))

	var resp openMeteoForecast
	if err := w.getJSON(ctx, w.forecastURL+"?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("forecast for %s: %w", in.City, err)
	}

	out := Forecast{City: place.Name, Country: place.Country, Latitude: place.Latitude, Longitude: place.Longitude}
	d := resp.Daily
	for i, date := range d.Time {
		out.Days = append(out.Days, DayForecast{
			Date:                     date,
			Weather:                  describeWeatherCode(at(d.WeatherCode, i)),
			TempMax:                  at(d.TempMax, i),
			TempMin:                  at(d.TempMin, i),
			PrecipitationProbability: int(at(d.PrecipitationProbability, i)),
			WindSpeedMax:             at(d.WindSpeedMax, i),
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}

	result := string(b)
	w.cache.Add(in.City+"|"+strconv.Itoa(in.Days), result)
	w.log.Debug().Str("city", in.City).Int("days", in.Days).Msg("forecast fetched")
	return result, nil
}

type geoPlace struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
}

func (w *Weather) geocode(ctx context.Context, city string) (*geoPlace, error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")
	q.Set("format", "json")
	var resp struct {
		Results []geoPlace `json:"results"`
	}
	if err := w.getJSON(ctx, w.geocodeURL+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("geocoding %s: %w", city, err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

type openMeteoForecast struct {
	Daily struct {
		Time                     []string  `json:"time"`
		WeatherCode              []float64 `json:"weather_code"`
		TempMax                  []float64 `json:"temperature_2m_max"`
		TempMin                  []float64 `json:"temperature_2m_min"`
		PrecipitationProbability []float64 `json:"precipitation_probability_max"`
		WindSpeedMax             []float64 `json:"wind_speed_10m_max"`
	} `json:"daily"`
}

func (w *Weather) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func at(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}

// describeWeatherCode maps WMO weather interpretation codes to text.
func describeWeatherCode(code float64) string {
	switch c := int(code); {
	case c == 0:
		return "clear sky"
	case c <= 2:
		return "partly cloudy"
	case c == 3:
		return "overcast"
	case c == 45 || c == 48:
		return "fog"
	case c >= 51 && c <= 57:
		return "drizzle"
	case c >= 61 && c <= 67:
		return "rain"
	case c >= 71 && c <= 77:
		return "snow"
	case c >= 80 && c <= 82:
		return "rain showers"
	case c == 85 || c == 86:
		return "snow showers"
	case c >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
