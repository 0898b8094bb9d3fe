package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/soyeahso/wayfarer/internal/config"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type meteoServer struct {
	*httptest.Server
	geocodes  atomic.Int32
	forecasts atomic.Int32
}

func newMeteoServer(t *testing.T) *meteoServer {
	t.Helper()
	m := &meteoServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/geo", func(w http.ResponseWriter, r *http.Request) {
		m.geocodes.Add(1)
		if r.URL.Query().Get("name") == "Atlantis" {
			fmt.Fprint(w, `{}`)
			return
		}
		fmt.Fprint(w, `{"results":[{"name":"北京","latitude":39.9075,"longitude":116.3972,"country":"中国"}]}`)
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		m.forecasts.Add(1)
		assert.Equal(t, "2", r.URL.Query().Get("forecast_days"))
		assert.Equal(t, "39.9075", r.URL.Query().Get("latitude"))
		fmt.Fprint(w, `{"daily":{
			"time":["2026-05-01","2026-05-02"],
			"weather_code":[0,61],
			"temperature_2m_max":[26.1,22.4],
			"temperature_2m_min":[14.0,15.2],
			"precipitation_probability_max":[5,80],
			"wind_speed_10m_max":[12.3,20.0]}}`)
	})
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func (m *meteoServer) tool() *Weather {
	return NewWeather(WeatherOptions{ForecastURL: m.URL + "/forecast", GeocodeURL: m.URL + "/geo"}, silentLog())
}

func TestWeatherForecast(t *testing.T) {
	srv := newMeteoServer(t)
	w := srv.tool()

	out, err := w.Execute(context.Background(), `{"city":"北京","days":2}`)
	require.NoError(t, err)

	var f Forecast
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	assert.Equal(t, "北京", f.City)
	require.Len(t, f.Days, 2)
	assert.Equal(t, "clear sky", f.Days[0].Weather)
	assert.Equal(t, "rain", f.Days[1].Weather)
	assert.Equal(t, 80, f.Days[1].PrecipitationProbability)
	assert.InDelta(t, 26.1, f.Days[0].TempMax, 0.001)
}

func TestWeatherForecastIsCached(t *testing.T) {
	srv := newMeteoServer(t)
	w := srv.tool()

	first, err := w.Execute(context.Background(), `{"city":"北京","days":2}`)
	require.NoError(t, err)
	second, err := w.Execute(context.Background(), `{"city":" 北京 ","days":2}`)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), srv.geocodes.Load())
	assert.Equal(t, int32(1), srv.forecasts.Load())
}

func TestWeatherBadInputIsText(t *testing.T) {
	srv := newMeteoServer(t)
	w := srv.tool()

	out, err := w.Execute(context.Background(), `{"city":"  "}`)
	require.NoError(t, err)
	assert.Equal(t, "Error: city is required", out)

	out, err = w.Execute(context.Background(), `not json`)
	require.NoError(t, err)
	assert.Contains(t, out, "Error:")

	out, err = w.Execute(context.Background(), `{"city":"Atlantis"}`)
	require.NoError(t, err)
	assert.Equal(t, "Error: city not found: Atlantis", out)
	assert.Equal(t, int32(0), srv.forecasts.Load())
}

func TestWeatherUpstreamFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWeather(WeatherOptions{ForecastURL: srv.URL, GeocodeURL: srv.URL}, silentLog())
	_, err := w.Execute(context.Background(), `{"city":"Paris"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestDescribeWeatherCode(t *testing.T) {
	assert.Equal(t, "overcast", describeWeatherCode(3))
	assert.Equal(t, "snow", describeWeatherCode(73))
	assert.Equal(t, "thunderstorm", describeWeatherCode(95))
	assert.Equal(t, "unknown", describeWeatherCode(42))
}

func newPOIStore(t *testing.T) *store.POIStore {
	t.Helper()
	db, err := store.Open(":memory:", silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ps := store.NewPOIStore(db)
	for _, p := range []store.POI{
		{Name: "外滩", City: "上海", Description: "Riverside promenade with colonial architecture", RankInCity: 1},
		{Name: "豫园", City: "上海", Description: "Classical garden", RankInCity: 2},
		{Name: "故宫", City: "北京", Description: "Imperial palace", RankInCity: 1},
	} {
		_, err := ps.Upsert(context.Background(), p)
		require.NoError(t, err)
	}
	return ps
}

func TestPOISearchByCity(t *testing.T) {
	tool := NewPOISearch(newPOIStore(t))

	out, err := tool.Execute(context.Background(), `{"city":"上海"}`)
	require.NoError(t, err)

	var res POIResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "上海", res.CityName)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "外滩", res.POIs[0].Name)
}

func TestPOISearchKeyword(t *testing.T) {
	tool := NewPOISearch(newPOIStore(t))

	out, err := tool.Execute(context.Background(), `{"city":"上海","keyword":"garden"}`)
	require.NoError(t, err)
	var res POIResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "豫园", res.POIs[0].Name)

	out, err = tool.Execute(context.Background(), `{"city":"上海","keyword":"submarine \"base\""}`)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Count, "no keyword match falls back to the city list")
}

func TestPOISearchUnknownCity(t *testing.T) {
	tool := NewPOISearch(newPOIStore(t))

	out, err := tool.Execute(context.Background(), `{"city":"拉萨"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cityName":"拉萨","count":0,"pois":[]}`, out)

	out, err = tool.Execute(context.Background(), `{}`)
	require.NoError(t, err)
	assert.Equal(t, "Error: city is required", out)
}

func TestNewRegistry(t *testing.T) {
	off := false
	reg := NewRegistry(config.ToolsConfig{}, newPOIStore(t), silentLog())
	assert.Len(t, reg.Definitions(), 2)

	reg = NewRegistry(config.ToolsConfig{Weather: config.WeatherToolConfig{Enabled: &off}}, nil, silentLog())
	assert.Empty(t, reg.Definitions())
}
