package tools

import (
	"time"

	"github.com/soyeahso/wayfarer/internal/agent"
	"github.com/soyeahso/wayfarer/internal/config"
	"github.com/soyeahso/wayfarer/internal/logging"
)

// NewRegistry registers the built-in tools enabled in cfg. The POI tool
// is skipped when pois is nil.
func NewRegistry(cfg config.ToolsConfig, pois POIQuerier, log *logging.Logger) *agent.ToolRegistry {
	reg := agent.NewToolRegistry()
	if cfg.Weather.IsEnabled() {
		reg.Register(NewWeather(WeatherOptions{
			ForecastURL: cfg.Weather.BaseURL,
			GeocodeURL:  cfg.Weather.GeocodeURL,
			CacheTTL:    time.Duration(cfg.Weather.CacheMinutes) * time.Minute,
		}, log))
	}
	if cfg.POI.IsEnabled() && pois != nil {
		reg.Register(NewPOISearch(pois))
	}
	return reg
}
