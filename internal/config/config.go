package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{
		Gateway: GatewayConfig{
			Port: 18789,
			Bind: "loopback",
			Auth: GatewayAuth{Mode: "token"},
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Provider: ProviderConfig{
			Kind:            "openai",
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			MaxOutputTokens: 800,
			TimeoutSeconds:  120,
		},
		Store: StoreConfig{Driver: "sqlite"},
		FastTier: FastTierConfig{
			Driver:        "local",
			Redis:         RedisConfig{Addr: "localhost:6379"},
			KeyPrefix:     "wayfarer:memory:",
			TTLSeconds:    1800,
			LocalCapacity: 10000,
			Codec:         "json",
		},
		Memory: MemoryConfig{MaxHistoryMessages: 20},
		AgentCache: AgentCacheConfig{
			Capacity:                 100,
			ExpireAfterWriteMinutes:  60,
			ExpireAfterAccessMinutes: 60,
			SweepSchedule:            "* * * * *",
		},
		Truncation: TruncationConfig{
			MaxLength:        2000,
			MessageMaxLength: 4000,
		},
		Tools: ToolsConfig{
			Weather: WeatherToolConfig{
				CacheMinutes: 5,
				BaseURL:      "https://api.open-meteo.com/v1/forecast",
				GeocodeURL:   "https://geocoding-api.open-meteo.com/v1/search",
			},
		},
		Turn: TurnConfig{
			FinalizeTimeoutSeconds: 10,
			MaxToolRounds:          1,
			ItineraryPromptLimit:   4000,
		},
	}
	return cfg
}
