package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Provider.APIKey = expandEnvVars(cfg.Provider.APIKey)
	cfg.Extractor.APIKey = expandEnvVars(cfg.Extractor.APIKey)
	cfg.FastTier.Redis.Password = expandEnvVars(cfg.FastTier.Redis.Password)
	for i := range cfg.Tools.MCP {
		for k, v := range cfg.Tools.MCP[i].Env {
			cfg.Tools.MCP[i].Env[k] = expandEnvVars(v)
		}
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	expandSensitiveFields(&cfg)
	inheritExtractor(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults. It covers
// values a partial YAML document may have zeroed out.
func applyDefaults(cfg *Config) {
	def := Defaults()

	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = def.Gateway.Bind
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = def.Gateway.Auth.Mode
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = def.Logging.ConsoleStyle
	}
	if cfg.Provider.Kind == "" {
		cfg.Provider.Kind = def.Provider.Kind
	}
	if cfg.Provider.MaxOutputTokens == 0 {
		cfg.Provider.MaxOutputTokens = def.Provider.MaxOutputTokens
	}
	if cfg.Provider.TimeoutSeconds == 0 {
		cfg.Provider.TimeoutSeconds = def.Provider.TimeoutSeconds
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = def.Store.Driver
	}
	if cfg.FastTier.Driver == "" {
		cfg.FastTier.Driver = def.FastTier.Driver
	}
	if cfg.FastTier.KeyPrefix == "" {
		cfg.FastTier.KeyPrefix = def.FastTier.KeyPrefix
	}
	if cfg.FastTier.TTLSeconds == 0 {
		cfg.FastTier.TTLSeconds = def.FastTier.TTLSeconds
	}
	if cfg.FastTier.LocalCapacity == 0 {
		cfg.FastTier.LocalCapacity = def.FastTier.LocalCapacity
	}
	if cfg.FastTier.Codec == "" {
		cfg.FastTier.Codec = def.FastTier.Codec
	}
	if cfg.Memory.MaxHistoryMessages == 0 {
		cfg.Memory.MaxHistoryMessages = def.Memory.MaxHistoryMessages
	}
	if cfg.AgentCache.Capacity == 0 {
		cfg.AgentCache.Capacity = def.AgentCache.Capacity
	}
	if cfg.AgentCache.ExpireAfterWriteMinutes == 0 {
		cfg.AgentCache.ExpireAfterWriteMinutes = def.AgentCache.ExpireAfterWriteMinutes
	}
	if cfg.AgentCache.ExpireAfterAccessMinutes == 0 {
		cfg.AgentCache.ExpireAfterAccessMinutes = def.AgentCache.ExpireAfterAccessMinutes
	}
	if cfg.AgentCache.SweepSchedule == "" {
		cfg.AgentCache.SweepSchedule = def.AgentCache.SweepSchedule
	}
	if cfg.Truncation.MaxLength == 0 {
		cfg.Truncation.MaxLength = def.Truncation.MaxLength
	}
	if cfg.Truncation.MessageMaxLength == 0 {
		cfg.Truncation.MessageMaxLength = def.Truncation.MessageMaxLength
	}
	if cfg.Tools.Weather.CacheMinutes == 0 {
		cfg.Tools.Weather.CacheMinutes = def.Tools.Weather.CacheMinutes
	}
	if cfg.Tools.Weather.BaseURL == "" {
		cfg.Tools.Weather.BaseURL = def.Tools.Weather.BaseURL
	}
	if cfg.Tools.Weather.GeocodeURL == "" {
		cfg.Tools.Weather.GeocodeURL = def.Tools.Weather.GeocodeURL
	}
	if cfg.Turn.FinalizeTimeoutSeconds == 0 {
		cfg.Turn.FinalizeTimeoutSeconds = def.Turn.FinalizeTimeoutSeconds
	}
	if cfg.Turn.MaxToolRounds == 0 {
		cfg.Turn.MaxToolRounds = def.Turn.MaxToolRounds
	}
	if cfg.Turn.ItineraryPromptLimit == 0 {
		cfg.Turn.ItineraryPromptLimit = def.Turn.ItineraryPromptLimit
	}
}

// applyEnvOverrides reads WAYFARER_* environment variables declared in the
// struct tags and overrides config values.
func applyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return &ConfigError{Message: "invalid environment override: " + err.Error()}
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	return nil
}

// inheritExtractor fills unset extractor fields from the main provider.
func inheritExtractor(cfg *Config) {
	ex := &cfg.Extractor
	if ex.Kind == "" {
		ex.Kind = cfg.Provider.Kind
	}
	if ex.BaseURL == "" {
		ex.BaseURL = cfg.Provider.BaseURL
	}
	if ex.APIKey == "" {
		ex.APIKey = cfg.Provider.APIKey
	}
	if ex.Model == "" {
		ex.Model = cfg.Provider.Model
	}
	if ex.MaxOutputTokens == 0 {
		ex.MaxOutputTokens = cfg.Provider.MaxOutputTokens
	}
	if ex.TimeoutSeconds == 0 {
		ex.TimeoutSeconds = cfg.Provider.TimeoutSeconds
	}
}

// Marshal renders the effective config as YAML with secrets masked.
func Marshal(cfg Config) ([]byte, error) {
	masked := cfg
	masked.Gateway.Auth.Token = mask(cfg.Gateway.Auth.Token)
	masked.Gateway.Auth.Password = mask(cfg.Gateway.Auth.Password)
	masked.Provider.APIKey = mask(cfg.Provider.APIKey)
	masked.Extractor.APIKey = mask(cfg.Extractor.APIKey)
	masked.FastTier.Redis.Password = mask(cfg.FastTier.Redis.Password)
	return yaml.Marshal(masked)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
