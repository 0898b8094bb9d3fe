package config

import "time"

// Config is the root configuration for Wayfarer.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Provider   ProviderConfig   `yaml:"provider,omitempty"`
	Extractor  ProviderConfig   `yaml:"extractor,omitempty"` // structured itinerary model; empty fields inherit from provider
	Store      StoreConfig      `yaml:"store,omitempty"`
	FastTier   FastTierConfig   `yaml:"fastTier,omitempty"`
	Memory     MemoryConfig     `yaml:"memory,omitempty"`
	AgentCache AgentCacheConfig `yaml:"agentCache,omitempty"`
	Truncation TruncationConfig `yaml:"truncation,omitempty"`
	Tools      ToolsConfig      `yaml:"tools,omitempty"`
	Turn       TurnConfig       `yaml:"turn,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty" env:"WAYFARER_GATEWAY_PORT"`
	Bind           string           `yaml:"bind,omitempty" env:"WAYFARER_GATEWAY_BIND"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password" | "none"
	Token    string `yaml:"token,omitempty" env:"WAYFARER_GATEWAY_TOKEN"`
	Password string `yaml:"password,omitempty"`
}

// GatewayControlUI lists browser origins permitted to open a WebSocket.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty" env:"WAYFARER_LOG_LEVEL"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"`                    // "pretty" | "compact" | "json"
	File         string `yaml:"file,omitempty"`
}

// ProviderConfig selects and configures a streaming completion backend.
type ProviderConfig struct {
	Kind            string   `yaml:"kind,omitempty" env:"WAYFARER_PROVIDER_KIND"` // "openai" | "ollama"
	BaseURL         string   `yaml:"baseUrl,omitempty" env:"WAYFARER_PROVIDER_BASE_URL"`
	APIKey          string   `yaml:"apiKey,omitempty" env:"WAYFARER_PROVIDER_API_KEY"`
	Model           string   `yaml:"model,omitempty" env:"WAYFARER_PROVIDER_MODEL"`
	MaxOutputTokens int      `yaml:"maxOutputTokens,omitempty"`
	TimeoutSeconds  int      `yaml:"timeoutSeconds,omitempty"`
	Fallbacks       []string `yaml:"fallbacks,omitempty"` // additional models on the same endpoint, tried in order
}

// StoreConfig selects the durable tier.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty" env:"WAYFARER_STORE_DRIVER"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty" env:"WAYFARER_STORE_PATH"`
}

// FastTierConfig selects and configures the expiring memory cache.
type FastTierConfig struct {
	Driver        string      `yaml:"driver,omitempty" env:"WAYFARER_FAST_TIER"` // "redis" | "local"
	Redis         RedisConfig `yaml:"redis,omitempty"`
	KeyPrefix     string      `yaml:"keyPrefix,omitempty"`
	TTLSeconds    int         `yaml:"ttlSeconds,omitempty"`
	LocalCapacity int         `yaml:"localCapacity,omitempty"`
	Codec         string      `yaml:"codec,omitempty"` // "json" | "cbor"
}

// RedisConfig holds connection settings for the Redis fast tier.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty" env:"WAYFARER_REDIS_ADDR"`
	Password string `yaml:"password,omitempty" env:"WAYFARER_REDIS_PASSWORD"`
	DB       int    `yaml:"db,omitempty"`
}

// MemoryConfig bounds the per-session history window.
type MemoryConfig struct {
	MaxHistoryMessages int `yaml:"maxHistoryMessages,omitempty"`
}

// AgentCacheConfig configures the per-session agent instance cache.
type AgentCacheConfig struct {
	Capacity                 int    `yaml:"capacity,omitempty"`
	ExpireAfterWriteMinutes  int    `yaml:"expireAfterWriteMinutes,omitempty"`
	ExpireAfterAccessMinutes int    `yaml:"expireAfterAccessMinutes,omitempty"`
	SweepSchedule            string `yaml:"sweepSchedule,omitempty"` // cron expression
	BypassPercent            int    `yaml:"bypassPercent,omitempty"`
}

// TruncationConfig bounds tool results and outbound user messages.
type TruncationConfig struct {
	Enabled          *bool          `yaml:"enabled,omitempty"`
	MaxLength        int            `yaml:"maxLength,omitempty"`
	ToolLimits       map[string]int `yaml:"toolLimits,omitempty"`
	MessageMaxLength int            `yaml:"messageMaxLength,omitempty"`
}

// ToolsConfig enables built-in tools and external MCP servers.
type ToolsConfig struct {
	Weather WeatherToolConfig `yaml:"weather,omitempty"`
	POI     POIToolConfig     `yaml:"poi,omitempty"`
	MCP     []MCPServerConfig `yaml:"mcp,omitempty"`
}

// WeatherToolConfig configures the Open-Meteo forecast tool.
type WeatherToolConfig struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	CacheMinutes int    `yaml:"cacheMinutes,omitempty"`
	BaseURL      string `yaml:"baseUrl,omitempty"`
	GeocodeURL   string `yaml:"geocodeUrl,omitempty"`
}

// POIToolConfig configures the store-backed point-of-interest tool.
type POIToolConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// MCPServerConfig describes an MCP stdio server to spawn.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// TurnConfig tunes the turn orchestrator.
type TurnConfig struct {
	FinalizeTimeoutSeconds int  `yaml:"finalizeTimeoutSeconds,omitempty"`
	MaxToolRounds          int  `yaml:"maxToolRounds,omitempty"`
	ItineraryPromptLimit   int  `yaml:"itineraryPromptLimit,omitempty"`
	SerializeSessions      bool `yaml:"serializeSessions,omitempty" env:"WAYFARER_SERIALIZE_SESSIONS"`
}

// TTL returns the fast-tier entry lifetime.
func (f FastTierConfig) TTL() time.Duration {
	return time.Duration(f.TTLSeconds) * time.Second
}

// ExpireAfterWrite returns the write TTL as a duration.
func (a AgentCacheConfig) ExpireAfterWrite() time.Duration {
	return time.Duration(a.ExpireAfterWriteMinutes) * time.Minute
}

// ExpireAfterAccess returns the idle TTL as a duration.
func (a AgentCacheConfig) ExpireAfterAccess() time.Duration {
	return time.Duration(a.ExpireAfterAccessMinutes) * time.Minute
}

// FinalizeTimeout returns the itinerary extraction deadline.
func (t TurnConfig) FinalizeTimeout() time.Duration {
	return time.Duration(t.FinalizeTimeoutSeconds) * time.Second
}

// TruncationEnabled reports whether tool result truncation is on (default true).
func (t TruncationConfig) TruncationEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// LimitFor returns the per-tool limit, falling back to MaxLength.
func (t TruncationConfig) LimitFor(tool string) int {
	if n, ok := t.ToolLimits[tool]; ok && n > 0 {
		return n
	}
	return t.MaxLength
}

// IsEnabled reports whether the weather tool is on (default true).
func (w WeatherToolConfig) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

// IsEnabled reports whether the POI tool is on (default true).
func (p POIToolConfig) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }
