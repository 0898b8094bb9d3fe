package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 18789, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "token", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "wayfarer:memory:", cfg.FastTier.KeyPrefix)
	assert.Equal(t, 30*time.Minute, cfg.FastTier.TTL())
	assert.Equal(t, 20, cfg.Memory.MaxHistoryMessages)
	assert.Equal(t, 100, cfg.AgentCache.Capacity)
	assert.Equal(t, time.Hour, cfg.AgentCache.ExpireAfterWrite())
	assert.Equal(t, time.Hour, cfg.AgentCache.ExpireAfterAccess())
	assert.Equal(t, 10*time.Second, cfg.Turn.FinalizeTimeout())
	assert.Equal(t, 2000, cfg.Truncation.MaxLength)
	assert.True(t, cfg.Truncation.TruncationEnabled())
	assert.True(t, cfg.Tools.Weather.IsEnabled())
	assert.True(t, cfg.Tools.POI.IsEnabled())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 18789, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	// extractor inherits from the provider
	assert.Equal(t, cfg.Provider.Model, cfg.Extractor.Model)
	assert.Equal(t, cfg.Provider.BaseURL, cfg.Extractor.BaseURL)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
gateway:
  port: 9999
  bind: lan
  auth:
    mode: password
    password: secret123
logging:
  level: debug
  consoleStyle: json
provider:
  kind: ollama
  baseUrl: http://localhost:11434
  model: qwen2.5
extractor:
  model: qwen2.5:0.5b
fastTier:
  driver: redis
  redis:
    addr: cache:6379
  codec: cbor
agentCache:
  capacity: 5
  sweepSchedule: "*/5 * * * *"
truncation:
  enabled: false
  toolLimits:
    poiSearch: 3000
tools:
  mcp:
    - name: travel
      command: mcp-travel
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "secret123", cfg.Gateway.Auth.Password)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "ollama", cfg.Provider.Kind)
	assert.Equal(t, "qwen2.5:0.5b", cfg.Extractor.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Extractor.BaseURL)
	assert.Equal(t, "redis", cfg.FastTier.Driver)
	assert.Equal(t, "cache:6379", cfg.FastTier.Redis.Addr)
	assert.Equal(t, "cbor", cfg.FastTier.Codec)
	assert.Equal(t, "wayfarer:memory:", cfg.FastTier.KeyPrefix)
	assert.Equal(t, 5, cfg.AgentCache.Capacity)
	assert.Equal(t, 60, cfg.AgentCache.ExpireAfterWriteMinutes)
	assert.False(t, cfg.Truncation.TruncationEnabled())
	assert.Equal(t, 3000, cfg.Truncation.LimitFor("poiSearch"))
	assert.Equal(t, 2000, cfg.Truncation.LimitFor("weatherForecast"))
	require.Len(t, cfg.Tools.MCP, 1)
	assert.Equal(t, "mcp-travel", cfg.Tools.MCP[0].Command)
	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WAYFARER_GATEWAY_PORT", "12345")
	t.Setenv("WAYFARER_LOG_LEVEL", "TRACE")
	t.Setenv("WAYFARER_FAST_TIER", "redis")
	t.Setenv("WAYFARER_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("WAYFARER_SERIALIZE_SESSIONS", "true")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "redis", cfg.FastTier.Driver)
	assert.Equal(t, "redis.internal:6380", cfg.FastTier.Redis.Addr)
	assert.True(t, cfg.Turn.SerializeSessions)
}

func TestLoadEnvOverrideBadValue(t *testing.T) {
	t.Setenv("WAYFARER_GATEWAY_PORT", "not-a-port")
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid environment override")
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "sk-123")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  apiKey: ${TEST_PROVIDER_KEY}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-123", cfg.Provider.APIKey)
	assert.Equal(t, "sk-123", cfg.Extractor.APIKey)
}

func TestExpandEnvVarsLeavesUnset(t *testing.T) {
	assert.Equal(t, "${WAYFARER_SURELY_UNSET_VAR}", expandEnvVars("${WAYFARER_SURELY_UNSET_VAR}"))
}

func TestMarshalMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Provider.APIKey = "sk-secret"
	out, err := Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "sk-secret")
	assert.Contains(t, string(out), "********")
}

func TestResolvePathsCustomHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("WAYFARER_HOME", tmp)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, tmp, paths.Base)
	assert.Equal(t, filepath.Join(tmp, "config.yaml"), paths.Config)

	cfg := Defaults()
	assert.Equal(t, filepath.Join(tmp, "data", "wayfarer.db"), paths.DatabasePath(&cfg))
	cfg.Store.Path = "/var/lib/wayfarer.db"
	assert.Equal(t, "/var/lib/wayfarer.db", paths.DatabasePath(&cfg))
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv("WAYFARER_HOME", t.TempDir())

	paths, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, paths.EnsureDirs())

	for _, d := range []string{paths.Base, paths.Data, paths.Logs} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
