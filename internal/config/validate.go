package config

import (
	"fmt"
	"slices"

	"github.com/adhocore/gronx"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	oneOf := func(path, got string, valid []string) {
		if got != "" && !slices.Contains(valid, got) {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("must be one of %v, got %q", valid, got),
			})
		}
	}
	positive := func(path string, n int) {
		if n < 0 {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("must not be negative, got %d", n),
			})
		}
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "password", "none"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{Path: "gateway.customBindHost", Message: "required when bind: custom"})
	}

	// Logging
	oneOf("logging.level", cfg.Logging.Level, []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "compact", "json"})

	// Providers
	validKinds := []string{"openai", "ollama"}
	oneOf("provider.kind", cfg.Provider.Kind, validKinds)
	oneOf("extractor.kind", cfg.Extractor.Kind, validKinds)
	if cfg.Provider.Model == "" {
		issues = append(issues, ValidationIssue{Path: "provider.model", Message: "model is required"})
	}
	positive("provider.maxOutputTokens", cfg.Provider.MaxOutputTokens)

	// Store and fast tier
	oneOf("store.driver", cfg.Store.Driver, []string{"sqlite", "memory"})
	oneOf("fastTier.driver", cfg.FastTier.Driver, []string{"redis", "local"})
	oneOf("fastTier.codec", cfg.FastTier.Codec, []string{"json", "cbor"})
	if cfg.FastTier.Driver == "redis" && cfg.FastTier.Redis.Addr == "" {
		issues = append(issues, ValidationIssue{Path: "fastTier.redis.addr", Message: "required when driver: redis"})
	}
	positive("fastTier.ttlSeconds", cfg.FastTier.TTLSeconds)
	positive("memory.maxHistoryMessages", cfg.Memory.MaxHistoryMessages)

	// Agent cache
	positive("agentCache.capacity", cfg.AgentCache.Capacity)
	positive("agentCache.expireAfterWriteMinutes", cfg.AgentCache.ExpireAfterWriteMinutes)
	positive("agentCache.expireAfterAccessMinutes", cfg.AgentCache.ExpireAfterAccessMinutes)
	if cfg.AgentCache.SweepSchedule != "" && !gronx.New().IsValid(cfg.AgentCache.SweepSchedule) {
		issues = append(issues, ValidationIssue{
			Path:    "agentCache.sweepSchedule",
			Message: fmt.Sprintf("invalid cron expression %q", cfg.AgentCache.SweepSchedule),
		})
	}
	if cfg.AgentCache.BypassPercent < 0 || cfg.AgentCache.BypassPercent > 100 {
		issues = append(issues, ValidationIssue{
			Path:    "agentCache.bypassPercent",
			Message: fmt.Sprintf("must be 0-100, got %d", cfg.AgentCache.BypassPercent),
		})
	}

	// Truncation
	positive("truncation.maxLength", cfg.Truncation.MaxLength)
	for name, n := range cfg.Truncation.ToolLimits {
		positive("truncation.toolLimits."+name, n)
	}

	// MCP servers
	seen := map[string]bool{}
	for i, srv := range cfg.Tools.MCP {
		path := fmt.Sprintf("tools.mcp[%d]", i)
		if srv.Name == "" {
			issues = append(issues, ValidationIssue{Path: path + ".name", Message: "name is required"})
		} else if seen[srv.Name] {
			issues = append(issues, ValidationIssue{Path: path + ".name", Message: fmt.Sprintf("duplicate server name %q", srv.Name)})
		}
		seen[srv.Name] = true
		if srv.Command == "" {
			issues = append(issues, ValidationIssue{Path: path + ".command", Message: "command is required"})
		}
	}

	positive("turn.finalizeTimeoutSeconds", cfg.Turn.FinalizeTimeoutSeconds)
	positive("turn.maxToolRounds", cfg.Turn.MaxToolRounds)

	return issues
}
