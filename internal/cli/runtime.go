package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/wayfarer/internal/agent"
	"github.com/soyeahso/wayfarer/internal/config"
	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/llm"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/mcp"
	"github.com/soyeahso/wayfarer/internal/memory"
	"github.com/soyeahso/wayfarer/internal/sessions"
	"github.com/soyeahso/wayfarer/internal/store"
	"github.com/soyeahso/wayfarer/internal/tools"
	"github.com/soyeahso/wayfarer/internal/turn"
)

// loadConfig loads the config file and fails on validation issues.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// storage is the durable tier plus the POI store when SQLite backs it.
type storage struct {
	durable store.Durable
	pois    *store.POIStore
	db      *store.DB
}

func (s *storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openStorage(cfg config.Config, log *logging.Logger) (*storage, error) {
	if cfg.Store.Driver == "memory" {
		log.Info().Msg("using in-memory durable store")
		return &storage{durable: store.NewMemoryDurable()}, nil
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	dbPath := paths.DatabasePath(&cfg)
	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info().Str("path", dbPath).Msg("using SQLite store")
	return &storage{durable: store.NewConversationStore(db), pois: store.NewPOIStore(db), db: db}, nil
}

// openMemory builds the two-tier conversation memory. An unreachable Redis
// is logged and tolerated; its faults read as cache misses.
func openMemory(ctx context.Context, cfg config.FastTierConfig, durable memory.HistoryLoader, log *logging.Logger) (*memory.Store, io.Closer, error) {
	codec, err := memory.CodecByName(cfg.Codec)
	if err != nil {
		return nil, nil, err
	}

	var fast memory.FastTier
	var closer io.Closer = nopCloser{}
	switch cfg.Driver {
	case "redis":
		rt := memory.NewRedisTier(memory.RedisOptions{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rt.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, history falls back to the durable store")
		}
		cancel()
		fast, closer = rt, rt
	default:
		fast = memory.NewLocalTier(cfg.LocalCapacity)
	}

	mem := memory.NewStore(fast, durable, codec, memory.Options{KeyPrefix: cfg.KeyPrefix, TTL: cfg.TTL()}, log)
	log.Info().Str("driver", cfg.Driver).Str("codec", codec.Name()).Dur("ttl", cfg.TTL()).Msg("memory fast tier ready")
	return mem, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// runtime is the fully wired turn pipeline shared by serve and chat.
type runtime struct {
	cfg      config.Config
	hooks    *hooks.Manager
	storage  *storage
	memory   *memory.Store
	cache    *agent.InstanceCache
	turns    *turn.Orchestrator
	sessions *sessions.Service

	closers []io.Closer
	log     *logging.Logger
}

func buildRuntime(ctx context.Context, cfg config.Config, log *logging.Logger) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, hooks: hooks.NewManager(log), log: log}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if rt.storage, err = openStorage(cfg, log); err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, rt.storage)

	mem, memCloser, err := openMemory(ctx, cfg.FastTier, rt.storage.durable, log)
	if err != nil {
		return nil, err
	}
	rt.memory = mem
	rt.closers = append(rt.closers, memCloser)

	// Model clients: failover across the configured models, with outbound
	// user messages bounded.
	registry, err := llm.NewRegistryFromConfig(cfg.Provider, log)
	if err != nil {
		return nil, err
	}
	var client llm.Client = agent.NewFailoverClient(registry, cfg.Provider.Model, cfg.Provider.Fallbacks, log)
	if cfg.Truncation.TruncationEnabled() {
		client = agent.NewTruncatingClient(client, cfg.Truncation.MessageMaxLength, log)
	}
	log.Info().Strs("models", registry.List()).Str("kind", cfg.Provider.Kind).Msg("llm providers ready")

	// Tools: built-ins first, then every MCP server that came up.
	var pois tools.POIQuerier
	if rt.storage.pois != nil {
		pois = rt.storage.pois
	}
	sources := []agent.ToolSource{tools.NewRegistry(cfg.Tools, pois, log)}
	for _, c := range mcp.SpawnAll(ctx, cfg.Tools.MCP, log) {
		sources = append(sources, c)
		rt.closers = append(rt.closers, c)
	}

	factory := agent.NewFactory(
		client,
		agent.NewMultiSource(log, sources...),
		mem,
		agent.LimitsFromConfig(cfg.Truncation),
		rt.hooks,
		agent.InstanceOptions{
			MaxTokens:     cfg.Provider.MaxOutputTokens,
			MaxToolRounds: cfg.Turn.MaxToolRounds,
			MaxHistory:    cfg.Memory.MaxHistoryMessages,
		},
		log,
	)

	var bypass agent.BypassPolicy
	if p := cfg.AgentCache.BypassPercent; p > 0 {
		bypass = agent.PercentBypass(p)
	}
	rt.cache, err = agent.NewInstanceCache(factory, agent.CacheOptions{
		Capacity:          cfg.AgentCache.Capacity,
		ExpireAfterWrite:  cfg.AgentCache.ExpireAfterWrite(),
		ExpireAfterAccess: cfg.AgentCache.ExpireAfterAccess(),
		SweepSchedule:     cfg.AgentCache.SweepSchedule,
		Bypass:            bypass,
	}, rt.hooks, log)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, rt.cache)

	exClient, err := llm.NewClient(cfg.Extractor)
	if err != nil {
		return nil, fmt.Errorf("extractor client: %w", err)
	}
	extractor := turn.NewExtractor(exClient, cfg.Extractor.Model, cfg.Turn.ItineraryPromptLimit, log)

	rt.turns = turn.New(rt.storage.durable, rt.cache, extractor, rt.hooks, turn.Options{
		FinalizeTimeout:   cfg.Turn.FinalizeTimeout(),
		SerializeSessions: cfg.Turn.SerializeSessions,
	}, log)
	rt.sessions = sessions.New(rt.storage.durable, mem, rt.cache, rt.hooks, log)
	return rt, nil
}

// Close waits for pending itinerary work, then releases resources in
// reverse order of acquisition.
func (rt *runtime) Close() {
	if rt.turns != nil {
		rt.turns.Wait()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.log.Warn().Err(err).Msg("closing resource")
		}
	}
	rt.closers = nil
	rt.hooks.Wait()
}
