package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/wealthmesh/wealthmesh/advisory"
	"github.com/wealthmesh/wealthmesh/child"
	"github.com/wealthmesh/wealthmesh/claimcheck"
	"github.com/wealthmesh/wealthmesh/core"
	"github.com/wealthmesh/wealthmesh/gate"
	"github.com/wealthmesh/wealthmesh/history"
	"github.com/wealthmesh/wealthmesh/invoke"
	"github.com/wealthmesh/wealthmesh/logging"
	"github.com/wealthmesh/wealthmesh/model"
	anthropicmodel "github.com/wealthmesh/wealthmesh/model/anthropic"
	openaimodel "github.com/wealthmesh/wealthmesh/model/openai"
	"github.com/wealthmesh/wealthmesh/records/tomlrepo"
	"github.com/wealthmesh/wealthmesh/role"
	"github.com/wealthmesh/wealthmesh/session"
)

type appConfig struct {
	ListenAddr          string
	RedisAddr           string
	DataDir             string
	Provider            string
	ModelName           string
	GateEnabled         bool
	CompactionMaxTurns  int
	ClaimCheckThreshold int
}

func loadConfig(v *viper.Viper) appConfig {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("redis_addr", "")
	v.SetDefault("data_dir", "data")
	v.SetDefault("provider", "openai")
	v.SetDefault("model", "")
	v.SetDefault("gate_enabled", true)
	v.SetDefault("compaction_max_turns", 50)
	v.SetDefault("claimcheck_threshold", claimcheck.DefaultThreshold)

	// Missing config file is fine, defaults and env cover it.
	_ = v.ReadInConfig()

	return appConfig{
		ListenAddr:          v.GetString("listen_addr"),
		RedisAddr:           v.GetString("redis_addr"),
		DataDir:             v.GetString("data_dir"),
		Provider:            v.GetString("provider"),
		ModelName:           v.GetString("model"),
		GateEnabled:         v.GetBool("gate_enabled"),
		CompactionMaxTurns:  v.GetInt("compaction_max_turns"),
		ClaimCheckThreshold: v.GetInt("claimcheck_threshold"),
	}
}

// wireRuntime assembles a full session runtime from configuration: record
// repositories, model provider, role graph, admission gate, stores and the
// compaction policy.
func wireRuntime(cfg appConfig, logger logging.Logger) (*session.Runtime, error) {
	llm, err := wireModel(cfg)
	if err != nil {
		return nil, err
	}

	clients := tomlrepo.NewClients(filepath.Join(cfg.DataDir, "clients.toml"))
	beneficiaries := tomlrepo.NewBeneficiaries(filepath.Join(cfg.DataDir, "beneficiaries.toml"))
	investments := tomlrepo.NewInvestments(filepath.Join(cfg.DataDir, "investments.toml"))

	invoker := invoke.New(func(o *invoke.Options) {
		o.Logger = logger
	})

	deps := advisory.Deps{
		Clients:       clients,
		Beneficiaries: beneficiaries,
		Investments:   investments,
	}
	// The poster needs the runtime and the runtime needs the graph; bridge
	// the cycle with a late-bound poster.
	poster := &runtimePoster{}
	deps.Poster = poster
	deps.Coordinator = child.NewCoordinator(investments, clients, func(o *child.CoordinatorOptions) {
		o.Invoker = invoker
		o.Logger = logger
	})

	graph, err := advisory.NewGraph(role.NewModelDecider(llm), deps, func(o *role.GraphOptions) {
		o.Invoker = invoker
		o.Logger = logger
	})
	if err != nil {
		return nil, fmt.Errorf("build role graph: %w", err)
	}

	var classifier gate.Classifier
	if cfg.GateEnabled {
		classifier = gate.NewModelClassifier(llm)
	}

	store, checkpoints, err := wireStores(cfg)
	if err != nil {
		return nil, err
	}

	rt := session.NewRuntime(graph, store, func(o *session.RuntimeOptions) {
		o.Gate = gate.New(classifier)
		o.Checkpoints = checkpoints
		o.Policy = session.TurnThresholdPolicy{MaxTurns: cfg.CompactionMaxTurns}
		o.Invoker = invoker
		o.Logger = logger
	})
	poster.rt = rt
	return rt, nil
}

func wireModel(cfg appConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.ModelName != "" {
				o.Model = cfg.ModelName
			}
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.ModelName != "" {
				o.Model = anthropic.Model(cfg.ModelName)
			}
		}), nil
	case "mock":
		return model.NewMockModel("mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// wireStores selects Redis-backed history and checkpoint stores when a Redis
// address is configured, with checkpoints claim-checked through the same
// instance. Without Redis everything stays in memory.
func wireStores(cfg appConfig) (core.HistoryStore, core.CheckpointStore, error) {
	if cfg.RedisAddr == "" {
		return history.NewInMemoryStore(), history.NewInMemoryCheckpoints(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	codec := claimcheck.New(claimcheck.NewRedisStore(client), func(o *claimcheck.Options) {
		o.Threshold = cfg.ClaimCheckThreshold
	})

	store := history.NewRedisStore(client, func(o *history.RedisOptions) {
		o.Codec = codec
	})
	checkpoints := history.NewRedisCheckpoints(client, func(o *history.RedisCheckpointOptions) {
		o.Codec = codec
	})
	return store, checkpoints, nil
}

// runtimePoster defers the status-poster binding until the runtime exists.
type runtimePoster struct {
	rt *session.Runtime
}

func (p *runtimePoster) SubmitStatus(ctx context.Context, sessionID, text string) error {
	if p.rt == nil {
		return errors.New("runtime not ready")
	}
	return p.rt.SubmitStatus(ctx, sessionID, text)
}
