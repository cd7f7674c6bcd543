package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kiri/internal/artifact"
	"kiri/internal/classify"
	"kiri/internal/config"
	"kiri/internal/introspect"
	"kiri/internal/lane"
	"kiri/internal/llm"
	"kiri/internal/llmclient"
	"kiri/internal/metrics"
	"kiri/internal/project"
	"kiri/internal/task"
)

// ExecutorKind selects how dispatched jobs run.
type ExecutorKind string

const (
	// ExecutorAuto uses NATS when NATS_URL is set and the worker pool otherwise.
	ExecutorAuto   ExecutorKind = "auto"
	ExecutorInline ExecutorKind = "inline"
	ExecutorPool   ExecutorKind = "pool"
	ExecutorNATS   ExecutorKind = "nats"
)

// Pipeline is every classification component without the HTTP surface.
// The gateway and the CLI both build one.
type Pipeline struct {
	Metrics      *metrics.Metrics
	Introspector *introspect.CachedIntrospector
	Engine       *classify.Engine
	Generator    *artifact.Generator
	Projects     *project.Service
	Hub          *task.Hub
	Runner       *task.Runner
	Executor     task.Executor
	Dispatcher   *task.Dispatcher
	Sweeper      *task.Sweeper

	stores  *stores
	clients []llmclient.Client
	logger  *zap.Logger
}

func NewPipeline(ctx context.Context, cfg *config.Config, kind ExecutorKind, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{Metrics: metrics.New(), Hub: task.NewHub(), logger: logger}

	st, err := initStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	p.stores = st

	gh := introspect.New(introspect.Options{
		APIBaseURL:      cfg.GitHub.APIBaseURL,
		RawBaseURL:      cfg.GitHub.RawBaseURL,
		Token:           cfg.GitHub.Token,
		TreeTimeout:     cfg.GitHub.TreeTimeout,
		FileTimeout:     cfg.GitHub.FileTimeout,
		MetadataTimeout: cfg.GitHub.MetadataTimeout,
		RateLimit: introspect.RateLimitPolicy{
			RemainingHeader: cfg.GitHub.RateLimit.Remaining,
			ResetHeader:     cfg.GitHub.RateLimit.Reset,
		},
		Caps:   lane.FetchCaps,
		Logger: logger.Named("introspect"),
	})
	p.Introspector = introspect.NewCached(gh, cfg.Cache.RepoSize, cfg.Cache.SnapshotTTL, cfg.Cache.MetadataTTL)

	strategies, err := p.remoteStrategies(ctx, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Engine = classify.NewEngine(strategies,
		classify.WithLogger(logger.Named("classify")),
		classify.WithTierObserver(p.Metrics.ObserveTier))

	publisher := artifact.NewGistPublisher(artifact.GistOptions{
		APIBaseURL: cfg.Artifact.GistAPIURL,
		Token:      cfg.Artifact.GistToken,
		Public:     cfg.Artifact.GistPublic,
	})
	p.Generator = artifact.NewGenerator(publisher, st.archive, artifact.Options{
		BinderBaseURL: cfg.Artifact.BinderBaseURL,
		ColabBaseURL:  cfg.Artifact.ColabBaseURL,
		PythonVersion: cfg.Artifact.PythonVersion,
		Logger:        logger.Named("artifact"),
	})

	p.Projects = project.NewService(st.projects, p.Generator, logger.Named("project"))
	p.Runner = task.NewRunner(st.projects, p.Introspector, p.Engine, p.Generator, task.RunnerOptions{
		Hub:     p.Hub,
		Metrics: p.Metrics,
		Logger:  logger.Named("task"),
	})

	exec, err := p.newExecutor(cfg, kind)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Executor = exec
	p.Dispatcher = task.NewDispatcher(exec, logger.Named("dispatch"))
	p.Sweeper = task.NewSweeper(st.projects, p.Dispatcher, p.Introspector, task.SweeperOptions{
		RetryInterval: cfg.Sweeper.RetryInterval,
		StaleAfter:    cfg.Sweeper.StaleAfter,
		SyncInterval:  cfg.Sweeper.SyncInterval,
		BatchSize:     cfg.Sweeper.BatchSize,
		Logger:        logger.Named("sweeper"),
	})
	return p, nil
}

// remoteStrategies builds the Gemini then Groq tiers for every configured
// API key. Without keys the engine runs the heuristic alone.
func (p *Pipeline) remoteStrategies(ctx context.Context, cfg *config.Config) ([]classify.Strategy, error) {
	var out []classify.Strategy
	if key := strings.TrimSpace(cfg.Gemini.APIKey); key != "" {
		c, err := llmclient.NewGeminiClient(ctx, llmclient.GeminiOptions{
			APIKey:      key,
			Model:       cfg.Gemini.Model,
			Temperature: float32(cfg.Gemini.Temperature),
			MaxTokens:   cfg.Gemini.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		out = append(out, p.remote("gemini", c, cfg, cfg.Gemini.Timeout))
	}
	if key := strings.TrimSpace(cfg.Groq.APIKey); key != "" {
		c := llmclient.NewGroqClient(llmclient.GroqOptions{
			APIKey:      key,
			Model:       cfg.Groq.Model,
			BaseURL:     cfg.Groq.BaseURL,
			Temperature: float32(cfg.Groq.Temperature),
			MaxTokens:   cfg.Groq.MaxTokens,
			Timeout:     cfg.Groq.Timeout,
		})
		out = append(out, p.remote("groq", c, cfg, cfg.Groq.Timeout))
	}
	if len(out) == 0 {
		p.logger.Warn("no remote classifier keys configured; heuristic tier only")
	}
	return out, nil
}

func (p *Pipeline) remote(name string, c llmclient.Client, cfg *config.Config, timeout time.Duration) classify.Strategy {
	wrapped := llm.Wrap(c,
		llm.WithObserver(p.Metrics.ObserveLLMCall),
		llm.WithLogging(p.logger.Named("llm")),
		llm.Cooldown(cfg.LLM.Cooldown, time.Now),
		llm.RateLimit(cfg.LLM.RPS, cfg.LLM.Burst),
	)
	p.clients = append(p.clients, wrapped)
	return classify.NewRemoteStrategy(name, wrapped, timeout, p.logger.Named("classify"))
}

func (p *Pipeline) newExecutor(cfg *config.Config, kind ExecutorKind) (task.Executor, error) {
	handler := task.RunHandler(p.Runner, p.logger.Named("task"))
	if kind == "" || kind == ExecutorAuto {
		kind = ExecutorPool
		if strings.TrimSpace(cfg.NATS.URL) != "" {
			kind = ExecutorNATS
		}
	}
	switch kind {
	case ExecutorInline:
		return task.NewInlineExecutor(handler, p.Metrics), nil
	case ExecutorPool:
		return task.NewPoolExecutor(handler, task.PoolOptions{
			Workers: cfg.Workers,
			Metrics: p.Metrics,
			Logger:  p.logger.Named("pool"),
		}), nil
	case ExecutorNATS:
		if strings.TrimSpace(cfg.NATS.URL) == "" {
			return nil, errors.New("nats executor requires NATS_URL")
		}
		e, err := task.NewNATSExecutor(handler, task.NATSOptions{
			URL:     cfg.NATS.URL,
			Stream:  cfg.NATS.Stream,
			Subject: cfg.NATS.Subject,
			Durable: cfg.NATS.Durable,
			Metrics: p.Metrics,
			Logger:  p.logger.Named("nats"),
		})
		if err != nil {
			return nil, err
		}
		p.stores.pingers["nats"] = natsPinger{e}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown executor %q", kind)
	}
}

// Close stops the executor, the LLM rate limiters and the stores, in that
// order.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Executor != nil {
		errs = append(errs, p.Executor.Close())
	}
	for _, c := range p.clients {
		errs = append(errs, c.Close())
	}
	if p.stores != nil {
		p.stores.close()
	}
	return errors.Join(errs...)
}

type natsPinger struct{ e *task.NATSExecutor }

func (n natsPinger) Ping(context.Context) error { return n.e.Ping() }
