package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/interviewpilot/internal/adapter"
	"github.com/spigell/interviewpilot/internal/ai"
	"github.com/spigell/interviewpilot/internal/ai/gemini"
	"github.com/spigell/interviewpilot/internal/cache"
	"github.com/spigell/interviewpilot/internal/engine"
	"github.com/spigell/interviewpilot/internal/health"
	"github.com/spigell/interviewpilot/internal/metrics"
	"github.com/spigell/interviewpilot/internal/resume"
	"github.com/spigell/interviewpilot/internal/secrets"
	"github.com/spigell/interviewpilot/internal/store"
)

// services holds everything built from the configuration.
type services struct {
	engine   *engine.Engine
	store    *store.SQL
	registry *prometheus.Registry
	checks   []health.Check
	closers  []func() error
}

func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// buildOptions lets commands replace collaborators, e.g. practice with a
// resume read from a local file.
type buildOptions struct {
	resumes resume.Store
}

func buildServices(ctx context.Context, config *Config, logger *zap.Logger, opts buildOptions) (*services, error) {
	svc := &services{registry: prometheus.NewRegistry()}
	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(svc.registry)

	ok := false
	defer func() {
		if !ok {
			_ = svc.Close()
		}
	}()

	st, err := openStore(ctx, config.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	svc.store = st
	svc.closers = append(svc.closers, st.Close)
	svc.checks = append(svc.checks, health.NewPing(health.NameDatabase, st, map[string]string{"dialect": st.Dialect()}))

	backend, redisBackend, err := newCacheBackend(ctx, config)
	if err != nil {
		return nil, err
	}
	if redisBackend != nil {
		svc.closers = append(svc.closers, redisBackend.Close)
		svc.checks = append(svc.checks, health.NewPing(health.NameRedis, redisBackend, map[string]string{"prefix": config.Redis.Prefix}))
	} else {
		svc.checks = append(svc.checks, health.NewPing(health.NameRedis, nil, nil))
	}
	c := cache.New(backend, logger, cache.WithObserver(m))

	resumes := opts.resumes
	if resumes == nil {
		resumes, err = newResumeStore(ctx, config, st, logger, svc)
		if err != nil {
			return nil, err
		}
	}

	generator, scorer, model, err := newAI(ctx, config.AI, logger)
	if err != nil {
		return nil, err
	}
	svc.checks = append(svc.checks, health.NewAI(config.AI.Provider, model))

	policy := newPolicy(config.AI)
	resumePolicy := policy
	resumePolicy.Limiter = nil
	eng, err := engine.New(engine.Config{
		DefaultTopicCount: config.Interview.TopicCount,
		MaxTopicCount:     config.Interview.MaxTopicCount,
		QuestionsTTL:      config.Cache.QuestionsTTL,
		FeedbackTTL:       config.Cache.FeedbackTTL,
		MaxDuration:       config.Interview.MaxDuration,
	}, engine.Deps{
		Store:     st,
		Cache:     c,
		Resumes:   adapter.NewResumes(resumes, resumePolicy, logger, m),
		Questions: adapter.NewQuestions(generator, policy, logger, m),
		Scores:    adapter.NewScores(scorer, policy, logger, m),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	svc.engine = eng

	logger.Info("services ready",
		zap.String("store", st.Dialect()),
		zap.String("cache", c.Backend()),
		zap.String("resumes", resumes.Name()),
		zap.String("ai_provider", config.AI.Provider),
		zap.String("ai_model", model),
	)

	ok = true
	return svc, nil
}

// openStore opens the session store and applies pending migrations.
func openStore(ctx context.Context, dsn string, logger *zap.Logger) (*store.SQL, error) {
	st, err := store.OpenSQL(dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	applied, err := st.Migrate(ctx)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate session store: %w", err)
	}
	if applied > 0 {
		logger.Info("applied migrations", zap.Int("count", applied), zap.Int("schema_version", store.SchemaVersion()))
	}
	return st, nil
}

// newCacheBackend returns the local cache, tiered over redis when configured.
func newCacheBackend(ctx context.Context, config *Config) (cache.Backend, *cache.Redis, error) {
	local := cache.NewMemory(config.Cache.LocalTTL, config.Cache.CleanupInterval)
	if strings.TrimSpace(config.Redis.URL) == "" {
		return local, nil, nil
	}

	shared, err := cache.NewRedis(ctx, config.Redis.URL, config.Redis.Prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis cache: %w", err)
	}
	return cache.NewTiered(local, shared, config.Cache.LocalTTL), shared, nil
}

func newResumeStore(ctx context.Context, config *Config, st *store.SQL, logger *zap.Logger, svc *services) (resume.Store, error) {
	cfg := config.Resumes
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "sql":
		db := st.DB()
		if cfg.DSN != "" {
			other, err := store.OpenSQL(cfg.DSN, logger)
			if err != nil {
				return nil, fmt.Errorf("open resume database: %w", err)
			}
			svc.closers = append(svc.closers, other.Close)
			db = other.DB()
		}
		return sqlResumes(ctx, db)
	case "http":
		token, err := secrets.Load(secrets.Source{
			Name:  "resume gateway token",
			File:  cfg.TokenFile,
			Value: cfg.Token,
			Env:   envPrefix + "_RESUMES_TOKEN",
		})
		if err != nil {
			return nil, err
		}
		if cfg.GatewayURL == "" {
			return nil, errors.New("resumes.gateway-url is required for the http backend")
		}
		gw := resume.NewGateway(cfg.GatewayURL, token, logger)
		if cfg.UserAgent != "" {
			gw.UserAgent = cfg.UserAgent
		}
		return gw, nil
	case "mongo":
		if cfg.Mongo.URI == "" {
			return nil, errors.New("resumes.mongo.uri is required for the mongo backend")
		}
		m, err := resume.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, func() error { return m.Close(context.Background()) })
		svc.checks = append(svc.checks, health.NewPing(health.NameResumes, m, map[string]string{"backend": "mongo"}))
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported resumes backend: %s", cfg.Backend)
	}
}

func sqlResumes(ctx context.Context, db *sql.DB) (resume.Store, error) {
	r := resume.NewSQL(db)
	if err := r.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("prepare resumes table: %w", err)
	}
	return r, nil
}

func newAI(ctx context.Context, cfg AIConfig, logger *zap.Logger) (ai.QuestionGenerator, ai.AnswerScorer, string, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, nil, "", fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	generator, err := gemini.NewGenerator(ctx, gemini.Options{
		APIKey:        apiKey,
		Model:         cfg.Gemini.Model,
		MaxQuotaDelay: cfg.MaxDelay,
	}, logger)
	if err != nil {
		return nil, nil, "", err
	}

	return gemini.NewQuestionWriter(generator, logger, cfg.Gemini.MaxLogLength),
		gemini.NewScorer(generator, logger, cfg.Gemini.MaxLogLength),
		generator.Model(),
		nil
}

func newPolicy(cfg AIConfig) adapter.Policy {
	policy := adapter.Policy{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		policy.Limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return policy
}
