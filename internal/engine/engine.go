// Package engine drives interview sessions through their lifecycle. It is the
// only component that changes session status; the store keeps the record and
// the adapters reach the AI backends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/ai"
	"github.com/spigell/interviewpilot/internal/cache"
	"github.com/spigell/interviewpilot/internal/interview"
	"github.com/spigell/interviewpilot/internal/metrics"
	"github.com/spigell/interviewpilot/internal/resume"
	"github.com/spigell/interviewpilot/internal/store"
)

const (
	DefaultTopicCount = 5
	MaxTopicCount     = 20
)

// Config holds the engine's policy knobs.
type Config struct {
	DefaultTopicCount int
	MaxTopicCount     int
	QuestionsTTL      time.Duration
	FeedbackTTL       time.Duration
	// MaxDuration bounds how long a session may stay active. Zero disables expiry.
	MaxDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultTopicCount: DefaultTopicCount,
		MaxTopicCount:     MaxTopicCount,
		QuestionsTTL:      24 * time.Hour,
		FeedbackTTL:       24 * time.Hour,
		MaxDuration:       2 * time.Hour,
	}
}

// QuestionSource produces a validated question set. adapter.Questions implements it.
type QuestionSource interface {
	Generate(ctx context.Context, rc ai.ResumeContext, count int) ([]interview.Question, error)
}

// ScoreSource grades one answer. adapter.Scores implements it.
type ScoreSource interface {
	Score(ctx context.Context, question, answer string) (interview.Feedback, error)
}

// ResumeSource looks resumes up. adapter.Resumes and every resume.Store implement it.
type ResumeSource interface {
	Get(ctx context.Context, id int64) (*resume.Resume, error)
}

// Deps are the collaborators an Engine is built from. Metrics, Logger and
// Now are optional.
type Deps struct {
	Store     store.Store
	Cache     *cache.Cache
	Resumes   ResumeSource
	Questions QuestionSource
	Scores    ScoreSource
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

type Engine struct {
	cfg       Config
	store     store.Store
	cache     *cache.Cache
	resumes   ResumeSource
	questions QuestionSource
	scores    ScoreSource
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func New(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("engine: session store is required")
	case deps.Resumes == nil:
		return nil, errors.New("engine: resume source is required")
	case deps.Questions == nil:
		return nil, errors.New("engine: question source is required")
	case deps.Scores == nil:
		return nil, errors.New("engine: score source is required")
	}

	defaults := DefaultConfig()
	if cfg.DefaultTopicCount <= 0 {
		cfg.DefaultTopicCount = defaults.DefaultTopicCount
	}
	if cfg.MaxTopicCount <= 0 {
		cfg.MaxTopicCount = defaults.MaxTopicCount
	}
	if cfg.DefaultTopicCount > cfg.MaxTopicCount {
		return nil, fmt.Errorf("engine: default topic count %d exceeds maximum %d", cfg.DefaultTopicCount, cfg.MaxTopicCount)
	}
	if cfg.QuestionsTTL <= 0 {
		cfg.QuestionsTTL = defaults.QuestionsTTL
	}
	if cfg.FeedbackTTL <= 0 {
		cfg.FeedbackTTL = defaults.FeedbackTTL
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(nil, deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		cache:     deps.Cache,
		resumes:   deps.Resumes,
		questions: deps.Questions,
		scores:    deps.Scores,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With(zap.String("component", "engine")),
		now:       deps.Now,
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) clock() time.Time { return e.now().UTC() }

// owned loads a session and checks it belongs to userID.
func (e *Engine) owned(ctx context.Context, userID int64, sessionID string) (*interview.Session, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, interview.ErrForbidden)
	}
	return s, nil
}

// fail records a failed operation and returns err unchanged.
func (e *Engine) fail(operation string, err error) error {
	if err != nil {
		e.metrics.OperationFailed(operation, string(interview.CodeOf(err)))
	}
	return err
}
