package gemini

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/ai"
	"github.com/spigell/interviewpilot/internal/interview"
)

//go:embed score.md
var scorePrompt string

// Scorer grades a single answer.
type Scorer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewScorer(generator contentGenerator, log *zap.Logger, maxLogLength int) *Scorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{
		generator: generator,
		logger:    log.With(zap.String("capability", "scoring")),
		maxLogLen: maxLogLength,
	}
}

func (s *Scorer) ScoreAnswer(ctx context.Context, question, answer string) (*ai.Assessment, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", interview.ErrInvalidInput)
	}

	payload := map[string]string{
		"question": question,
		"answer":   strings.TrimSpace(answer),
	}

	data, raw, err := exchange(ctx, s.generator, s.logger, s.maxLogLen, scorePrompt, payload)
	if err != nil {
		return nil, err
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		return nil, fmt.Errorf("gemini response has no numeric score: %w", interview.ErrUpstreamRejected)
	}

	feedback := coerceString(data["feedback"])
	if feedback == "" {
		feedback = coerceString(data["reason"])
	}

	return &ai.Assessment{
		Feedback: feedback,
		Score:    score,
		Raw:      raw,
	}, nil
}
