package adapter

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/ai"
	"github.com/spigell/interviewpilot/internal/interview"
	"github.com/spigell/interviewpilot/internal/resume"
)

// Capability names used in logs and metrics.
const (
	CapabilityQuestions = "questions"
	CapabilityScoring   = "scoring"
	CapabilityResumes   = "resumes"
)

// Questions turns generator output into a validated question set with ids
// 1..n in generator order.
type Questions struct {
	generator ai.QuestionGenerator
	caller    *Caller
}

func NewQuestions(generator ai.QuestionGenerator, policy Policy, logger *zap.Logger, observer Observer) *Questions {
	return &Questions{
		generator: generator,
		caller:    NewCaller(CapabilityQuestions, policy, logger, observer),
	}
}

// Generate fails with interview.ErrGenerationFailed once retries are
// exhausted and with an interview.ErrUpstreamRejected error on rejection.
func (q *Questions) Generate(ctx context.Context, rc ai.ResumeContext, count int) ([]interview.Question, error) {
	generated, err := Do(ctx, q.caller, func(ctx context.Context) ([]ai.GeneratedQuestion, error) {
		return q.generator.GenerateQuestions(ctx, rc, count)
	})
	if err != nil {
		return nil, failure(err, interview.ErrGenerationFailed)
	}

	if len(generated) > count {
		generated = generated[:count]
	}
	questions := make([]interview.Question, 0, len(generated))
	for i, g := range generated {
		questions = append(questions, interview.Question{ID: i + 1, Text: g.Text, Topic: g.Topic})
	}
	if err := interview.ValidateQuestions(questions); err != nil {
		return nil, fmt.Errorf("%w: %w", interview.ErrUpstreamRejected, err)
	}
	return questions, nil
}

// Scores grades answers and normalizes scores to integers in 0..100.
type Scores struct {
	scorer ai.AnswerScorer
	caller *Caller
}

func NewScores(scorer ai.AnswerScorer, policy Policy, logger *zap.Logger, observer Observer) *Scores {
	return &Scores{
		scorer: scorer,
		caller: NewCaller(CapabilityScoring, policy, logger, observer),
	}
}

// Score fails with interview.ErrScoringFailed once retries are exhausted.
// The returned feedback has no CreatedAt; the engine stamps it.
func (s *Scores) Score(ctx context.Context, question, answer string) (interview.Feedback, error) {
	assessment, err := Do(ctx, s.caller, func(ctx context.Context) (*ai.Assessment, error) {
		return s.scorer.ScoreAnswer(ctx, question, answer)
	})
	if err != nil {
		return interview.Feedback{}, failure(err, interview.ErrScoringFailed)
	}
	if assessment == nil {
		return interview.Feedback{}, fmt.Errorf("empty assessment: %w", interview.ErrUpstreamRejected)
	}
	return interview.Feedback{
		Text:  assessment.Feedback,
		Score: NormalizeScore(assessment.Score),
	}, nil
}

// NormalizeScore rounds half away from zero and clamps to 0..MaxScore.
// NaN becomes 0.
func NormalizeScore(score float64) int {
	if math.IsNaN(score) {
		return 0
	}
	rounded := math.Round(score)
	switch {
	case rounded < 0:
		return 0
	case rounded > interview.MaxScore:
		return interview.MaxScore
	default:
		return int(rounded)
	}
}

// Resumes guards a resume store with the adapter policy.
type Resumes struct {
	store  resume.Store
	caller *Caller
}

func NewResumes(store resume.Store, policy Policy, logger *zap.Logger, observer Observer) *Resumes {
	return &Resumes{
		store:  store,
		caller: NewCaller(CapabilityResumes, policy, logger, observer),
	}
}

func (r *Resumes) Get(ctx context.Context, id int64) (*resume.Resume, error) {
	res, err := Do(ctx, r.caller, func(ctx context.Context) (*resume.Resume, error) {
		return r.store.Get(ctx, id)
	})
	if err != nil {
		return nil, failure(err, interview.ErrUpstreamUnavailable)
	}
	return res, nil
}

// failure keeps permanent and caller errors as they are and tags everything
// else with the capability's unavailability error.
func failure(err, unavailable error) error {
	if IsPermanent(err) {
		return err
	}
	return fmt.Errorf("%w: %w", unavailable, err)
}
