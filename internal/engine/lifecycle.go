package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/ai"
	"github.com/spigell/interviewpilot/internal/cache"
	"github.com/spigell/interviewpilot/internal/interview"
	"github.com/spigell/interviewpilot/internal/logger"
)

// errUnchanged aborts an update that would not change the session.
var errUnchanged = errors.New("session unchanged")

// Cancellation reasons reported to metrics.
const (
	reasonUser             = "user"
	reasonExpired          = "expired"
	reasonGenerationFailed = "generation_failed"
)

type StartResult struct {
	InterviewID int64                `json:"interview_id"`
	SessionID   string               `json:"session_id"`
	Questions   []interview.Question `json:"questions"`
}

type AnswerResult struct {
	QuestionID int              `json:"question_id"`
	Question   string           `json:"question"`
	Answer     string           `json:"answer"`
	Feedback   string           `json:"feedback"`
	Score      int              `json:"score"`
	Status     interview.Status `json:"status"`
	Remaining  int              `json:"remaining"`
}

// Start creates a session for the caller's resume, generates its questions
// and moves it in progress. topicCount 0 selects the configured default.
//
// If generation fails the pending session is cancelled, so no session with
// questions exists and the caller may start again.
func (e *Engine) Start(ctx context.Context, userID, resumeID int64, topicCount int) (*StartResult, error) {
	res, err := e.start(ctx, userID, resumeID, topicCount)
	return res, e.fail("start", err)
}

func (e *Engine) start(ctx context.Context, userID, resumeID int64, topicCount int) (*StartResult, error) {
	if topicCount == 0 {
		topicCount = e.cfg.DefaultTopicCount
	}
	if topicCount < 0 || topicCount > e.cfg.MaxTopicCount {
		return nil, fmt.Errorf("topic count %d outside 1..%d: %w", topicCount, e.cfg.MaxTopicCount, interview.ErrInvalidInput)
	}

	r, err := e.resumes.Get(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	// Someone else's resume is reported as missing so ids cannot be probed.
	if r.UserID != userID {
		return nil, fmt.Errorf("resume %d: %w", resumeID, interview.ErrResumeNotFound)
	}

	sess, err := e.store.Create(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}
	log := logger.WithSession(e.logger, sess.SessionID, userID).With(zap.Int64(logger.FieldResume, resumeID))

	rc := ai.ResumeContext{
		ResumeID: r.ID,
		Skills:   r.Skills,
		VectorID: r.VectorID,
		Text:     r.ExtractedText,
	}
	fp := cache.NewFingerprint(cache.KindQuestions, cache.ContentHash(r.ExtractedText), strconv.Itoa(topicCount))

	questions, err := cache.Fetch(ctx, e.cache, fp, e.cfg.QuestionsTTL, func(ctx context.Context) ([]interview.Question, error) {
		return e.questions.Generate(ctx, rc, topicCount)
	})
	if err == nil {
		sess, err = e.store.Update(ctx, sess.SessionID, func(s *interview.Session) error {
			return s.Start(questions, e.clock())
		})
	}
	if err != nil {
		log.Warn("interview start failed, cancelling session", zap.Error(err))
		e.abandon(ctx, sess.SessionID, log)
		return nil, err
	}

	e.metrics.SessionStarted()
	log.Info("interview started", zap.Int("questions", len(sess.Questions)))

	return &StartResult{
		InterviewID: sess.ID,
		SessionID:   sess.SessionID,
		Questions:   sess.Questions,
	}, nil
}

// abandon cancels a session whose start failed. It runs even when the
// request context is already done.
func (e *Engine) abandon(ctx context.Context, sessionID string, log *zap.Logger) {
	changed, err := e.cancel(context.WithoutCancel(ctx), sessionID)
	if err != nil {
		log.Error("cancel abandoned session", zap.Error(err))
		return
	}
	if changed {
		e.metrics.SessionCancelled(reasonGenerationFailed)
	}
}

// SubmitAnswer scores the answer and records it with its feedback. Scoring
// happens outside the store update; the update re-checks that the question
// is still open, so a concurrent answer or cancellation wins cleanly and a
// failed scoring call leaves the session untouched.
func (e *Engine) SubmitAnswer(ctx context.Context, userID int64, sessionID string, questionID int, answer string) (*AnswerResult, error) {
	res, err := e.submitAnswer(ctx, userID, sessionID, questionID, answer)
	return res, e.fail("answer", err)
}

func (e *Engine) submitAnswer(ctx context.Context, userID int64, sessionID string, questionID int, answer string) (*AnswerResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("answer must not be empty: %w", interview.ErrInvalidInput)
	}

	sess, err := e.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	q, err := sess.Answerable(questionID)
	if err != nil {
		return nil, err
	}

	log := logger.WithSession(e.logger, sessionID, userID).With(zap.Int(logger.FieldQuestion, questionID))

	fp := cache.NewFingerprint(cache.KindFeedback, q.Text, answer)
	feedback, err := cache.Fetch(ctx, e.cache, fp, e.cfg.FeedbackTTL, func(ctx context.Context) (interview.Feedback, error) {
		return e.scores.Score(ctx, q.Text, answer)
	})
	if err != nil {
		log.Warn("answer scoring failed", zap.Error(err))
		return nil, err
	}

	now := e.clock()
	feedback.CreatedAt = now
	committed, err := e.store.Update(ctx, sessionID, func(s *interview.Session) error {
		return s.RecordAnswer(questionID, answer, feedback, now)
	})
	if err != nil {
		return nil, err
	}

	e.metrics.AnswerScored()
	if committed.Status == interview.StatusCompleted {
		e.metrics.SessionCompleted()
		log.Info("interview completed")
	}
	log.Debug("answer recorded", zap.Int("score", feedback.Score), zap.Int("remaining", committed.Remaining()))

	return &AnswerResult{
		QuestionID: questionID,
		Question:   q.Text,
		Answer:     answer,
		Feedback:   feedback.Text,
		Score:      feedback.Score,
		Status:     committed.Status,
		Remaining:  committed.Remaining(),
	}, nil
}

// Cancel moves the session to Cancelled. Cancelling a cancelled session
// succeeds without change; a completed session fails with ErrInvalidState.
// Recorded answers and feedback are kept.
func (e *Engine) Cancel(ctx context.Context, userID int64, sessionID string) (interview.Status, error) {
	status, err := e.cancelOwned(ctx, userID, sessionID)
	return status, e.fail("cancel", err)
}

func (e *Engine) cancelOwned(ctx context.Context, userID int64, sessionID string) (interview.Status, error) {
	sess, err := e.owned(ctx, userID, sessionID)
	if err != nil {
		return 0, err
	}
	switch sess.Status {
	case interview.StatusCancelled:
		return interview.StatusCancelled, nil
	case interview.StatusCompleted:
		return 0, fmt.Errorf("cancel completed session: %w", interview.ErrInvalidState)
	}

	changed, err := e.cancel(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if changed {
		e.metrics.SessionCancelled(reasonUser)
		logger.WithSession(e.logger, sessionID, userID).Info("interview cancelled")
	}
	return interview.StatusCancelled, nil
}

func (e *Engine) cancel(ctx context.Context, sessionID string) (bool, error) {
	_, err := e.store.Update(ctx, sessionID, func(s *interview.Session) error {
		changed, err := s.Cancel(e.clock())
		if err != nil {
			return err
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
