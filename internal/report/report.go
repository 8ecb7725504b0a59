// Package report assembles read-side views of sessions: the final report of
// a completed interview and the progress view of any session. Both are pure
// functions of the session value.
package report

import (
	"fmt"
	"time"

	"github.com/spigell/interviewpilot/internal/interview"
)

type AnswerFeedback struct {
	QuestionID int    `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Feedback   string `json:"feedback"`
	Score      int    `json:"score"`
}

type Report struct {
	InterviewID     int64            `json:"interview_id"`
	SessionID       string           `json:"session_id"`
	Status          interview.Status `json:"status"`
	OverallScore    int              `json:"overall_score"`
	AnswersFeedback []AnswerFeedback `json:"answers_feedback"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at"`
}

// Build returns the report of a completed session, feedback in question
// order. Other statuses fail with interview.ErrInvalidState.
func Build(s *interview.Session) (*Report, error) {
	if s.Status != interview.StatusCompleted {
		return nil, fmt.Errorf("report for %s session: %w", s.Status, interview.ErrInvalidState)
	}

	items := make([]AnswerFeedback, 0, len(s.Questions))
	scores := make([]int, 0, len(s.Questions))
	for _, q := range s.Questions {
		a, answered := s.Answers[q.ID]
		fb, scored := s.Feedback[q.ID]
		if !answered || !scored {
			return nil, fmt.Errorf("%w: completed session %s lacks feedback for question %d", interview.ErrCorrupt, s.SessionID, q.ID)
		}
		items = append(items, AnswerFeedback{
			QuestionID: q.ID,
			Question:   q.Text,
			Answer:     a.Text,
			Feedback:   fb.Text,
			Score:      fb.Score,
		})
		scores = append(scores, fb.Score)
	}

	return &Report{
		InterviewID:     s.ID,
		SessionID:       s.SessionID,
		Status:          s.Status,
		OverallScore:    OverallScore(scores),
		AnswersFeedback: items,
		CreatedAt:       s.CreatedAt,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
	}, nil
}

// OverallScore is the mean of scores rounded to the nearest integer, ties up.
// Scores are non-negative, so integer arithmetic is exact. No scores yields 0.
func OverallScore(scores []int) int {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	n := len(scores)
	return (2*sum + n) / (2 * n)
}
