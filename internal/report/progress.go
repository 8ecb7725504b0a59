package report

import (
	"time"

	"github.com/spigell/interviewpilot/internal/interview"
)

type QuestionProgress struct {
	QuestionID int    `json:"question_id"`
	Question   string `json:"question"`
	Topic      string `json:"topic"`
	Answered   bool   `json:"answered"`
	Answer     string `json:"answer,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
	Score      *int   `json:"score,omitempty"`
}

// Progress is the partial view returned instead of a report while a session
// is not completed. It is valid for every status.
type Progress struct {
	InterviewID int64              `json:"interview_id"`
	SessionID   string             `json:"session_id"`
	ResumeID    int64              `json:"resume_id"`
	Status      interview.Status   `json:"status"`
	Total       int                `json:"total"`
	Answered    int                `json:"answered"`
	Remaining   int                `json:"remaining"`
	ScoreSoFar  *int               `json:"score_so_far,omitempty"`
	Questions   []QuestionProgress `json:"questions"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty"`
}

func BuildProgress(s *interview.Session) Progress {
	p := Progress{
		InterviewID: s.ID,
		SessionID:   s.SessionID,
		ResumeID:    s.ResumeID,
		Status:      s.Status,
		Total:       len(s.Questions),
		Questions:   make([]QuestionProgress, 0, len(s.Questions)),
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		CancelledAt: s.CancelledAt,
	}

	var scores []int
	for _, q := range s.Questions {
		qp := QuestionProgress{QuestionID: q.ID, Question: q.Text, Topic: q.Topic}
		if a, ok := s.Answers[q.ID]; ok {
			qp.Answered = true
			qp.Answer = a.Text
			p.Answered++
		}
		if fb, ok := s.Feedback[q.ID]; ok {
			score := fb.Score
			qp.Feedback = fb.Text
			qp.Score = &score
			scores = append(scores, score)
		}
		p.Questions = append(p.Questions, qp)
	}
	p.Remaining = p.Total - p.Answered

	if len(scores) > 0 {
		overall := OverallScore(scores)
		p.ScoreSoFar = &overall
	}
	return p
}
