// Package ai defines the contracts of the AI backends used by interviews:
// question generation from a resume and scoring of a single answer.
package ai

import "context"

// ResumeContext is what a question generator knows about the candidate.
type ResumeContext struct {
	ResumeID int64
	Skills   []string
	VectorID string
	Text     string
}

// GeneratedQuestion is one question in generator order. Ids are assigned by
// the caller.
type GeneratedQuestion struct {
	Text  string `json:"question"`
	Topic string `json:"topic"`
}

type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, resume ResumeContext, count int) ([]GeneratedQuestion, error)
}

// Assessment is the scorer's verdict on one answer. Score is on a 0..100
// scale but not yet clamped or rounded.
type Assessment struct {
	Feedback string
	Score    float64
	Raw      string
}

type AnswerScorer interface {
	ScoreAnswer(ctx context.Context, question, answer string) (*Assessment, error)
}
