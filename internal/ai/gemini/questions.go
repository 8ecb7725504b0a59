package gemini

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/ai"
	"github.com/spigell/interviewpilot/internal/interview"
	"github.com/spigell/interviewpilot/internal/logger"
)

//go:embed questions.md
var questionsPrompt string

// maxResumeRunes bounds the resume text sent with a question request.
const maxResumeRunes = 20000

// QuestionWriter generates interview questions from a resume.
type QuestionWriter struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewQuestionWriter(generator contentGenerator, log *zap.Logger, maxLogLength int) *QuestionWriter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &QuestionWriter{
		generator: generator,
		logger:    logger.WithFields(log, zap.String("capability", "questions")),
		maxLogLen: maxLogLength,
	}
}

func (w *QuestionWriter) GenerateQuestions(ctx context.Context, resume ai.ResumeContext, count int) ([]ai.GeneratedQuestion, error) {
	if count <= 0 {
		return nil, fmt.Errorf("question count must be positive: %w", interview.ErrInvalidInput)
	}

	text := resume.Text
	if r := []rune(text); len(r) > maxResumeRunes {
		text = string(r[:maxResumeRunes])
	}

	payload := map[string]any{
		"count":  count,
		"skills": resume.Skills,
		"resume": text,
	}

	data, raw, err := exchange(ctx, w.generator, w.logger, w.maxLogLen, questionsPrompt, payload,
		zap.Int64(logger.FieldResume, resume.ResumeID),
		zap.Int("count", count),
	)
	if err != nil {
		return nil, err
	}

	questions := parseQuestions(data)
	if len(questions) == 0 {
		return nil, fmt.Errorf("gemini returned no questions: %w", interview.ErrUpstreamRejected)
	}
	if len(questions) > count {
		questions = questions[:count]
	}
	if len(questions) < count {
		w.logger.Warn("gemini returned fewer questions than requested",
			zap.Int("requested", count),
			zap.Int("received", len(questions)),
			zap.Int("response_length", len(raw)),
		)
	}
	return questions, nil
}

func parseQuestions(data map[string]any) []ai.GeneratedQuestion {
	items, _ := data["questions"].([]any)

	questions := make([]ai.GeneratedQuestion, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		var q ai.GeneratedQuestion
		switch val := item.(type) {
		case string:
			q.Text = strings.TrimSpace(val)
		case map[string]any:
			q.Text = coerceString(val["question"])
			if q.Text == "" {
				q.Text = coerceString(val["text"])
			}
			q.Topic = coerceString(val["topic"])
		}
		key := strings.ToLower(q.Text)
		if q.Text == "" || seen[key] {
			continue
		}
		seen[key] = true
		questions = append(questions, q)
	}
	return questions
}
