package interview

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// MaxScore is the upper bound of a per-question score.
const MaxScore = 100

// Question is one generated interview question. Ids are unique within a session.
type Question struct {
	ID    int    `json:"question_id"`
	Text  string `json:"question"`
	Topic string `json:"topic"`
}

// Answer is the write-once answer to one question.
type Answer struct {
	Text        string    `json:"answer"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Feedback is the write-once assessment of one answer.
type Feedback struct {
	Text      string    `json:"feedback"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a fully populated interview attempt.
type Session struct {
	ID        int64
	SessionID string
	UserID    int64
	ResumeID  int64
	Status    Status

	Questions []Question
	Answers   map[int]Answer
	Feedback  map[int]Feedback

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	// Version increases with every committed update.
	Version int64
}

// Summary is the list view of a session.
type Summary struct {
	ID          int64      `json:"interview_id"`
	SessionID   string     `json:"session_id"`
	ResumeID    int64      `json:"resume_id"`
	Status      Status     `json:"status"`
	Questions   int        `json:"questions"`
	Answered    int        `json:"answered"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New returns a pending session with empty question, answer and feedback sets.
func New(sessionID string, userID, resumeID int64, now time.Time) *Session {
	return &Session{
		SessionID: sessionID,
		UserID:    userID,
		ResumeID:  resumeID,
		Status:    StatusPending,
		Answers:   make(map[int]Answer),
		Feedback:  make(map[int]Feedback),
		CreatedAt: now,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Questions = slices.Clone(s.Questions)
	c.Answers = maps.Clone(s.Answers)
	c.Feedback = maps.Clone(s.Feedback)
	if c.Answers == nil {
		c.Answers = make(map[int]Answer)
	}
	if c.Feedback == nil {
		c.Feedback = make(map[int]Feedback)
	}
	c.StartedAt = cloneTime(s.StartedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.CancelledAt = cloneTime(s.CancelledAt)
	return &c
}

func (s *Session) Summary() Summary {
	return Summary{
		ID:          s.ID,
		SessionID:   s.SessionID,
		ResumeID:    s.ResumeID,
		Status:      s.Status,
		Questions:   len(s.Questions),
		Answered:    len(s.Answers),
		CreatedAt:   s.CreatedAt,
		StartedAt:   cloneTime(s.StartedAt),
		CompletedAt: cloneTime(s.CompletedAt),
	}
}

// Question looks up a question by id.
func (s *Session) Question(id int) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Remaining counts assigned questions without an answer.
func (s *Session) Remaining() int {
	n := 0
	for _, q := range s.Questions {
		if _, ok := s.Answers[q.ID]; !ok {
			n++
		}
	}
	return n
}

// Start assigns the question set and moves a pending session in progress.
func (s *Session) Start(questions []Question, now time.Time) error {
	if s.Status != StatusPending {
		return fmt.Errorf("start session in status %s: %w", s.Status, ErrInvalidState)
	}
	if len(s.Questions) != 0 {
		return fmt.Errorf("questions already assigned: %w", ErrInvalidState)
	}
	if err := ValidateQuestions(questions); err != nil {
		return err
	}

	s.Questions = slices.Clone(questions)
	s.Status = StatusInProgress
	s.StartedAt = &now
	return nil
}

// Answerable checks that question id can still be answered and returns it.
func (s *Session) Answerable(questionID int) (Question, error) {
	if s.Status != StatusInProgress {
		return Question{}, fmt.Errorf("answer in status %s: %w", s.Status, ErrInvalidState)
	}
	q, ok := s.Question(questionID)
	if !ok {
		return Question{}, fmt.Errorf("question %d: %w", questionID, ErrUnknownQuestion)
	}
	if _, answered := s.Answers[questionID]; answered {
		return Question{}, fmt.Errorf("question %d: %w", questionID, ErrAlreadyAnswered)
	}
	return q, nil
}

// RecordAnswer stores the answer together with its feedback. Answering the
// last open question completes the session.
func (s *Session) RecordAnswer(questionID int, answer string, feedback Feedback, now time.Time) error {
	if _, err := s.Answerable(questionID); err != nil {
		return err
	}
	if feedback.Score < 0 || feedback.Score > MaxScore {
		return fmt.Errorf("score %d out of range: %w", feedback.Score, ErrInvalidInput)
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = now
	}

	if s.Answers == nil {
		s.Answers = make(map[int]Answer)
	}
	if s.Feedback == nil {
		s.Feedback = make(map[int]Feedback)
	}
	s.Answers[questionID] = Answer{Text: answer, SubmittedAt: now}
	s.Feedback[questionID] = feedback

	if s.Remaining() == 0 {
		s.Status = StatusCompleted
		s.CompletedAt = &now
	}
	return nil
}

// Cancel moves an active session to Cancelled. Cancelling a cancelled session
// is a no-op and reports changed == false.
func (s *Session) Cancel(now time.Time) (changed bool, err error) {
	switch s.Status {
	case StatusCancelled:
		return false, nil
	case StatusCompleted:
		return false, fmt.Errorf("cancel completed session: %w", ErrInvalidState)
	}
	s.Status = StatusCancelled
	s.CancelledAt = &now
	return true, nil
}

// ValidateQuestions checks a question set before it is assigned.
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("empty question set: %w", ErrInvalidInput)
	}
	seen := make(map[int]bool, len(questions))
	for _, q := range questions {
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %d: %w", q.ID, ErrInvalidInput)
		}
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("question %d has no text: %w", q.ID, ErrInvalidInput)
		}
		seen[q.ID] = true
	}
	return nil
}

// Validate checks the per-session invariants. A violation means the stored
// record cannot be trusted.
func (s *Session) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("%w: invalid status %d", ErrCorrupt, int(s.Status))
	}
	for id := range s.Answers {
		if _, ok := s.Question(id); !ok {
			return fmt.Errorf("%w: answer for unknown question %d", ErrCorrupt, id)
		}
	}
	for id, fb := range s.Feedback {
		if _, ok := s.Answers[id]; !ok {
			return fmt.Errorf("%w: feedback without answer for question %d", ErrCorrupt, id)
		}
		if fb.Score < 0 || fb.Score > MaxScore {
			return fmt.Errorf("%w: score %d out of range for question %d", ErrCorrupt, fb.Score, id)
		}
	}
	if (s.CompletedAt != nil) != (s.Status == StatusCompleted) {
		return fmt.Errorf("%w: completed_at does not match status %s", ErrCorrupt, s.Status)
	}
	if s.Status == StatusInProgress || s.Status == StatusCompleted {
		if s.StartedAt == nil || len(s.Questions) == 0 {
			return fmt.Errorf("%w: %s session without questions", ErrCorrupt, s.Status)
		}
	}
	if s.Status == StatusPending && (len(s.Questions) != 0 || s.StartedAt != nil) {
		return fmt.Errorf("%w: pending session with questions", ErrCorrupt)
	}
	if s.Status == StatusCompleted && (s.Remaining() != 0 || len(s.Feedback) != len(s.Questions)) {
		return fmt.Errorf("%w: completed session with open questions", ErrCorrupt)
	}
	return nil
}

// CheckUpdate verifies that next is a legal successor of prev: identity is
// unchanged, status follows the lifecycle, questions are immutable once
// assigned and recorded answers and feedback are never altered.
func CheckUpdate(prev, next *Session) error {
	if prev.ID != next.ID || prev.SessionID != next.SessionID || prev.UserID != next.UserID ||
		prev.ResumeID != next.ResumeID || !prev.CreatedAt.Equal(next.CreatedAt) {
		return fmt.Errorf("session identity changed: %w", ErrInvalidState)
	}
	if prev.Status != next.Status && !CanTransition(prev.Status, next.Status) {
		return fmt.Errorf("transition %s -> %s: %w", prev.Status, next.Status, ErrInvalidState)
	}
	if len(prev.Questions) != 0 && !slices.Equal(prev.Questions, next.Questions) {
		return fmt.Errorf("questions are immutable: %w", ErrInvalidState)
	}
	for id, a := range prev.Answers {
		if got, ok := next.Answers[id]; !ok || got != a {
			return fmt.Errorf("answer %d is write-once: %w", id, ErrAlreadyAnswered)
		}
	}
	for id, fb := range prev.Feedback {
		if got, ok := next.Feedback[id]; !ok || got != fb {
			return fmt.Errorf("feedback %d is write-once: %w", id, ErrAlreadyAnswered)
		}
	}
	if len(next.Answers) > len(prev.Answers) && prev.Status != StatusInProgress {
		return fmt.Errorf("answer in status %s: %w", prev.Status, ErrInvalidState)
	}
	return next.Validate()
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
