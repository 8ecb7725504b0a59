package report

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spigell/interviewpilot/internal/interview"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func completedSession(t *testing.T, scores ...int) *interview.Session {
	t.Helper()
	s := interview.New("sess-1", 7, 3, testNow)
	s.ID = 11

	questions := make([]interview.Question, len(scores))
	for i := range scores {
		questions[i] = interview.Question{ID: i + 1, Text: "Question " + string(rune('A'+i)), Topic: "go"}
	}
	if err := s.Start(questions, testNow); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i, score := range scores {
		if err := s.RecordAnswer(i+1, "answer", interview.Feedback{Text: "fb", Score: score}, testNow.Add(time.Minute)); err != nil {
			t.Fatalf("answer %d: %v", i+1, err)
		}
	}
	return s
}

func TestOverallScore(t *testing.T) {
	cases := []struct {
		scores []int
		want   int
	}{
		{scores: []int{80, 90, 70, 60, 100}, want: 80},
		{scores: []int{80, 81}, want: 81},
		{scores: []int{80, 80, 81}, want: 80},
		{scores: []int{0, 1}, want: 1},
		{scores: []int{100}, want: 100},
		{scores: []int{0, 0}, want: 0},
		{scores: nil, want: 0},
	}
	for _, tc := range cases {
		if got := OverallScore(tc.scores); got != tc.want {
			t.Fatalf("OverallScore(%v) = %d, want %d", tc.scores, got, tc.want)
		}
	}
}

func TestBuild(t *testing.T) {
	s := completedSession(t, 80, 90, 70, 60, 100)

	r, err := Build(s)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if r.OverallScore != 80 || r.InterviewID != 11 || r.SessionID != "sess-1" {
		t.Fatalf("unexpected report: %+v", r)
	}
	if len(r.AnswersFeedback) != 5 {
		t.Fatalf("expected 5 items, got %d", len(r.AnswersFeedback))
	}
	for i, item := range r.AnswersFeedback {
		if item.QuestionID != i+1 {
			t.Fatalf("items out of question order: %+v", r.AnswersFeedback)
		}
	}
	if r.CompletedAt == nil || r.StartedAt == nil {
		t.Fatalf("timestamps missing: %+v", r)
	}

	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"overall_score":80`, `"answers_feedback"`, `"status":"completed"`, `"interview_id":11`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("json %s missing %s", raw, key)
		}
	}
}

func TestBuildRequiresCompleted(t *testing.T) {
	s := interview.New("sess-2", 1, 1, testNow)
	if _, err := Build(s); !errors.Is(err, interview.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestBuildDetectsCorruption(t *testing.T) {
	s := completedSession(t, 50, 60)
	delete(s.Feedback, 2)
	if _, err := Build(s); !errors.Is(err, interview.ErrCorrupt) {
		t.Fatalf("expected corrupt, got %v", err)
	}
}

func TestBuildProgress(t *testing.T) {
	s := interview.New("sess-3", 1, 9, testNow)
	if err := s.Start([]interview.Question{
		{ID: 1, Text: "A"},
		{ID: 2, Text: "B"},
		{ID: 3, Text: "C"},
	}, testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordAnswer(2, "b", interview.Feedback{Text: "ok", Score: 81}, testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordAnswer(3, "c", interview.Feedback{Text: "ok", Score: 80}, testNow); err != nil {
		t.Fatal(err)
	}

	p := BuildProgress(s)
	if p.Total != 3 || p.Answered != 2 || p.Remaining != 1 {
		t.Fatalf("unexpected counts: %+v", p)
	}
	if p.Questions[0].Answered || p.Questions[0].Score != nil {
		t.Fatalf("question 1 should be open: %+v", p.Questions[0])
	}
	if !p.Questions[1].Answered || *p.Questions[1].Score != 81 {
		t.Fatalf("question 2 should be scored: %+v", p.Questions[1])
	}
	if p.ScoreSoFar == nil || *p.ScoreSoFar != 81 {
		t.Fatalf("score so far = %v", p.ScoreSoFar)
	}

	pending := BuildProgress(interview.New("sess-4", 1, 1, testNow))
	if pending.Total != 0 || pending.ScoreSoFar != nil || pending.Questions == nil {
		t.Fatalf("unexpected pending progress: %+v", pending)
	}
}
