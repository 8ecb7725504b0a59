package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spigell/interviewpilot/internal/interview"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			open: func(t *testing.T) Store {
				return NewMemory(func() time.Time { return testNow })
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) Store {
				return openSQLite(t)
			},
		},
	}
}

func openSQLite(t *testing.T) *SQL {
	t.Helper()
	s, err := OpenSQL(filepath.Join(t.TempDir(), "interviews.db"), zaptest.NewLogger(t),
		WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func testQuestions() []interview.Question {
	return []interview.Question{
		{ID: 1, Text: "Explain goroutines", Topic: "go"},
		{ID: 2, Text: "What is a channel?", Topic: "go"},
	}
}

func startSession(t *testing.T, st Store, userID, resumeID int64) *interview.Session {
	t.Helper()
	ctx := context.Background()
	s, err := st.Create(ctx, userID, resumeID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s, err = st.Update(ctx, s.SessionID, func(s *interview.Session) error {
		return s.Start(testQuestions(), testNow)
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func answer(id int, text string, score int) interview.Mutator {
	return func(s *interview.Session) error {
		if _, err := s.Answerable(id); err != nil {
			return err
		}
		return s.RecordAnswer(id, text, interview.Feedback{Text: "ok", Score: score, CreatedAt: testNow}, testNow)
	}
}

func TestCreateAndGet(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			ctx := context.Background()

			created, err := st.Create(ctx, 7, 42)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.Status != interview.StatusPending || created.ID == 0 || created.SessionID == "" {
				t.Fatalf("unexpected created session: %+v", created)
			}

			got, err := st.Get(ctx, created.SessionID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.UserID != 7 || got.ResumeID != 42 || got.Status != interview.StatusPending {
				t.Fatalf("unexpected session: %+v", got)
			}
			if !got.CreatedAt.Equal(testNow) {
				t.Fatalf("created_at = %v, want %v", got.CreatedAt, testNow)
			}
			if len(got.Questions) != 0 || len(got.Answers) != 0 || len(got.Feedback) != 0 {
				t.Fatalf("expected empty sub-records, got %+v", got)
			}

			if _, err := st.Get(ctx, "missing"); !errors.Is(err, interview.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestDuplicateActiveSession(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			ctx := context.Background()

			first, err := st.Create(ctx, 1, 10)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := st.Create(ctx, 1, 10); !errors.Is(err, interview.ErrDuplicateSession) {
				t.Fatalf("expected duplicate session, got %v", err)
			}
			if _, err := st.Create(ctx, 1, 11); err != nil {
				t.Fatalf("other resume should be allowed: %v", err)
			}
			if _, err := st.Create(ctx, 2, 10); err != nil {
				t.Fatalf("other user should be allowed: %v", err)
			}

			if _, err := st.Update(ctx, first.SessionID, func(s *interview.Session) error {
				_, err := s.Cancel(testNow)
				return err
			}); err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if _, err := st.Create(ctx, 1, 10); err != nil {
				t.Fatalf("create after cancel: %v", err)
			}
		})
	}
}

func TestLifecycleRoundTrip(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			ctx := context.Background()
			s := startSession(t, st, 3, 30)

			if _, err := st.Update(ctx, s.SessionID, answer(1, "lightweight threads", 80)); err != nil {
				t.Fatalf("answer 1: %v", err)
			}
			done, err := st.Update(ctx, s.SessionID, answer(2, "typed pipe", 60))
			if err != nil {
				t.Fatalf("answer 2: %v", err)
			}
			if done.Status != interview.StatusCompleted || done.CompletedAt == nil {
				t.Fatalf("expected completed session, got %+v", done)
			}

			got, err := st.Get(ctx, s.SessionID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != interview.StatusCompleted {
				t.Fatalf("status = %s", got.Status)
			}
			if len(got.Questions) != 2 || got.Questions[0].Text != "Explain goroutines" || got.Questions[1].ID != 2 {
				t.Fatalf("questions not preserved: %+v", got.Questions)
			}
			if got.Answers[1].Text != "lightweight threads" || got.Feedback[2].Score != 60 {
				t.Fatalf("answers/feedback not preserved: %+v %+v", got.Answers, got.Feedback)
			}
			if got.Version != done.Version {
				t.Fatalf("version = %d, want %d", got.Version, done.Version)
			}

			if _, err := st.Update(ctx, s.SessionID, answer(1, "again", 10)); !errors.Is(err, interview.ErrInvalidState) {
				t.Fatalf("expected invalid state on completed session, got %v", err)
			}
			// Completion releases the guard.
			if _, err := st.Create(ctx, 3, 30); err != nil {
				t.Fatalf("create after completion: %v", err)
			}
		})
	}
}

func TestUpdateRejectsIllegalChanges(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			ctx := context.Background()
			s := startSession(t, st, 4, 40)

			if _, err := st.Update(ctx, s.SessionID, answer(1, "first", 50)); err != nil {
				t.Fatalf("answer: %v", err)
			}

			_, err := st.Update(ctx, s.SessionID, func(s *interview.Session) error {
				a := s.Answers[1]
				a.Text = "rewritten"
				s.Answers[1] = a
				return nil
			})
			if !errors.Is(err, interview.ErrAlreadyAnswered) {
				t.Fatalf("expected already answered, got %v", err)
			}

			boom := errors.New("boom")
			if _, err := st.Update(ctx, s.SessionID, func(*interview.Session) error { return boom }); !errors.Is(err, boom) {
				t.Fatalf("expected mutator error, got %v", err)
			}

			got, err := st.Get(ctx, s.SessionID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Answers[1].Text != "first" {
				t.Fatalf("rejected update leaked: %+v", got.Answers)
			}

			if _, err := st.Update(ctx, "missing", answer(1, "x", 1)); !errors.Is(err, interview.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestConcurrentAnswersToSameQuestion(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			s := startSession(t, st, 5, 50)

			const workers = 2
			errs := make([]error, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = st.Update(context.Background(), s.SessionID, answer(1, "answer", 70+i))
				}(i)
			}
			wg.Wait()

			var ok, rejected int
			for _, err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, interview.ErrAlreadyAnswered):
					rejected++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if ok != 1 || rejected != 1 {
				t.Fatalf("ok=%d rejected=%d, want exactly one winner", ok, rejected)
			}

			got, err := st.Get(context.Background(), s.SessionID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if len(got.Answers) != 1 || len(got.Feedback) != 1 {
				t.Fatalf("expected a single answer, got %+v", got.Answers)
			}
		})
	}
}

func TestListForUser(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			ctx := context.Background()

			first := startSession(t, st, 9, 1)
			if _, err := st.Update(ctx, first.SessionID, answer(1, "a", 90)); err != nil {
				t.Fatalf("answer: %v", err)
			}
			second, err := st.Create(ctx, 9, 2)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := st.Create(ctx, 8, 1); err != nil {
				t.Fatalf("create other user: %v", err)
			}

			list, err := st.ListForUser(ctx, 9)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("expected 2 sessions, got %d", len(list))
			}
			if list[0].SessionID != second.SessionID || list[1].SessionID != first.SessionID {
				t.Fatalf("expected newest first, got %+v", list)
			}
			if list[1].Questions != 2 || list[1].Answered != 1 || list[1].Status != interview.StatusInProgress {
				t.Fatalf("unexpected summary: %+v", list[1])
			}

			empty, err := st.ListForUser(ctx, 404)
			if err != nil {
				t.Fatalf("list empty: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("expected no sessions, got %+v", empty)
			}
		})
	}
}

func TestListStale(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			ctx := context.Background()

			pending, err := st.Create(ctx, 1, 1)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			running := startSession(t, st, 1, 2)
			cancelled, err := st.Create(ctx, 1, 3)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := st.Update(ctx, cancelled.SessionID, func(s *interview.Session) error {
				_, err := s.Cancel(testNow)
				return err
			}); err != nil {
				t.Fatalf("cancel: %v", err)
			}

			stale, err := st.ListStale(ctx, testNow.Add(time.Minute))
			if err != nil {
				t.Fatalf("list stale: %v", err)
			}
			want := map[string]bool{pending.SessionID: true, running.SessionID: true}
			if len(stale) != len(want) {
				t.Fatalf("stale = %v", stale)
			}
			for _, id := range stale {
				if !want[id] {
					t.Fatalf("unexpected stale session %s", id)
				}
			}

			fresh, err := st.ListStale(ctx, testNow)
			if err != nil {
				t.Fatalf("list stale: %v", err)
			}
			if len(fresh) != 0 {
				t.Fatalf("expected nothing older than creation time, got %v", fresh)
			}
		})
	}
}

func TestSQLRejectsCorruptStatus(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()

	s, err := st.Create(ctx, 1, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.DB().ExecContext(ctx,
		`UPDATE interview_sessions SET status = 'archived' WHERE session_id = ?`, s.SessionID); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	if _, err := st.Get(ctx, s.SessionID); !errors.Is(err, interview.ErrCorrupt) {
		t.Fatalf("expected corrupt error, got %v", err)
	}
	if _, err := st.ListForUser(ctx, 1); !errors.Is(err, interview.ErrCorrupt) {
		t.Fatalf("expected corrupt error from list, got %v", err)
	}
}

func TestSQLStaleVersionConflicts(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	s := startSession(t, st, 1, 1)

	// Every attempt loses the race to a writer that bumps the version.
	_, err := st.Update(ctx, s.SessionID, func(sess *interview.Session) error {
		if _, err := st.DB().ExecContext(ctx,
			`UPDATE interview_sessions SET version = version + 1 WHERE session_id = ?`, sess.SessionID); err != nil {
			return err
		}
		return sess.RecordAnswer(1, "late", interview.Feedback{Text: "ok", Score: 10, CreatedAt: testNow}, testNow)
	})
	if !errors.Is(err, interview.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if interview.CodeOf(err) != interview.CodeConflict || !interview.CodeOf(err).Retryable() {
		t.Fatalf("conflict should be retryable, got %s", interview.CodeOf(err))
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := openSQLite(t)
	v, err := st.Migrate(context.Background())
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if v != SchemaVersion() {
		t.Fatalf("version = %d, want %d", v, SchemaVersion())
	}
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		in      string
		dialect string
		want    string
		wantErr bool
	}{
		{in: "mysql://user:pw@db:3306/app?parseTime=true", dialect: "mysql", want: "user:pw@tcp(db:3306)/app?parseTime=true"},
		{in: "data/app.db", dialect: "sqlite", want: "file:data/app.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{in: "sqlite://x.db?cache=shared", dialect: "sqlite", want: "file:x.db?cache=shared&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		d, dsn, err := parseDSN(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseDSN(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseDSN(%q): %v", tt.in, err)
		}
		if d.name != tt.dialect || dsn != tt.want {
			t.Fatalf("parseDSN(%q) = %s %q, want %s %q", tt.in, d.name, dsn, tt.dialect, tt.want)
		}
	}
}
