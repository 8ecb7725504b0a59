package resume

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/spigell/interviewpilot/internal/interview"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemory(Resume{ID: 1, UserID: 2, Skills: []string{"Go"}})

	r, err := m.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	r.Skills[0] = "mutated"

	again, _ := m.Get(context.Background(), 1)
	if again.Skills[0] != "Go" {
		t.Fatalf("store must hand out copies")
	}

	if _, err := m.Get(context.Background(), 5); !errors.Is(err, interview.ErrResumeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "resumes.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	s := NewSQL(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	in := Resume{ID: 3, UserID: 9, Filename: "cv.txt", ExtractedText: "Rust and Go", Skills: []string{"Rust", "Go"}}
	if err := s.Put(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}
	in.ExtractedText = "Go only"
	if err := s.Put(ctx, in); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := s.Get(ctx, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != 9 || got.ExtractedText != "Go only" || len(got.Skills) != 2 || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected resume: %+v", got)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO resumes (id, user_id, filename) VALUES (4, 1, 'x')`); err != nil {
		t.Fatalf("insert bare row: %v", err)
	}
	bare, err := s.Get(ctx, 4)
	if err != nil {
		t.Fatalf("get bare: %v", err)
	}
	if bare.ExtractedText != "" || bare.Skills != nil {
		t.Fatalf("expected empty optional fields, got %+v", bare)
	}

	if _, err := s.Get(ctx, 404); !errors.Is(err, interview.ErrResumeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
