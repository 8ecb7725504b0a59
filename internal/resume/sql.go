package resume

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/interviewpilot/internal/interview"
)

// SQL reads the gateway's resumes table. Skills are stored as a JSON array.
type SQL struct {
	db *sql.DB
}

func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) Name() string { return "sql" }

func (s *SQL) Get(ctx context.Context, id int64) (*Resume, error) {
	var (
		r                      Resume
		text, skills, vectorID sql.NullString
		created                sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, filename, extracted_text, skills, vector_id, created_at
		FROM resumes WHERE id = ?`, id,
	).Scan(&r.ID, &r.UserID, &r.Filename, &text, &skills, &vectorID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interview.ErrResumeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load resume %d: %w", id, err)
	}

	r.ExtractedText = text.String
	r.VectorID = vectorID.String
	if created.Valid {
		r.CreatedAt = time.Unix(created.Int64, 0).UTC()
	}
	if raw := strings.TrimSpace(skills.String); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &r.Skills); err != nil {
			return nil, fmt.Errorf("resume %d skills: %w", id, err)
		}
	}
	return &r, nil
}

// EnsureSchema creates the resumes table when the service runs on its own
// database, as the practice command does.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS resumes (
		id BIGINT NOT NULL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		filename VARCHAR(255) NOT NULL DEFAULT '',
		extracted_text TEXT NULL,
		skills TEXT NULL,
		vector_id VARCHAR(255) NULL,
		created_at BIGINT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create resumes table: %w", err)
	}
	return nil
}

// Put inserts or replaces a resume.
func (s *SQL) Put(ctx context.Context, r Resume) error {
	skills, err := json.Marshal(r.Skills)
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM resumes WHERE id = ?`, r.ID); err != nil {
		return fmt.Errorf("replace resume %d: %w", r.ID, err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO resumes (id, user_id, filename, extracted_text, skills, vector_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Filename, r.ExtractedText, string(skills), r.VectorID, r.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert resume %d: %w", r.ID, err)
	}
	return nil
}
