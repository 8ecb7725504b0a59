package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migration struct {
	version    int
	name       string
	statements func(d dialect) []string
}

// Questions, answers and feedback are sub-records keyed by (session, question)
// so the write-once rules are backed by primary keys. interview_active holds
// one row per active (user, resume) pair and guards duplicate starts.
var migrations = []migration{
	{
		version: 1,
		name:    "create interview tables",
		statements: func(d dialect) []string {
			return []string{
				fmt.Sprintf(`CREATE TABLE interview_sessions (
					id %s,
					session_id VARCHAR(36) NOT NULL UNIQUE,
					user_id BIGINT NOT NULL,
					resume_id BIGINT NOT NULL,
					status VARCHAR(16) NOT NULL,
					version BIGINT NOT NULL DEFAULT 1,
					created_at BIGINT NOT NULL,
					started_at BIGINT NULL,
					completed_at BIGINT NULL
				)`, d.primaryKey),
				`CREATE INDEX idx_interview_sessions_user ON interview_sessions (user_id)`,
				`CREATE TABLE interview_questions (
					session_pk BIGINT NOT NULL,
					question_id INT NOT NULL,
					position INT NOT NULL,
					text TEXT NOT NULL,
					topic VARCHAR(255) NOT NULL DEFAULT '',
					PRIMARY KEY (session_pk, question_id)
				)`,
				`CREATE TABLE interview_answers (
					session_pk BIGINT NOT NULL,
					question_id INT NOT NULL,
					answer TEXT NOT NULL,
					submitted_at BIGINT NOT NULL,
					PRIMARY KEY (session_pk, question_id)
				)`,
				`CREATE TABLE interview_feedback (
					session_pk BIGINT NOT NULL,
					question_id INT NOT NULL,
					feedback TEXT NOT NULL,
					score INT NOT NULL,
					created_at BIGINT NOT NULL,
					PRIMARY KEY (session_pk, question_id)
				)`,
				`CREATE TABLE interview_active (
					user_id BIGINT NOT NULL,
					resume_id BIGINT NOT NULL,
					session_pk BIGINT NOT NULL,
					PRIMARY KEY (user_id, resume_id)
				)`,
			}
		},
	},
	{
		version: 2,
		name:    "add cancelled_at",
		statements: func(dialect) []string {
			return []string{`ALTER TABLE interview_sessions ADD COLUMN cancelled_at BIGINT NULL`}
		},
	},
}

// Migrate applies pending schema migrations and returns the resulting version.
func (s *SQL) Migrate(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT NOT NULL PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		applied_at BIGINT NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return 0, fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan schema version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read schema_migrations: %w", err)
	}

	current := 0
	for _, m := range migrations {
		if applied[m.version] {
			current = m.version
			continue
		}

		s.logger.Info("applying schema migration",
			zap.Int("version", m.version),
			zap.String("name", m.name),
			zap.String("dialect", s.dialect.name),
		)

		for _, stmt := range m.statements(s.dialect) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return current, fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.version, m.name, time.Now().UnixMicro(),
		); err != nil {
			return current, fmt.Errorf("record migration %d: %w", m.version, err)
		}
		current = m.version
	}

	return current, nil
}

// SchemaVersion is the latest migration this build knows about.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}
