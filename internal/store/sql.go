package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spigell/interviewpilot/internal/interview"
)

var errStaleVersion = errors.New("stale session version")

// SQL is a Store backed by SQLite or MySQL. Updates are optimistic: the
// session row carries a version and a commit only succeeds when the version
// it was read at is still current.
type SQL struct {
	db       *sql.DB
	dialect  dialect
	logger   *zap.Logger
	now      clock
	attempts int
}

// SQLOption configures the SQL store.
type SQLOption func(*SQL)

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) SQLOption {
	return func(s *SQL) { s.now = now }
}

// WithUpdateAttempts bounds how many times an update is retried after a
// concurrent writer won the race.
func WithUpdateAttempts(n int) SQLOption {
	return func(s *SQL) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// OpenSQL opens the database named by dsn. Call Migrate before use.
func OpenSQL(dsn string, logger *zap.Logger, opts ...SQLOption) (*SQL, error) {
	d, driverDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, driverDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.name, err)
	}

	if d == sqliteDialect {
		// SQLite allows one writer; a single connection keeps writes ordered.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	s := &SQL{
		db:       db,
		dialect:  d,
		logger:   logger.With(zap.String("component", "store"), zap.String("dialect", d.name)),
		attempts: defaultUpdateAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB exposes the underlying handle for components sharing the database.
func (s *SQL) DB() *sql.DB { return s.db }

// Dialect reports "sqlite" or "mysql".
func (s *SQL) Dialect() string { return s.dialect.name }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Create(ctx context.Context, userID, resumeID int64) (*interview.Session, error) {
	sess := interview.New(newSessionID(), userID, resumeID, s.now.now().Truncate(time.Microsecond))
	sess.Version = 1

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx,
			`SELECT session_pk FROM interview_active WHERE user_id = ? AND resume_id = ?`,
			userID, resumeID,
		).Scan(&existing)
		switch {
		case err == nil:
			return interview.ErrDuplicateSession
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check active session: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO interview_sessions (session_id, user_id, resume_id, status, version, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sess.SessionID, userID, resumeID, sess.Status.String(), sess.Version, sess.CreatedAt.UnixMicro(),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if sess.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("session id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO interview_active (user_id, resume_id, session_pk) VALUES (?, ?, ?)`,
			userID, resumeID, sess.ID,
		); err != nil {
			return fmt.Errorf("claim active session: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, interview.ErrDuplicateSession) {
			return nil, err
		}
		// A concurrent start may have claimed the guard between our check and insert.
		if s.hasActive(ctx, userID, resumeID) {
			return nil, interview.ErrDuplicateSession
		}
		return nil, err
	}

	return sess, nil
}

func (s *SQL) hasActive(ctx context.Context, userID, resumeID int64) bool {
	var pk int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_pk FROM interview_active WHERE user_id = ? AND resume_id = ?`,
		userID, resumeID,
	).Scan(&pk)
	return err == nil
}

func (s *SQL) Get(ctx context.Context, sessionID string) (*interview.Session, error) {
	var sess *interview.Session
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		sess, err = loadSession(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQL) Update(ctx context.Context, sessionID string, mutate Mutator) (*interview.Session, error) {
	for attempt := 1; ; attempt++ {
		prev, err := s.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		next := prev.Clone()
		if err := mutate(next); err != nil {
			return nil, err
		}
		if err := interview.CheckUpdate(prev, next); err != nil {
			return nil, err
		}
		truncateTimes(next)

		err = s.withTx(ctx, func(tx *sql.Tx) error {
			return commitSession(ctx, tx, prev, next)
		})
		if err == nil {
			next.Version = prev.Version + 1
			return next, nil
		}
		if !errors.Is(err, errStaleVersion) {
			return nil, err
		}

		s.logger.Debug("session changed concurrently",
			zap.String("session_id", sessionID),
			zap.Int("attempt", attempt),
		)
		if attempt >= s.attempts {
			return nil, fmt.Errorf("update session %s after %d attempts: %w", sessionID, attempt, interview.ErrConflict)
		}
	}
}

func (s *SQL) ListForUser(ctx context.Context, userID int64) ([]interview.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.session_id, s.resume_id, s.status, s.created_at, s.started_at, s.completed_at,
			(SELECT COUNT(*) FROM interview_questions q WHERE q.session_pk = s.id),
			(SELECT COUNT(*) FROM interview_answers a WHERE a.session_pk = s.id)
		FROM interview_sessions s
		WHERE s.user_id = ?
		ORDER BY s.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []interview.Summary{}
	for rows.Next() {
		var (
			sum                interview.Summary
			status             string
			created            int64
			started, completed sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.ResumeID, &status, &created,
			&started, &completed, &sum.Questions, &sum.Answered); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		if sum.Status, err = interview.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("session %s: %w", sum.SessionID, err)
		}
		sum.CreatedAt = fromMicros(created)
		sum.StartedAt = fromNullMicros(started)
		sum.CompletedAt = fromNullMicros(completed)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return summaries, nil
}

func (s *SQL) ListStale(ctx context.Context, createdBefore time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id
		FROM interview_active a
		JOIN interview_sessions s ON s.id = a.session_pk
		WHERE s.created_at < ?`, createdBefore.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SQL) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func loadSession(ctx context.Context, tx *sql.Tx, sessionID string) (*interview.Session, error) {
	var (
		sess                          interview.Session
		status                        string
		created                       int64
		started, completed, cancelled sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, session_id, user_id, resume_id, status, version, created_at, started_at, completed_at, cancelled_at
		FROM interview_sessions WHERE session_id = ?`, sessionID,
	).Scan(&sess.ID, &sess.SessionID, &sess.UserID, &sess.ResumeID, &status, &sess.Version,
		&created, &started, &completed, &cancelled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interview.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if sess.Status, err = interview.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	sess.CreatedAt = fromMicros(created)
	sess.StartedAt = fromNullMicros(started)
	sess.CompletedAt = fromNullMicros(completed)
	sess.CancelledAt = fromNullMicros(cancelled)
	sess.Answers = make(map[int]interview.Answer)
	sess.Feedback = make(map[int]interview.Feedback)

	if err := loadQuestions(ctx, tx, &sess); err != nil {
		return nil, err
	}
	if err := loadAnswers(ctx, tx, &sess); err != nil {
		return nil, err
	}
	if err := loadFeedback(ctx, tx, &sess); err != nil {
		return nil, err
	}

	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func loadQuestions(ctx context.Context, tx *sql.Tx, sess *interview.Session) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT question_id, text, topic FROM interview_questions WHERE session_pk = ? ORDER BY position`,
		sess.ID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q interview.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Topic); err != nil {
			return fmt.Errorf("scan question: %w", err)
		}
		sess.Questions = append(sess.Questions, q)
	}
	return rows.Err()
}

func loadAnswers(ctx context.Context, tx *sql.Tx, sess *interview.Session) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT question_id, answer, submitted_at FROM interview_answers WHERE session_pk = ?`,
		sess.ID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        int
			a         interview.Answer
			submitted int64
		)
		if err := rows.Scan(&id, &a.Text, &submitted); err != nil {
			return fmt.Errorf("scan answer: %w", err)
		}
		a.SubmittedAt = fromMicros(submitted)
		sess.Answers[id] = a
	}
	return rows.Err()
}

func loadFeedback(ctx context.Context, tx *sql.Tx, sess *interview.Session) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT question_id, feedback, score, created_at FROM interview_feedback WHERE session_pk = ?`,
		sess.ID)
	if err != nil {
		return fmt.Errorf("load feedback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      int
			fb      interview.Feedback
			created int64
		)
		if err := rows.Scan(&id, &fb.Text, &fb.Score, &created); err != nil {
			return fmt.Errorf("scan feedback: %w", err)
		}
		fb.CreatedAt = fromMicros(created)
		sess.Feedback[id] = fb
	}
	return rows.Err()
}

// commitSession writes the difference between prev and next. Sub-records are
// append-only, so only new rows are inserted.
func commitSession(ctx context.Context, tx *sql.Tx, prev, next *interview.Session) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE interview_sessions
		SET status = ?, version = version + 1, started_at = ?, completed_at = ?, cancelled_at = ?
		WHERE id = ? AND version = ?`,
		next.Status.String(), nullMicros(next.StartedAt), nullMicros(next.CompletedAt), nullMicros(next.CancelledAt),
		next.ID, prev.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return errStaleVersion
	}

	if len(prev.Questions) == 0 {
		for pos, q := range next.Questions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO interview_questions (session_pk, question_id, position, text, topic) VALUES (?, ?, ?, ?, ?)`,
				next.ID, q.ID, pos, q.Text, q.Topic,
			); err != nil {
				return fmt.Errorf("insert question %d: %w", q.ID, err)
			}
		}
	}

	for id, a := range next.Answers {
		if _, ok := prev.Answers[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO interview_answers (session_pk, question_id, answer, submitted_at) VALUES (?, ?, ?, ?)`,
			next.ID, id, a.Text, a.SubmittedAt.UnixMicro(),
		); err != nil {
			return fmt.Errorf("insert answer %d: %w", id, err)
		}
	}

	for id, fb := range next.Feedback {
		if _, ok := prev.Feedback[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO interview_feedback (session_pk, question_id, feedback, score, created_at) VALUES (?, ?, ?, ?, ?)`,
			next.ID, id, fb.Text, fb.Score, fb.CreatedAt.UnixMicro(),
		); err != nil {
			return fmt.Errorf("insert feedback %d: %w", id, err)
		}
	}

	if prev.Status.Active() && !next.Status.Active() {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM interview_active WHERE session_pk = ?`, next.ID,
		); err != nil {
			return fmt.Errorf("release active session: %w", err)
		}
	}

	return nil
}

func truncateTimes(s *interview.Session) {
	for id, a := range s.Answers {
		a.SubmittedAt = a.SubmittedAt.Truncate(time.Microsecond)
		s.Answers[id] = a
	}
	for id, fb := range s.Feedback {
		fb.CreatedAt = fb.CreatedAt.Truncate(time.Microsecond)
		s.Feedback[id] = fb
	}
	for _, t := range []*time.Time{s.StartedAt, s.CompletedAt, s.CancelledAt} {
		if t != nil {
			*t = t.Truncate(time.Microsecond)
		}
	}
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func fromNullMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}
