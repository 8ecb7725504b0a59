// Package store keeps interview sessions durable and linearizes concurrent
// mutations of the same session.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/interviewpilot/internal/interview"
)

// Mutator changes a session in place. Returning an error aborts the update
// without any visible effect.
type Mutator func(s *interview.Session) error

// Store is the durable record of interview sessions.
type Store interface {
	// Create inserts a pending session. It fails with interview.ErrDuplicateSession
	// when the user already has an active session for the resume.
	Create(ctx context.Context, userID, resumeID int64) (*interview.Session, error)
	// Get returns a fully populated session or interview.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*interview.Session, error)
	// Update atomically applies mutate to the current state of the session and
	// returns the committed result.
	Update(ctx context.Context, sessionID string, mutate Mutator) (*interview.Session, error)
	// ListForUser returns the user's sessions, newest first.
	ListForUser(ctx context.Context, userID int64) ([]interview.Summary, error)
	// ListStale returns ids of active sessions created before the given time.
	ListStale(ctx context.Context, createdBefore time.Time) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

const defaultUpdateAttempts = 3

var newSessionID = func() string {
	return uuid.NewString()
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
