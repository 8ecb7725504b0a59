package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spigell/interviewpilot/internal/interview"
)

type activeKey struct {
	userID   int64
	resumeID int64
}

type memoryEntry struct {
	mu      sync.Mutex
	session *interview.Session
}

// Memory is a process-local Store. The index lock is held only for lookups;
// updates serialize on a per-session lock.
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[string]*memoryEntry
	byUser   map[int64][]string
	active   map[activeKey]string
	now      clock
}

// NewMemory returns an empty in-memory store. now may be nil.
func NewMemory(now func() time.Time) *Memory {
	return &Memory{
		sessions: make(map[string]*memoryEntry),
		byUser:   make(map[int64][]string),
		active:   make(map[activeKey]string),
		now:      now,
	}
}

func (m *Memory) Create(ctx context.Context, userID, resumeID int64) (*interview.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := activeKey{userID: userID, resumeID: resumeID}
	if existing, ok := m.active[key]; ok {
		return nil, fmt.Errorf("session %s is still active for resume %d: %w", existing, resumeID, interview.ErrDuplicateSession)
	}

	m.nextID++
	s := interview.New(newSessionID(), userID, resumeID, m.now.now())
	s.ID = m.nextID
	s.Version = 1

	m.sessions[s.SessionID] = &memoryEntry{session: s}
	m.byUser[userID] = append(m.byUser[userID], s.SessionID)
	m.active[key] = s.SessionID

	return s.Clone(), nil
}

func (m *Memory) entry(sessionID string) (*memoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", sessionID, interview.ErrSessionNotFound)
	}
	return e, nil
}

func (m *Memory) Get(ctx context.Context, sessionID string) (*interview.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, err := m.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, sessionID string, mutate Mutator) (*interview.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, err := m.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.session
	next := prev.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := interview.CheckUpdate(prev, next); err != nil {
		return nil, err
	}
	next.Version = prev.Version + 1
	e.session = next

	if prev.Status.Active() && !next.Status.Active() {
		m.release(activeKey{userID: next.UserID, resumeID: next.ResumeID}, sessionID)
	}

	return next.Clone(), nil
}

func (m *Memory) release(key activeKey, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[key] == sessionID {
		delete(m.active, key)
	}
}

func (m *Memory) ListForUser(ctx context.Context, userID int64) ([]interview.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	entries := make([]*memoryEntry, 0, len(m.byUser[userID]))
	for _, id := range m.byUser[userID] {
		entries = append(entries, m.sessions[id])
	}
	m.mu.Unlock()

	summaries := make([]interview.Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		summaries = append(summaries, e.session.Summary())
		e.mu.Unlock()
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID > summaries[j].ID
	})
	return summaries, nil
}

func (m *Memory) ListStale(ctx context.Context, createdBefore time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	entries := make([]*memoryEntry, 0, len(m.active))
	for _, id := range m.active {
		entries = append(entries, m.sessions[id])
	}
	m.mu.Unlock()

	var stale []string
	for _, e := range entries {
		e.mu.Lock()
		if e.session.Status.Active() && e.session.CreatedAt.Before(createdBefore) {
			stale = append(stale, e.session.SessionID)
		}
		e.mu.Unlock()
	}
	sort.Strings(stale)
	return stale, nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }
