// Package resume reads candidate resumes owned by the gateway. Resumes are
// read-only here.
package resume

import (
	"context"
	"sync"
	"time"

	"github.com/spigell/interviewpilot/internal/interview"
)

// Resume is the subset of the gateway resume record interviews rely on.
type Resume struct {
	ID            int64     `json:"id" mapstructure:"id" bson:"id"`
	UserID        int64     `json:"user_id" mapstructure:"user_id" bson:"user_id"`
	Filename      string    `json:"filename" mapstructure:"filename" bson:"filename"`
	ExtractedText string    `json:"extracted_text" mapstructure:"extracted_text" bson:"extracted_text"`
	Skills        []string  `json:"skills" mapstructure:"skills" bson:"skills"`
	VectorID      string    `json:"vector_id" mapstructure:"vector_id" bson:"vector_id"`
	CreatedAt     time.Time `json:"created_at" mapstructure:"-" bson:"created_at"`
}

// Store looks resumes up by id. Missing resumes yield interview.ErrResumeNotFound.
type Store interface {
	Get(ctx context.Context, id int64) (*Resume, error)
	Name() string
}

// Memory is a Store kept in process, used by the practice command and tests.
type Memory struct {
	mu      sync.RWMutex
	resumes map[int64]Resume
}

func NewMemory(resumes ...Resume) *Memory {
	m := &Memory{resumes: make(map[int64]Resume, len(resumes))}
	for _, r := range resumes {
		m.resumes[r.ID] = r
	}
	return m
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Put(r Resume) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes[r.ID] = r
}

func (m *Memory) Get(ctx context.Context, id int64) (*Resume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resumes[id]
	if !ok {
		return nil, interview.ErrResumeNotFound
	}
	r.Skills = append([]string(nil), r.Skills...)
	return &r, nil
}
