package health

import (
	"context"
	"errors"
)

const (
	NameDatabase = "db"
	NameRedis    = "redis"
	NameAI       = "ai"
	NameResumes  = "resumes"
)

// Pinger is implemented by the session store, the redis cache backend and
// the mongo resume store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

func (t *toggle) Reason() string { return t.reason }

type pingCheck struct {
	toggle
	name    string
	pinger  Pinger
	details map[string]string
}

// NewPing creates a check that pings a backend. A nil pinger yields a
// disabled check.
func NewPing(name string, pinger Pinger, details map[string]string) Check {
	c := &pingCheck{name: name, pinger: pinger, details: details}
	if pinger == nil {
		c.Disable("not configured")
	}
	return c
}

func (c *pingCheck) Name() string { return c.name }

func (c *pingCheck) Run(ctx context.Context) (map[string]string, error) {
	return c.details, c.pinger.Ping(ctx)
}

type aiCheck struct {
	toggle
	provider string
	model    string
}

// NewAI reports the configured AI backend without calling the provider.
func NewAI(provider, model string) Check {
	c := &aiCheck{provider: provider, model: model}
	if provider == "" {
		c.Disable("no ai provider configured")
	}
	return c
}

func (c *aiCheck) Name() string { return NameAI }

func (c *aiCheck) Run(context.Context) (map[string]string, error) {
	details := map[string]string{"provider": c.provider}
	if c.model == "" {
		return details, errors.New("ai model is not set")
	}
	details["model"] = c.model
	return details, nil
}
