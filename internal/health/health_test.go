package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRunAggregatesStatuses(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	ok := NewPing(NameDatabase, pingFunc(func(context.Context) error { return nil }), map[string]string{"dialect": "sqlite"})
	broken := NewPing(NameRedis, pingFunc(func(context.Context) error { return errors.New("connection refused") }), nil)
	missing := NewPing(NameResumes, nil, nil)

	report := Run(context.Background(), zap.New(core), time.Second, ok, broken, missing)

	if report.Healthy {
		t.Fatal("report should be unhealthy")
	}
	if len(report.Checks) != 3 {
		t.Fatalf("checks = %d", len(report.Checks))
	}

	db := report.Checks[0]
	if !db.Healthy || db.Details["dialect"] != "sqlite" {
		t.Fatalf("db status = %+v", db)
	}
	if report.Checks[1].Healthy || report.Checks[1].Error != "connection refused" {
		t.Fatalf("redis status = %+v", report.Checks[1])
	}
	if report.Checks[2].Enabled || report.Checks[2].Reason != "not configured" {
		t.Fatalf("resumes status = %+v", report.Checks[2])
	}

	if logs.FilterMessage("health check failed").Len() != 1 {
		t.Fatalf("expected one failure log, got %d", logs.Len())
	}
}

func TestDisabledChecksKeepReportHealthy(t *testing.T) {
	checks := []Check{
		NewPing(NameDatabase, pingFunc(func(context.Context) error { return nil }), nil),
		NewPing(NameRedis, pingFunc(func(context.Context) error { return errors.New("down") }), nil),
	}
	DisableByName(checks, NameRedis, "redis disabled in config")

	report := Run(context.Background(), nil, 0, checks...)
	if !report.Healthy {
		t.Fatalf("report = %+v", report)
	}
	if report.Checks[1].Reason != "redis disabled in config" {
		t.Fatalf("reason = %q", report.Checks[1].Reason)
	}
}

func TestRunAppliesTimeout(t *testing.T) {
	slow := NewPing(NameDatabase, pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), nil)

	report := Run(context.Background(), nil, 10*time.Millisecond, slow)
	if report.Healthy {
		t.Fatal("slow check should fail")
	}
	if report.Checks[0].Error != context.DeadlineExceeded.Error() {
		t.Fatalf("error = %q", report.Checks[0].Error)
	}
}

func TestAICheck(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		enabled  bool
		healthy  bool
	}{
		{name: "configured", provider: "gemini", model: "gemini-2.5-flash", enabled: true, healthy: true},
		{name: "missing model", provider: "gemini", enabled: true},
		{name: "no provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewAI(tt.provider, tt.model)
			if c.IsEnabled() != tt.enabled {
				t.Fatalf("enabled = %v", c.IsEnabled())
			}
			report := Run(context.Background(), nil, time.Second, c)
			if tt.enabled && report.Checks[0].Healthy != tt.healthy {
				t.Fatalf("status = %+v", report.Checks[0])
			}
		})
	}
}

func TestFind(t *testing.T) {
	checks := []Check{NewAI("gemini", "m"), NewPing(NameDatabase, nil, nil)}
	if c, ok := Find(checks, NameDatabase); !ok || c.Name() != NameDatabase {
		t.Fatal("db check not found")
	}
	if _, ok := Find(checks, NameRedis); ok {
		t.Fatal("unexpected redis check")
	}
}
