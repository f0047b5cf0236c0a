package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry := NewRegistry()
	expiry := &stubJob{name: "gem_term_expiry"}
	cleanup := &stubJob{name: "notification_cleanup"}
	if err := registry.Register(expiry); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(cleanup); err != nil {
		t.Fatalf("register: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != expiry || jobs[1] != cleanup {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "payment_reconcile"}, nil)
	if err := registry.Register(&stubJob{name: "payment_reconcile"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("expected 1 job, got %d", got)
	}
}
