package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/zenithlabs/nexus/internal/executor"
)

// stubBackend is a minimal Backend for registry tests.
type stubBackend struct {
	name string
}

func (s *stubBackend) Submit(_ context.Context, _ executor.Request) (executor.Result, error) {
	return executor.Result{Kind: executor.KindSuccess, Backend: s.name}, nil
}

func (s *stubBackend) Capabilities() executor.Capabilities {
	return executor.Capabilities{Name: s.name, Languages: []string{"python"}}
}

func register(reg *executor.Registry, name string, aliases ...string) {
	reg.Register(executor.Profile{
		Name:    name,
		Aliases: aliases,
		Timeout: 15 * time.Second,
	}, &stubBackend{name: name})
}

func names(cands []executor.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Profile.Name
	}
	return out
}

func TestResolveRegistrationOrder(t *testing.T) {
	reg := executor.NewRegistry(0)
	register(reg, "piston", "python", "java")
	register(reg, "judge0", "python")
	register(reg, "wandbox", "java")

	got := names(reg.Resolve("python"))
	if len(got) != 2 || got[0] != "piston" || got[1] != "judge0" {
		t.Errorf("Resolve(python) = %v, want [piston judge0]", got)
	}

	got = names(reg.Resolve("JAVA"))
	if len(got) != 2 || got[0] != "piston" || got[1] != "wandbox" {
		t.Errorf("Resolve(JAVA) = %v, want [piston wandbox]", got)
	}
}

func TestResolveUnknownLanguage(t *testing.T) {
	reg := executor.NewRegistry(0)
	register(reg, "piston", "python")

	if cands := reg.Resolve("fortran"); cands != nil {
		t.Errorf("Resolve(fortran) = %v, want nil", names(cands))
	}
}

func TestBreakerOpensAfterThreeFailures(t *testing.T) {
	reg := executor.NewRegistry(time.Minute)
	register(reg, "piston", "python")
	register(reg, "judge0", "python")

	reg.RecordOutcome("piston", false)
	reg.RecordOutcome("piston", false)
	if got := names(reg.Resolve("python")); len(got) != 2 {
		t.Fatalf("two failures should not trip the breaker, got %v", got)
	}

	reg.RecordOutcome("piston", false)
	got := names(reg.Resolve("python"))
	if len(got) != 1 || got[0] != "judge0" {
		t.Errorf("Resolve after trip = %v, want [judge0]", got)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	reg := executor.NewRegistry(time.Minute)
	register(reg, "piston", "python")

	reg.RecordOutcome("piston", false)
	reg.RecordOutcome("piston", false)
	reg.RecordOutcome("piston", true)
	reg.RecordOutcome("piston", false)
	reg.RecordOutcome("piston", false)

	statuses := reg.Profiles()
	if statuses[0].Breaker != executor.BreakerClosed {
		t.Errorf("breaker = %q after interleaved success, want closed", statuses[0].Breaker)
	}
}

func TestResolveFallsBackToTrippedBackend(t *testing.T) {
	reg := executor.NewRegistry(time.Minute)
	register(reg, "piston", "python")

	for i := 0; i < 3; i++ {
		reg.RecordOutcome("piston", false)
	}

	// Sole candidate: returned despite the open breaker, as a half-open probe.
	got := names(reg.Resolve("python"))
	if len(got) != 1 || got[0] != "piston" {
		t.Fatalf("Resolve with sole tripped candidate = %v, want [piston]", got)
	}

	statuses := reg.Profiles()
	if statuses[0].Breaker != executor.BreakerHalfOpen {
		t.Errorf("breaker = %q after fallback resolve, want half-open", statuses[0].Breaker)
	}
}

func TestBreakerHalfOpenSingleSuccessCloses(t *testing.T) {
	reg := executor.NewRegistry(20 * time.Millisecond)
	register(reg, "piston", "python")

	for i := 0; i < 3; i++ {
		reg.RecordOutcome("piston", false)
	}

	time.Sleep(30 * time.Millisecond)

	// Cooldown elapsed: resolve transitions the breaker to half-open.
	if got := names(reg.Resolve("python")); len(got) != 1 {
		t.Fatalf("Resolve after cooldown = %v, want one candidate", got)
	}

	reg.RecordOutcome("piston", true)
	statuses := reg.Profiles()
	if statuses[0].Breaker != executor.BreakerClosed {
		t.Errorf("breaker = %q after half-open success, want closed", statuses[0].Breaker)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	reg := executor.NewRegistry(20 * time.Millisecond)
	register(reg, "piston", "python")
	register(reg, "judge0", "python")

	for i := 0; i < 3; i++ {
		reg.RecordOutcome("piston", false)
	}
	time.Sleep(30 * time.Millisecond)
	reg.Resolve("python")

	reg.RecordOutcome("piston", false)
	got := names(reg.Resolve("python"))
	if len(got) != 1 || got[0] != "judge0" {
		t.Errorf("Resolve after half-open failure = %v, want [judge0]", got)
	}
}

func TestRecordOutcomeUnknownBackend(t *testing.T) {
	reg := executor.NewRegistry(0)
	// Must not panic.
	reg.RecordOutcome("ghost", false)
}
