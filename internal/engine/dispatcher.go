// Package engine provides the execution dispatcher. It resolves candidate
// backends via the registry, enforces per-backend timeout budgets via context
// deadlines, fails over across candidates on transport failure, and records
// every call outcome for circuit-breaker bookkeeping.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zenithlabs/nexus/internal/executor"
)

// ErrUnsupportedLanguage is returned when no backend is registered for the
// requested language. Reported immediately, never retried.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Dispatcher turns an ExecutionRequest into an ExecutionResult by trying
// registered backends in registry order.
type Dispatcher struct {
	registry *executor.Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(reg *executor.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: reg, logger: logger}
}

// Execute runs the request against the first candidate that produces a
// well-formed response. A response reporting a compile error or non-zero
// exit is authoritative: it stops the loop, because a different backend
// could return a different answer for the same program. Transport failures,
// malformed responses, and timeouts advance to the next candidate. If every
// candidate fails at the transport level, the result is BackendUnavailable
// (or Timeout, when the final candidate exceeded its budget); the dispatcher
// never fabricates a program outcome.
func (d *Dispatcher) Execute(ctx context.Context, req executor.Request) (executor.Result, error) {
	candidates := d.registry.Resolve(req.Language)
	if len(candidates) == 0 {
		return executor.Result{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, req.Language)
	}

	var tried []string
	lastTimedOut := false

	for _, c := range candidates {
		tried = append(tried, c.Profile.Name)

		cctx, cancel := context.WithTimeout(ctx, c.Profile.Timeout)
		start := time.Now()
		res, err := c.Backend.Submit(cctx, req)
		duration := time.Since(start)
		cancel()

		if ctx.Err() != nil {
			// Caller abandoned the run; the outcome no longer matters.
			return executor.Result{}, ctx.Err()
		}

		if err != nil {
			d.registry.RecordOutcome(c.Profile.Name, false)
			lastTimedOut = errors.Is(err, context.DeadlineExceeded)
			observeExecution(c.Profile.Name, "transport_failure", duration)
			d.logger.Warn("backend call failed",
				"backend", c.Profile.Name,
				"language", req.Language,
				"error", err,
			)
			continue
		}

		d.registry.RecordOutcome(c.Profile.Name, true)
		observeExecution(c.Profile.Name, res.Kind, duration)

		res.Backend = c.Profile.Name
		if res.DurationMS == 0 {
			res.DurationMS = int(duration.Milliseconds())
		}
		return res, nil
	}

	d.logger.Error("all candidates failed",
		"language", req.Language,
		"tried", tried,
	)

	if lastTimedOut {
		return executor.Result{
			Kind:       executor.KindTimeout,
			Diagnostic: fmt.Sprintf("execution timed out (tried: %v)", tried),
		}, nil
	}
	return executor.Result{
		Kind:       executor.KindBackendUnavailable,
		Diagnostic: fmt.Sprintf("no execution backend reachable (tried: %v)", tried),
	}, nil
}
