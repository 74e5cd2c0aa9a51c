package executor

import (
	"strings"
	"sync"
	"time"
)

// Breaker states. A backend starts closed, opens after repeated failures,
// and half-opens when a probe is allowed through.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half-open"
)

// DefaultBreakerCooldown is how long a tripped breaker stays open before a
// probe is allowed.
const DefaultBreakerCooldown = 60 * time.Second

// failureThreshold is the number of consecutive failures that opens a breaker.
const failureThreshold = 3

// Profile describes one registered backend: the logical languages it accepts,
// its base endpoint, and its timeout budget.
type Profile struct {
	Name     string        `json:"name"`
	Aliases  []string      `json:"aliases"`
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout"`
}

// Candidate pairs a profile with its backend, as returned by Resolve.
type Candidate struct {
	Profile Profile
	Backend Backend
}

// ProfileStatus is a profile plus its current breaker state, for reporting.
type ProfileStatus struct {
	Profile
	Breaker          string `json:"breaker"`
	ConsecutiveFails int    `json:"consecutive_fails"`
}

type entry struct {
	profile  Profile
	backend  Backend
	state    string
	failures int
	openedAt time.Time
}

// Registry holds registered backends in an ordered list per logical language
// and tracks per-backend circuit-breaker state. Breaker state is process-wide:
// a backend observed failing for one user is deprioritized for everyone.
// All updates are applied under one mutex so concurrent sessions recording
// outcomes for the same backend never lose updates.
type Registry struct {
	mu       sync.Mutex
	entries  []*entry
	byName   map[string]*entry
	byLang   map[string][]*entry
	cooldown time.Duration
}

// NewRegistry creates an empty registry. A non-positive cooldown selects
// DefaultBreakerCooldown.
func NewRegistry(cooldown time.Duration) *Registry {
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &Registry{
		byName:   make(map[string]*entry),
		byLang:   make(map[string][]*entry),
		cooldown: cooldown,
	}
}

// Register adds a backend under its profile. Registration order is candidate
// order: first registered, first tried. There is no randomized load spreading.
func (r *Registry) Register(p Profile, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{profile: p, backend: b, state: BreakerClosed}
	r.entries = append(r.entries, e)
	r.byName[p.Name] = e
	for _, alias := range p.Aliases {
		key := strings.ToLower(alias)
		r.byLang[key] = append(r.byLang[key], e)
	}
}

// Resolve returns the ordered candidates for a language, excluding backends
// whose breaker is currently open. If every candidate is open, all of them
// are returned anyway: trying a degraded backend beats refusing outright, and
// the attempt counts as a half-open probe.
func (r *Registry) Resolve(language string) []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byLang[strings.ToLower(language)]
	if len(list) == 0 {
		return nil
	}

	now := time.Now()
	available := make([]Candidate, 0, len(list))
	for _, e := range list {
		if e.state == BreakerOpen && now.Sub(e.openedAt) >= r.cooldown {
			e.state = BreakerHalfOpen
		}
		if e.state != BreakerOpen {
			available = append(available, Candidate{Profile: e.profile, Backend: e.backend})
		}
	}

	if len(available) == 0 {
		for _, e := range list {
			e.state = BreakerHalfOpen
			available = append(available, Candidate{Profile: e.profile, Backend: e.backend})
		}
	}

	return available
}

// RecordOutcome updates breaker state after a call to the named backend.
// A success closes the breaker and resets the failure count; the third
// consecutive failure opens it; any failure while half-open re-opens it
// for a fresh cooldown window.
func (r *Registry) RecordOutcome(name string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byName[name]
	if !ok {
		return
	}

	if success {
		e.failures = 0
		e.state = BreakerClosed
		return
	}

	if e.state == BreakerHalfOpen || e.state == BreakerOpen {
		e.state = BreakerOpen
		e.openedAt = time.Now()
		return
	}

	e.failures++
	if e.failures >= failureThreshold {
		e.state = BreakerOpen
		e.openedAt = time.Now()
	}
}

// Profiles returns every registered profile with its breaker state, in
// registration order.
func (r *Registry) Profiles() []ProfileStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ProfileStatus, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, ProfileStatus{
			Profile:          e.profile,
			Breaker:          e.state,
			ConsecutiveFails: e.failures,
		})
	}
	return out
}
