package terminal

import (
	"fmt"
	"sync"

	"github.com/zenithlabs/nexus/internal/executor"
)

// Session states.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
	StateFailed    = "failed"
)

// inputQueueSize bounds how many submitted lines can wait for delivery.
const inputQueueSize = 64

// Stream tag re-exports so callers need not import executor for event tags.
const (
	StreamStdout = executor.StreamStdout
	StreamStderr = executor.StreamStderr
	StreamSystem = executor.StreamSystem
)

// Session is the transient state of one code-execution run. It is created
// when a run starts and discarded when the run completes or is cancelled;
// nothing here is ever persisted.
//
// Events are published on the broker under a topic chosen by the caller
// (the per-user event channel), so a client subscribed before the run
// started sees its events without knowing the session ID.
type Session struct {
	mu      sync.Mutex
	id      string
	topic   string
	state   string
	pending []rune
	log     []Event
	input   chan string
	broker  *Broker
}

// NewSession creates an idle session publishing events through the broker
// under the given topic. An empty topic defaults to the session ID.
func NewSession(id, topic string, broker *Broker) *Session {
	if topic == "" {
		topic = id
	}
	return &Session{
		id:     id,
		topic:  topic,
		state:  StateIdle,
		input:  make(chan string, inputQueueSize),
		broker: broker,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Input returns the channel carrying submitted stdin lines. Backends with
// interactive stdin drain it live; batch backends leave queued lines behind.
func (s *Session) Input() <-chan string { return s.input }

// Start transitions Idle to Running. Only an idle session may start.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("session %s is %s, not idle", s.id, s.state)
	}
	s.state = StateRunning
	return nil
}

// Keystroke appends a printable character to the pending input line and
// echoes it as an output event so the user sees what they typed.
func (s *Session) Keystroke(r rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.pending = append(s.pending, r)
	s.emit(StreamStdout, string(r))
}

// Backspace removes the last character from the pending line. It edits the
// buffer only; already-flushed output cannot be erased.
func (s *Session) Backspace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || len(s.pending) == 0 {
		return
	}
	s.pending = s.pending[:len(s.pending)-1]
}

// SubmitPending submits the buffered line: the line terminator is echoed and
// the line is queued for the executing process's input stream.
func (s *Session) SubmitPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	line := string(s.pending)
	s.pending = nil
	s.emit(StreamStdout, "\n")
	s.enqueue(line)
}

// SubmitLine replaces the pending buffer with text and submits it. This is
// the whole-line entry point used by the event channel's input-line message;
// the echo covers the full line at once.
func (s *Session) SubmitLine(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.pending = nil
	s.emit(StreamStdout, text+"\n")
	s.enqueue(text)
}

// enqueue queues a line for the executing process. Caller holds s.mu.
func (s *Session) enqueue(line string) {
	select {
	case s.input <- line:
	default:
		// Queue full; the line is dropped rather than blocking the session.
	}
}

// Emit appends an output event and publishes it to subscribers. Events for a
// session that is no longer running are discarded: a backend response
// arriving after cancellation must not append late output.
func (s *Session) Emit(stream, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.emit(stream, text)
}

// emit appends and publishes an output event. Caller holds s.mu.
func (s *Session) emit(stream, text string) {
	ev := Event{Type: EventOutput, Stream: stream, Text: text}
	s.log = append(s.log, ev)
	s.broker.Publish(s.topic, ev)
}

// Finish completes the session from a dispatcher result. Success and compile
// errors are program-level outcomes and transition to Completed; backend
// unavailability and timeouts are platform failures and transition to Failed,
// announced with wording distinct from a program's own stderr. A run-complete
// event with the final status closes out the channel's view of the run.
func (s *Session) Finish(res executor.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}

	switch res.Kind {
	case executor.KindSuccess:
		s.state = StateCompleted
		s.emit(StreamSystem, fmt.Sprintf("[system] execution completed (exit %d)", res.ExitCode))
	case executor.KindCompileError:
		s.state = StateCompleted
		s.emit(StreamSystem, "[system] compilation failed")
	case executor.KindTimeout:
		s.state = StateFailed
		s.emit(StreamSystem, "[system] platform error: execution timed out, this is not a problem with your program")
	default:
		s.state = StateFailed
		s.emit(StreamSystem, "[system] platform error: no execution backend is currently reachable, this is not a problem with your program")
	}

	s.broker.Publish(s.topic, Event{Type: EventRunComplete, Status: s.state})
}

// Fail marks the session failed with a platform-level diagnostic that never
// went through a backend, such as an unsupported language.
func (s *Session) Fail(diagnostic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.state = StateFailed
	s.emit(StreamSystem, "[system] "+diagnostic)
	s.broker.Publish(s.topic, Event{Type: EventRunComplete, Status: s.state})
}

// Cancel transitions a running session to Cancelled. The in-flight dispatch
// is abandoned by the caller; any result it eventually produces is discarded
// because Emit and Finish ignore non-running sessions.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.state = StateCancelled
	s.emit(StreamSystem, "[system] execution cancelled")
	s.broker.Publish(s.topic, Event{Type: EventRunComplete, Status: s.state})
}

// Events returns a copy of the ordered output-event log.
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.log))
	copy(out, s.log)
	return out
}

// PendingLine returns the current input buffer contents.
func (s *Session) PendingLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.pending)
}
