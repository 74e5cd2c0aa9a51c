// Package executor defines the common adapter interface that all execution
// backends (Piston, Judge0, Wandbox, Paiza, OneCompiler, local) must
// implement, along with the domain types exchanged between the dispatcher
// and backend implementations.
package executor

import "context"

// Output stream tags for events emitted during execution.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamSystem = "system"
)

// Result kinds. A request either yields an authoritative program-level
// outcome (success or compile error) or a platform-level failure.
const (
	KindSuccess            = "success"
	KindCompileError       = "compile_error"
	KindBackendUnavailable = "backend_unavailable"
	KindTimeout            = "timeout"
)

// Backend is the interface implemented by each execution provider adapter.
// Submit translates the request into the provider's wire shape, invokes it,
// and normalizes the response. A non-nil error means transport failure or a
// malformed response; a well-formed provider response (even one reporting a
// compile error or non-zero exit) is returned as a Result with nil error.
type Backend interface {
	Submit(ctx context.Context, req Request) (Result, error)

	// Capabilities reports what languages this backend accepts and whether
	// it supports interactive stdin.
	Capabilities() Capabilities
}

// SourceFile is one (name, content) pair submitted for execution.
type SourceFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Request describes one execution. Immutable once submitted.
type Request struct {
	Language string       `json:"language"`
	Files    []SourceFile `json:"files"`
	Stdin    string       `json:"stdin,omitempty"`

	// Output is an optional callback that backends invoke to emit output
	// events as they arrive. Batch providers call it once per captured
	// stream after the response; the local backend streams line by line.
	Output func(stream, text string) `json:"-"`

	// Input carries interactive stdin lines for backends that support a
	// live input stream. Batch providers ignore it and use the Stdin seed.
	Input <-chan string `json:"-"`
}

// Emit invokes the output callback if one is set, skipping empty text.
func (r Request) Emit(stream, text string) {
	if r.Output == nil || text == "" {
		return
	}
	r.Output(stream, text)
}

// Result is the normalized outcome of one execution. Never mutated after
// construction; a new run produces a new Result.
type Result struct {
	Kind       string `json:"kind"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ExitCode   int    `json:"exit_code"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Backend    string `json:"backend,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	Name             string   `json:"name"`
	Languages        []string `json:"languages"`
	InteractiveStdin bool     `json:"interactive_stdin"`
}
