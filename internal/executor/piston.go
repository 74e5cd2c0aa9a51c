package executor

import (
	"context"
	"net/http"
	"strings"
)

// PistonBackend targets the emkc.org Piston execution API (or any of its
// mirrors, which speak the same protocol at different base URLs).
type PistonBackend struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewPistonBackend creates a Piston adapter. endpoint is the full execute
// URL, e.g. "https://emkc.org/api/v2/piston/execute".
func NewPistonBackend(name, endpoint string) *PistonBackend {
	return &PistonBackend{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

type pistonFile struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
	Stdin    string       `json:"stdin,omitempty"`
}

type pistonStage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
	Output string `json:"output"`
}

type pistonResponse struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Compile  *pistonStage `json:"compile,omitempty"`
	Run      pistonStage  `json:"run"`
	Message  string       `json:"message,omitempty"`
}

// Submit translates the request into Piston's wire shape and normalizes the
// response. A failed compile stage is an authoritative CompileError, not a
// reason to fail over.
func (p *PistonBackend) Submit(ctx context.Context, req Request) (Result, error) {
	files := make([]pistonFile, len(req.Files))
	for i, f := range req.Files {
		files[i] = pistonFile{Name: f.Name, Content: f.Content}
	}

	var resp pistonResponse
	err := postJSON(ctx, p.client, p.endpoint, pistonRequest{
		Language: pistonAlias(req.Language),
		Version:  "*",
		Files:    files,
		Stdin:    req.Stdin,
	}, &resp)
	if err != nil {
		return Result{}, err
	}

	if resp.Compile != nil && resp.Compile.Code != 0 {
		diag := resp.Compile.Stderr
		if diag == "" {
			diag = resp.Compile.Output
		}
		req.Emit(StreamStderr, diag)
		return Result{Kind: KindCompileError, Diagnostic: diag, Backend: p.name}, nil
	}

	req.Emit(StreamStdout, resp.Run.Stdout)
	req.Emit(StreamStderr, resp.Run.Stderr)

	return Result{
		Kind:     KindSuccess,
		Stdout:   resp.Run.Stdout,
		Stderr:   resp.Run.Stderr,
		ExitCode: resp.Run.Code,
		Backend:  p.name,
	}, nil
}

// Capabilities reports the languages the public Piston deployment runs.
func (p *PistonBackend) Capabilities() Capabilities {
	return Capabilities{
		Name:      p.name,
		Languages: []string{"java", "python", "javascript", "c", "cpp", "csharp"},
	}
}

// pistonAlias normalizes file-extension style identifiers to the aliases the
// Piston API expects.
func pistonAlias(language string) string {
	switch strings.ToLower(language) {
	case "js":
		return "javascript"
	case "py":
		return "python"
	case "cs":
		return "csharp"
	default:
		return strings.ToLower(language)
	}
}
