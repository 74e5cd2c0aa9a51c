package executor

import (
	"context"
	"net/http"
)

// OneCompilerBackend targets the onecompiler.com exec API. OneCompiler takes
// named files, so multi-file compiled submissions pass through unchanged.
type OneCompilerBackend struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewOneCompilerBackend creates a OneCompiler adapter. endpoint is the exec
// URL, e.g. "https://onecompiler.com/api/code/exec".
func NewOneCompilerBackend(name, endpoint string) *OneCompilerBackend {
	return &OneCompilerBackend{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

type oneCompilerFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type oneCompilerRequest struct {
	Language string            `json:"language"`
	Files    []oneCompilerFile `json:"files"`
	Stdin    string            `json:"stdin,omitempty"`
}

type oneCompilerResponse struct {
	Status    string `json:"status"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Exception string `json:"exception"`
}

// Submit sends all files and normalizes the response. A reported exception
// with empty stdout/stderr is treated as a compile diagnostic.
func (o *OneCompilerBackend) Submit(ctx context.Context, req Request) (Result, error) {
	files := make([]oneCompilerFile, len(req.Files))
	for i, f := range req.Files {
		files[i] = oneCompilerFile{Name: f.Name, Content: f.Content}
	}

	var resp oneCompilerResponse
	err := postJSON(ctx, o.client, o.endpoint, oneCompilerRequest{
		Language: req.Language,
		Files:    files,
		Stdin:    req.Stdin,
	}, &resp)
	if err != nil {
		return Result{}, err
	}

	if resp.Exception != "" && resp.Stdout == "" && resp.Stderr == "" {
		req.Emit(StreamStderr, resp.Exception)
		return Result{Kind: KindCompileError, Diagnostic: resp.Exception, Backend: o.name}, nil
	}

	exit := 0
	if resp.Stderr != "" || resp.Exception != "" {
		exit = 1
	}

	stderr := resp.Stderr
	if resp.Exception != "" {
		stderr += resp.Exception
	}

	req.Emit(StreamStdout, resp.Stdout)
	req.Emit(StreamStderr, stderr)

	return Result{
		Kind:     KindSuccess,
		Stdout:   resp.Stdout,
		Stderr:   stderr,
		ExitCode: exit,
		Backend:  o.name,
	}, nil
}

// Capabilities reports the languages OneCompiler's public API runs.
func (o *OneCompilerBackend) Capabilities() Capabilities {
	return Capabilities{
		Name:      o.name,
		Languages: []string{"java", "python", "javascript", "c", "cpp", "csharp"},
	}
}
