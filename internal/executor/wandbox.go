package executor

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// wandboxCompilers maps logical languages to a default Wandbox compiler name.
// Wandbox addresses compilers, not languages, so each language needs a pinned
// toolchain. Overridable per deployment via config.
var wandboxCompilers = map[string]string{
	"c":          "gcc-13.2.0-c",
	"cpp":        "gcc-13.2.0",
	"csharp":     "mono-6.12.0.199",
	"java":       "openjdk-jdk-15.0.3+2",
	"javascript": "nodejs-16.14.0",
	"python":     "cpython-3.12.7",
}

// WandboxBackend targets the Wandbox compile API.
type WandboxBackend struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewWandboxBackend creates a Wandbox adapter. endpoint is the compile URL,
// e.g. "https://wandbox.org/api/compile.json".
func NewWandboxBackend(name, endpoint string) *WandboxBackend {
	return &WandboxBackend{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

type wandboxRequest struct {
	Code     string `json:"code"`
	Compiler string `json:"compiler"`
	Stdin    string `json:"stdin,omitempty"`
}

type wandboxResponse struct {
	Status        string `json:"status"`
	CompilerError string `json:"compiler_error"`
	ProgramOutput string `json:"program_output"`
	ProgramError  string `json:"program_error"`
}

// Submit sends the first file as the compilation unit. Wandbox takes a single
// code body per request.
func (w *WandboxBackend) Submit(ctx context.Context, req Request) (Result, error) {
	compiler, ok := wandboxCompilers[strings.ToLower(req.Language)]
	if !ok || len(req.Files) == 0 {
		return Result{}, errUnmappableRequest(w.name, req.Language)
	}

	var resp wandboxResponse
	err := postJSON(ctx, w.client, w.endpoint, wandboxRequest{
		Code:     req.Files[0].Content,
		Compiler: compiler,
		Stdin:    req.Stdin,
	}, &resp)
	if err != nil {
		return Result{}, err
	}

	if resp.CompilerError != "" {
		req.Emit(StreamStderr, resp.CompilerError)
		return Result{Kind: KindCompileError, Diagnostic: resp.CompilerError, Backend: w.name}, nil
	}

	// Wandbox reports the program's exit status as a decimal string.
	exit := 0
	if resp.Status != "" {
		n, err := strconv.Atoi(resp.Status)
		if err != nil {
			n = 1
		}
		exit = n
	}

	req.Emit(StreamStdout, resp.ProgramOutput)
	req.Emit(StreamStderr, resp.ProgramError)

	return Result{
		Kind:     KindSuccess,
		Stdout:   resp.ProgramOutput,
		Stderr:   resp.ProgramError,
		ExitCode: exit,
		Backend:  w.name,
	}, nil
}

// Capabilities lists the languages with pinned Wandbox compilers.
func (w *WandboxBackend) Capabilities() Capabilities {
	langs := make([]string, 0, len(wandboxCompilers))
	for l := range wandboxCompilers {
		langs = append(langs, l)
	}
	return Capabilities{Name: w.name, Languages: langs}
}
