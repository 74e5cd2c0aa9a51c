package executor

import (
	"context"
	"net/http"
	"strings"
)

// judge0LanguageIDs maps logical languages to Judge0's numeric language IDs.
var judge0LanguageIDs = map[string]int{
	"c":          50,
	"cpp":        54,
	"csharp":     51,
	"java":       62,
	"javascript": 63,
	"python":     71,
}

// Judge0Backend targets a Judge0 CE deployment. Submissions are made with
// wait=true so the result comes back in a single round trip.
type Judge0Backend struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewJudge0Backend creates a Judge0 adapter. endpoint is the submissions URL
// including query parameters, e.g.
// "https://ce.judge0.com/submissions?base64_encoded=false&wait=true".
func NewJudge0Backend(name, endpoint string) *Judge0Backend {
	return &Judge0Backend{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

type judge0Request struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin,omitempty"`
}

type judge0Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type judge0Response struct {
	Stdout        string       `json:"stdout"`
	Stderr        string       `json:"stderr"`
	CompileOutput string       `json:"compile_output"`
	ExitCode      *int         `json:"exit_code"`
	Status        judge0Status `json:"status"`
}

// Judge0 status IDs: 6 is "Compilation Error".
const judge0StatusCompileError = 6

// Submit sends the first file as a single source submission. Judge0 has no
// multi-file shape in its plain submissions API; the dispatcher only routes
// single-file-capable requests here via the profile's alias list.
func (j *Judge0Backend) Submit(ctx context.Context, req Request) (Result, error) {
	langID, ok := judge0LanguageIDs[strings.ToLower(req.Language)]
	if !ok || len(req.Files) == 0 {
		return Result{}, errUnmappableRequest(j.name, req.Language)
	}

	var resp judge0Response
	err := postJSON(ctx, j.client, j.endpoint, judge0Request{
		SourceCode: req.Files[0].Content,
		LanguageID: langID,
		Stdin:      req.Stdin,
	}, &resp)
	if err != nil {
		return Result{}, err
	}

	if resp.Status.ID == judge0StatusCompileError {
		req.Emit(StreamStderr, resp.CompileOutput)
		return Result{Kind: KindCompileError, Diagnostic: resp.CompileOutput, Backend: j.name}, nil
	}

	exit := 0
	if resp.ExitCode != nil {
		exit = *resp.ExitCode
	}

	req.Emit(StreamStdout, resp.Stdout)
	req.Emit(StreamStderr, resp.Stderr)

	return Result{
		Kind:     KindSuccess,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: exit,
		Backend:  j.name,
	}, nil
}

// Capabilities lists the languages with known Judge0 IDs.
func (j *Judge0Backend) Capabilities() Capabilities {
	langs := make([]string, 0, len(judge0LanguageIDs))
	for l := range judge0LanguageIDs {
		langs = append(langs, l)
	}
	return Capabilities{Name: j.name, Languages: langs}
}
