package executor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// paizaPollInterval is how often runner details are polled after create.
const paizaPollInterval = 2 * time.Second

// PaizaBackend targets the paiza.io runners API. Paiza is two-phase: create a
// runner, then poll get_details until the run completes.
type PaizaBackend struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewPaizaBackend creates a Paiza adapter. endpoint is the API base, e.g.
// "http://api.paiza.io". An empty apiKey uses the guest tier.
func NewPaizaBackend(name, endpoint, apiKey string) *PaizaBackend {
	if apiKey == "" {
		apiKey = "guest"
	}
	return &PaizaBackend{
		name:     name,
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

type paizaCreateRequest struct {
	SourceCode string `json:"source_code"`
	Language   string `json:"language"`
	Input      string `json:"input,omitempty"`
	APIKey     string `json:"api_key"`
}

type paizaCreateResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type paizaDetails struct {
	Status      string `json:"status"`
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    int    `json:"exit_code"`
	BuildStderr string `json:"build_stderr"`
	BuildResult string `json:"build_result"`
	Error       string `json:"error,omitempty"`
}

// Submit creates a runner for the first file and polls until it completes or
// the context deadline expires.
func (p *PaizaBackend) Submit(ctx context.Context, req Request) (Result, error) {
	if len(req.Files) == 0 {
		return Result{}, errUnmappableRequest(p.name, req.Language)
	}

	var created paizaCreateResponse
	err := postJSON(ctx, p.client, p.endpoint+"/runners/create", paizaCreateRequest{
		SourceCode: req.Files[0].Content,
		Language:   paizaAlias(req.Language),
		Input:      req.Stdin,
		APIKey:     p.apiKey,
	}, &created)
	if err != nil {
		return Result{}, err
	}
	if created.Error != "" || created.ID == "" {
		return Result{}, fmt.Errorf("%s: runner create rejected: %s", p.name, created.Error)
	}

	detailsURL := fmt.Sprintf("%s/runners/get_details?id=%s&api_key=%s",
		p.endpoint, url.QueryEscape(created.ID), url.QueryEscape(p.apiKey))

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(paizaPollInterval):
		}

		var details paizaDetails
		if err := getJSON(ctx, p.client, detailsURL, &details); err != nil {
			return Result{}, err
		}
		if details.Error != "" {
			return Result{}, fmt.Errorf("%s: runner details error: %s", p.name, details.Error)
		}
		if details.Status != "completed" {
			continue
		}

		if details.BuildResult == "failure" {
			req.Emit(StreamStderr, details.BuildStderr)
			return Result{Kind: KindCompileError, Diagnostic: details.BuildStderr, Backend: p.name}, nil
		}

		req.Emit(StreamStdout, details.Stdout)
		req.Emit(StreamStderr, details.Stderr)

		return Result{
			Kind:     KindSuccess,
			Stdout:   details.Stdout,
			Stderr:   details.Stderr,
			ExitCode: details.ExitCode,
			Backend:  p.name,
		}, nil
	}
}

// Capabilities lists the languages Paiza's guest tier runs.
func (p *PaizaBackend) Capabilities() Capabilities {
	return Capabilities{
		Name:      p.name,
		Languages: []string{"java", "python", "javascript", "c", "cpp", "csharp"},
	}
}

// paizaAlias maps logical language identifiers to Paiza's names.
func paizaAlias(language string) string {
	switch strings.ToLower(language) {
	case "python":
		return "python3"
	default:
		return strings.ToLower(language)
	}
}
