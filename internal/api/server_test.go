package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zenithlabs/nexus/internal/api"
	"github.com/zenithlabs/nexus/internal/engine"
	"github.com/zenithlabs/nexus/internal/executor"
	"github.com/zenithlabs/nexus/internal/model"
	"github.com/zenithlabs/nexus/internal/store"
	"github.com/zenithlabs/nexus/internal/terminal"
)

// memStore is an in-memory Store for handler tests.
type memStore struct {
	mu         sync.Mutex
	workspaces map[string]*model.Workspace // keyed by user ID
}

func newMemStore() *memStore {
	return &memStore{workspaces: make(map[string]*model.Workspace)}
}

func (m *memStore) byID(id string) *model.Workspace {
	for _, ws := range m.workspaces {
		if ws.ID == id {
			return ws
		}
	}
	return nil
}

func (m *memStore) GetWorkspace(_ context.Context, id string) (*model.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.byID(id)
	if ws == nil {
		return nil, store.ErrNotFound
	}
	cp := *ws
	cp.Files = append([]model.File(nil), ws.Files...)
	return &cp, nil
}

func (m *memStore) CreateIfAbsent(_ context.Context, userID string) (*model.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[userID]
	if !ok {
		f := model.NewFile("Main.java", 0)
		f.ID = model.NewID()
		ws = &model.Workspace{
			ID:     model.NewID(),
			UserID: userID,
			Name:   model.DefaultWorkspaceName,
			Files:  []model.File{f},
		}
		m.workspaces[userID] = ws
	}
	cp := *ws
	cp.Files = append([]model.File(nil), ws.Files...)
	return &cp, nil
}

func (m *memStore) SaveFiles(_ context.Context, workspaceID string, files []model.File) (*model.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.byID(workspaceID)
	if ws == nil {
		return nil, store.ErrNotFound
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.Name] {
			return nil, store.ErrDuplicateFileName
		}
		seen[f.Name] = true
	}
	ws.Files = append([]model.File(nil), files...)
	for i := range ws.Files {
		if ws.Files[i].ID == "" {
			ws.Files[i].ID = model.NewID()
		}
		ws.Files[i].Position = i
	}
	cp := *ws
	cp.Files = append([]model.File(nil), ws.Files...)
	return &cp, nil
}

func (m *memStore) Close() error { return nil }

// stubBackend returns a canned result, optionally blocking until released.
type stubBackend struct {
	res     executor.Result
	release chan struct{}
}

func (b *stubBackend) Submit(ctx context.Context, req executor.Request) (executor.Result, error) {
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return executor.Result{}, ctx.Err()
		}
	}
	if b.res.Stdout != "" {
		req.Emit(executor.StreamStdout, b.res.Stdout)
	}
	return b.res, nil
}

func (b *stubBackend) Capabilities() executor.Capabilities {
	return executor.Capabilities{Name: "stub", Languages: []string{"python"}}
}

func newTestServer(t *testing.T, backend executor.Backend) *api.Server {
	t.Helper()
	reg := executor.NewRegistry(time.Minute)
	reg.Register(executor.Profile{
		Name:    "stub",
		Aliases: []string{"python", "java", "javascript"},
		Timeout: 5 * time.Second,
	}, backend)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	disp := engine.NewDispatcher(reg, logger)
	return api.NewServer(":0", newMemStore(), reg, disp, terminal.NewBroker(), logger)
}

func doJSON(t *testing.T, srv *api.Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubBackend{res: executor.Result{Kind: executor.KindSuccess}})

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestWorkspaceRequiresIdentity(t *testing.T) {
	srv := newTestServer(t, &stubBackend{res: executor.Result{Kind: executor.KindSuccess}})

	rec := doJSON(t, srv, http.MethodGet, "/v1/workspace", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without identity = %d, want 401", rec.Code)
	}
}

func TestGetWorkspaceProvisions(t *testing.T) {
	srv := newTestServer(t, &stubBackend{res: executor.Result{Kind: executor.KindSuccess}})

	rec := doJSON(t, srv, http.MethodGet, "/v1/workspace", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var ws model.Workspace
	if err := json.Unmarshal(rec.Body.Bytes(), &ws); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ws.Name != model.DefaultWorkspaceName {
		t.Errorf("name = %q, want %q", ws.Name, model.DefaultWorkspaceName)
	}
	if len(ws.Files) != 1 || ws.Files[0].Name != "Main.java" {
		t.Errorf("files = %v, want a single Main.java", ws.Files)
	}
}

func TestSaveFilesAssignsDurableIDs(t *testing.T) {
	srv := newTestServer(t, &stubBackend{res: executor.Result{Kind: executor.KindSuccess}})

	body := map[string]any{"files": []map[string]any{
		{"name": "main.py", "content": "print(1)"},
	}}
	rec := doJSON(t, srv, http.MethodPut, "/v1/workspace/files", "alice", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var ws model.Workspace
	if err := json.Unmarshal(rec.Body.Bytes(), &ws); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(ws.Files) != 1 || ws.Files[0].ID == "" {
		t.Errorf("saved files = %v, want one file with a durable ID", ws.Files)
	}
	if ws.Files[0].Language != model.LangPython {
		t.Errorf("language = %q, want python (derived from name)", ws.Files[0].Language)
	}
}

func TestSaveFilesRederivesLanguageFromName(t *testing.T) {
	srv := newTestServer(t, &stubBackend{res: executor.Result{Kind: executor.KindSuccess}})

	// A rename done in the editor arrives as the new name with the stale
	// tag still attached.
	body := map[string]any{"files": []map[string]any{
		{"name": "main.py", "language": "javascript", "content": "print(1)"},
	}}
	rec := doJSON(t, srv, http.MethodPut, "/v1/workspace/files", "alice", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var ws model.Workspace
	if err := json.Unmarshal(rec.Body.Bytes(), &ws); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(ws.Files) != 1 || ws.Files[0].Language != model.LangPython {
		t.Errorf("saved files = %v, want main.py tagged python", ws.Files)
	}
}

func TestSaveFilesDuplicateNamesConflict(t *testing.T) {
	srv := newTestServer(t, &stubBackend{res: executor.Result{Kind: executor.KindSuccess}})

	body := map[string]any{"files": []map[string]any{
		{"name": "a.js", "content": "1"},
		{"name": "a.js", "content": "2"},
	}}
	rec := doJSON(t, srv, http.MethodPut, "/v1/workspace/files", "alice", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestRunBusyConflict(t *testing.T) {
	blocked := &stubBackend{
		res:     executor.Result{Kind: executor.KindSuccess},
		release: make(chan struct{}),
	}
	defer close(blocked.release)
	srv := newTestServer(t, blocked)

	body := map[string]any{
		"language": "python",
		"files":    []map[string]string{{"name": "main.py", "content": "print(1)"}},
	}
	rec := doJSON(t, srv, http.MethodPost, "/v1/session/run", "alice", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first run status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/v1/session/run", "alice", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("second run status = %d, want 409", rec.Code)
	}
}

func TestListBackends(t *testing.T) {
	srv := newTestServer(t, &stubBackend{res: executor.Result{Kind: executor.KindSuccess}})

	rec := doJSON(t, srv, http.MethodGet, "/v1/backends", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var profiles []executor.ProfileStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &profiles); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(profiles) != 1 || profiles[0].Name != "stub" {
		t.Errorf("profiles = %v, want the stub backend", profiles)
	}
}

func openEventStream(t *testing.T, ctx context.Context, baseURL, user string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/session/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-User-Id", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open event stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("event stream status = %d, want 200", resp.StatusCode)
	}
	return resp
}

func TestClosingOneOfTwoStreamsKeepsSessionRunning(t *testing.T) {
	blocked := &stubBackend{
		res:     executor.Result{Kind: executor.KindSuccess},
		release: make(chan struct{}),
	}
	defer close(blocked.release)
	srv := newTestServer(t, blocked)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Two tabs: two event streams for the same user.
	tabCtx, closeTab := context.WithCancel(ctx)
	tab1 := openEventStream(t, tabCtx, ts.URL, "alice")
	defer tab1.Body.Close()
	tab2 := openEventStream(t, ctx, ts.URL, "alice")
	defer tab2.Body.Close()
	go func() { _, _ = io.Copy(io.Discard, tab2.Body) }()

	body := map[string]any{
		"language": "python",
		"files":    []map[string]string{{"name": "main.py", "content": "print(1)"}},
	}
	rec := doJSON(t, srv, http.MethodPost, "/v1/session/run", "alice", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("run status = %d, want 202", rec.Code)
	}

	// Close the first tab; the second is still attached, so the running
	// session must survive.
	closeTab()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, srv, http.MethodPost, "/v1/session/run", "alice", body)
		if rec.Code != http.StatusConflict {
			t.Fatalf("rerun status = %d, want 409 (session still running)", rec.Code)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestEventStreamDeliversRunOutput(t *testing.T) {
	srv := newTestServer(t, &stubBackend{res: executor.Result{
		Kind:   executor.KindSuccess,
		Stdout: "hello from run",
	}})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	evReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/session/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	evReq.Header.Set("X-User-Id", "alice")
	evResp, err := http.DefaultClient.Do(evReq)
	if err != nil {
		t.Fatalf("open event stream: %v", err)
	}
	defer evResp.Body.Close()
	if evResp.StatusCode != http.StatusOK {
		t.Fatalf("event stream status = %d, want 200", evResp.StatusCode)
	}

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(evResp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	runBody := bytes.NewBufferString(`{"language":"python","files":[{"name":"main.py","content":"print(1)"}]}`)
	runReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/v1/session/run", runBody)
	if err != nil {
		t.Fatalf("new run request: %v", err)
	}
	runReq.Header.Set("X-User-Id", "alice")
	runReq.Header.Set("Content-Type", "application/json")
	runResp, err := http.DefaultClient.Do(runReq)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	runResp.Body.Close()
	if runResp.StatusCode != http.StatusAccepted {
		t.Fatalf("run status = %d, want 202", runResp.StatusCode)
	}

	var sawOutput, sawComplete bool
	for !sawComplete {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("event stream closed before complete event")
			}
			if strings.Contains(line, "hello from run") {
				sawOutput = true
			}
			if strings.HasPrefix(line, "event: complete") {
				sawComplete = true
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for events")
		}
	}
	if !sawOutput {
		t.Error("run output never arrived on the event stream")
	}
}
