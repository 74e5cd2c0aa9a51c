// Package workspace implements the per-user orchestration layer between the
// HTTP surface and the store, dispatcher, and terminal packages. A Controller
// owns one user's in-memory file set, their active-file pointer, and the
// single terminal session they are allowed to have running.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zenithlabs/nexus/internal/engine"
	"github.com/zenithlabs/nexus/internal/executor"
	"github.com/zenithlabs/nexus/internal/model"
	"github.com/zenithlabs/nexus/internal/store"
	"github.com/zenithlabs/nexus/internal/terminal"
)

var (
	// ErrBusy is returned when a run is requested while one is in flight.
	// The in-flight run is left untouched.
	ErrBusy = errors.New("a run is already in progress")

	// ErrFileNotFound is returned when an operation names an unknown file.
	ErrFileNotFound = errors.New("file not found in workspace")

	// ErrNoActiveFile is returned when a run is requested with nothing to
	// execute.
	ErrNoActiveFile = errors.New("no active file selected")
)

// Controller orchestrates one user's workspace. All mutating operations go
// through it so the active-file pointer, the file set, and the running
// session stay consistent.
type Controller struct {
	userID     string
	store      store.Store
	dispatcher *engine.Dispatcher
	broker     *terminal.Broker
	logger     *slog.Logger

	mu         sync.Mutex
	ws         *model.Workspace
	activeName string
	sess       *terminal.Session
	cancelRun  context.CancelFunc
	gen        uint64
	savedGen   uint64

	// saveMu serializes saves for this workspace: at most one store write in
	// flight, each write carrying the newest file set at the time it runs.
	saveMu sync.Mutex
}

// NewController creates a controller for the given user. Call Load before
// any other operation.
func NewController(userID string, st store.Store, disp *engine.Dispatcher, broker *terminal.Broker, logger *slog.Logger) *Controller {
	return &Controller{
		userID:     userID,
		store:      st,
		dispatcher: disp,
		broker:     broker,
		logger:     logger,
	}
}

// Load fetches the user's workspace, provisioning it on first access, and
// selects the first file as active. Idempotent; a second call returns the
// in-memory state without touching the store.
func (c *Controller) Load(ctx context.Context) (*model.Workspace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		return c.snapshot(), nil
	}

	ws, err := c.store.CreateIfAbsent(ctx, c.userID)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	c.ws = ws
	if len(ws.Files) > 0 {
		c.activeName = ws.Files[0].Name
	}
	return c.snapshot(), nil
}

// Workspace returns a copy of the in-memory workspace state.
func (c *Controller) Workspace() *model.Workspace {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return nil
	}
	return c.snapshot()
}

// ActiveFile returns a copy of the currently active file, or nil.
func (c *Controller) ActiveFile() *model.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.activeFile()
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

// UpdateActiveContent writes the editor buffer into the active file's
// in-memory record. Edits live here until Save persists them.
func (c *Controller) UpdateActiveContent(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.activeFile()
	if f == nil || f.Content == content {
		return
	}
	f.Content = content
	c.gen++
}

// Open switches the active file. If pending is non-nil it is flushed into
// the previously active file first, so edits in the editor buffer are never
// lost by switching. The identifier may be a durable ID or, for files not
// yet saved, a name.
func (c *Controller) Open(ident string, pending *string) (*model.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.lookup(ident)
	if next == nil {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, ident)
	}

	if pending != nil {
		if prev := c.activeFile(); prev != nil && prev.Content != *pending {
			prev.Content = *pending
			c.gen++
		}
	}

	c.activeName = next.Name
	cp := *next
	return &cp, nil
}

// Create adds a file seeded with the starter template for the language its
// extension implies and makes it active. Names are unique per workspace.
func (c *Controller) Create(name string) (*model.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws.FileByName(name) != nil {
		return nil, fmt.Errorf("%w: %q", store.ErrDuplicateFileName, name)
	}

	f := model.NewFile(name, len(c.ws.Files))
	c.ws.Files = append(c.ws.Files, f)
	c.activeName = f.Name
	c.gen++
	cp := f
	return &cp, nil
}

// Rename changes a file's name and re-derives its language from the new
// extension. If the renamed file is active, the active pointer follows it so
// the editor's language context switches with the name.
func (c *Controller) Rename(ident, newName string) (*model.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.lookup(ident)
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, ident)
	}
	if other := c.ws.FileByName(newName); other != nil && other != f {
		return nil, fmt.Errorf("%w: %q", store.ErrDuplicateFileName, newName)
	}

	wasActive := f.Name == c.activeName
	f.Rename(newName)
	if wasActive {
		c.activeName = newName
	}
	c.gen++
	cp := *f
	return &cp, nil
}

// Delete removes a file. Deleting the active file moves the active pointer
// to the first remaining file.
func (c *Controller) Delete(ident string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.lookup(ident)
	if f == nil {
		return fmt.Errorf("%w: %q", ErrFileNotFound, ident)
	}

	wasActive := f.Name == c.activeName
	files := c.ws.Files[:0]
	for i := range c.ws.Files {
		if &c.ws.Files[i] == f {
			continue
		}
		c.ws.Files[i].Position = len(files)
		files = append(files, c.ws.Files[i])
	}
	c.ws.Files = files
	c.gen++

	if wasActive {
		c.activeName = ""
		if len(c.ws.Files) > 0 {
			c.activeName = c.ws.Files[0].Name
		}
	}
	return nil
}

// Save persists the full current file set and reconciles the durable IDs the
// store assigns to provisional files. Saves are serialized with latest-wins
// semantics: a save requested while one is in flight waits its turn and then
// writes the newest content, and a save whose content was already covered by
// a later-started write is skipped rather than queued.
func (c *Controller) Save(ctx context.Context) (*model.Workspace, error) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	gen := c.gen
	if gen == c.savedGen {
		ws := c.snapshot()
		c.mu.Unlock()
		return ws, nil
	}
	id := c.ws.ID
	files := make([]model.File, len(c.ws.Files))
	copy(files, c.ws.Files)
	c.mu.Unlock()

	saved, err := c.store.SaveFiles(ctx, id, files)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen > c.savedGen {
		c.savedGen = gen
	}
	for i := range c.ws.Files {
		if c.ws.Files[i].ID != "" {
			continue
		}
		if sf := saved.FileByName(c.ws.Files[i].Name); sf != nil {
			c.ws.Files[i].ID = sf.ID
		}
	}
	c.ws.UpdatedAt = saved.UpdatedAt
	return c.snapshot(), nil
}

// ReplaceFiles applies a client-supplied full file set to the in-memory
// model and persists it. This backs the PUT workspace-files route, where the
// client is the source of truth for the whole collection.
func (c *Controller) ReplaceFiles(ctx context.Context, files []model.File) (*model.Workspace, error) {
	c.mu.Lock()
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.Name] {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %q", store.ErrDuplicateFileName, f.Name)
		}
		seen[f.Name] = true
	}
	c.ws.Files = make([]model.File, len(files))
	copy(c.ws.Files, files)
	for i := range c.ws.Files {
		c.ws.Files[i].Position = i
		// The name is authoritative: a client-side rename arrives here as a
		// changed name with whatever tag the client last held.
		c.ws.Files[i].Language = model.LanguageForFileName(c.ws.Files[i].Name)
	}
	if c.activeFile() == nil {
		c.activeName = ""
		if len(c.ws.Files) > 0 {
			c.activeName = c.ws.Files[0].Name
		}
	}
	c.gen++
	c.mu.Unlock()

	return c.Save(ctx)
}

// Run starts a terminal session executing the given language. When files is
// empty the controller gathers them from the in-memory model: every file for
// multi-file compiled languages, just the active file otherwise. When
// language is empty it is taken from the active file. Only one session per
// user may be running; a second start is rejected with a busy system event
// and does not disturb the in-flight run.
func (c *Controller) Run(language string, files []executor.SourceFile) (*terminal.Session, error) {
	c.mu.Lock()
	if c.sess != nil && c.sess.State() == terminal.StateRunning {
		c.mu.Unlock()
		c.broker.Publish(c.userID, terminal.Event{
			Type:   terminal.EventOutput,
			Stream: terminal.StreamSystem,
			Text:   "[system] a run is already in progress",
		})
		return nil, ErrBusy
	}

	if language == "" {
		if f := c.activeFile(); f != nil {
			language = f.Language
		}
	}
	if len(files) == 0 {
		files = c.gather(language)
	}
	if language == "" || len(files) == 0 {
		c.mu.Unlock()
		return nil, ErrNoActiveFile
	}

	sess := terminal.NewSession(model.NewID(), c.userID, c.broker)
	if err := sess.Start(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	// The run outlives the start request, so it gets its own context;
	// cancellation is explicit (Cancel) or implicit (Disconnect).
	runCtx, cancel := context.WithCancel(context.Background())
	c.sess = sess
	c.cancelRun = cancel
	c.mu.Unlock()

	req := executor.Request{
		Language: language,
		Files:    files,
		Output:   sess.Emit,
		Input:    sess.Input(),
	}

	c.logger.Info("run started",
		"user_id", c.userID,
		"session_id", sess.ID(),
		"language", language,
		"files", len(files),
	)

	go func() {
		defer cancel()
		res, err := c.dispatcher.Execute(runCtx, req)
		if err != nil {
			if runCtx.Err() != nil {
				// Cancelled; the session already transitioned.
				return
			}
			if errors.Is(err, engine.ErrUnsupportedLanguage) {
				sess.Fail(fmt.Sprintf("language %q is not supported", language))
				return
			}
			sess.Fail("platform error: " + err.Error())
			return
		}
		sess.Finish(res)
	}()

	return sess, nil
}

// Input forwards a submitted line to the running session. Ignored when
// nothing is running.
func (c *Controller) Input(text string) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		sess.SubmitLine(text)
	}
}

// Cancel aborts the running session, if any. The in-flight dispatcher call
// is abandoned and its eventual result discarded.
func (c *Controller) Cancel() {
	c.mu.Lock()
	sess, cancel := c.sess, c.cancelRun
	c.mu.Unlock()
	if sess == nil {
		return
	}
	sess.Cancel()
	if cancel != nil {
		cancel()
	}
}

// Disconnect handles the event channel going away: any running session is
// implicitly cancelled and no background work continues for it.
func (c *Controller) Disconnect() {
	c.Cancel()
}

// Session returns the current terminal session, or nil.
func (c *Controller) Session() *terminal.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// gather collects the source files for a run. Caller holds c.mu.
func (c *Controller) gather(language string) []executor.SourceFile {
	if model.NeedsAllFiles(language) {
		out := make([]executor.SourceFile, 0, len(c.ws.Files))
		for _, f := range c.ws.Files {
			out = append(out, executor.SourceFile{Name: f.Name, Content: f.Content})
		}
		return out
	}
	f := c.activeFile()
	if f == nil {
		return nil
	}
	return []executor.SourceFile{{Name: f.Name, Content: f.Content}}
}

// lookup finds a file by durable ID, falling back to name for files that
// have not been saved yet. Caller holds c.mu.
func (c *Controller) lookup(ident string) *model.File {
	if f := c.ws.FileByID(ident); f != nil {
		return f
	}
	return c.ws.FileByName(ident)
}

// activeFile returns the active file record, or nil. Caller holds c.mu.
func (c *Controller) activeFile() *model.File {
	if c.activeName == "" {
		return nil
	}
	return c.ws.FileByName(c.activeName)
}

// snapshot copies the workspace for callers outside the lock. Caller holds
// c.mu.
func (c *Controller) snapshot() *model.Workspace {
	cp := *c.ws
	cp.Files = make([]model.File, len(c.ws.Files))
	copy(cp.Files, c.ws.Files)
	return &cp
}
