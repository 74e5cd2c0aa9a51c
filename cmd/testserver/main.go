// testserver starts a Nexus API server with a stub execution backend, so the
// browser IDE can be developed offline without hosted providers or a compiler
// toolchain. Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/zenithlabs/nexus/internal/api"
	"github.com/zenithlabs/nexus/internal/config"
	"github.com/zenithlabs/nexus/internal/engine"
	"github.com/zenithlabs/nexus/internal/executor"
	"github.com/zenithlabs/nexus/internal/store"
	"github.com/zenithlabs/nexus/internal/terminal"
)

// stubBackend pretends to execute code: it echoes the submitted file names
// and any stdin seed, then reports success after a short delay.
type stubBackend struct {
	delay time.Duration
}

func (s *stubBackend) Submit(ctx context.Context, req executor.Request) (executor.Result, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return executor.Result{}, ctx.Err()
	}

	var out string
	for _, f := range req.Files {
		out += "stub: received " + f.Name + "\n"
	}
	if req.Stdin != "" {
		out += "stub: stdin " + req.Stdin + "\n"
	}
	req.Emit(executor.StreamStdout, out)

	return executor.Result{Kind: executor.KindSuccess, Stdout: out}, nil
}

func (s *stubBackend) Capabilities() executor.Capabilities {
	return executor.Capabilities{
		Name:      "stub",
		Languages: []string{"java", "python", "javascript", "c", "cpp", "csharp"},
	}
}

func main() {
	addr := ":8080"
	if v := os.Getenv("NEXUS_LISTEN_ADDR"); v != "" {
		addr = v
	}

	logger := config.NewLogger(os.Stdout, config.Load().LogLevel)

	dbPath := filepath.Join(os.TempDir(), "nexus-testserver.db")
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	reg := executor.NewRegistry(time.Minute)
	reg.Register(executor.Profile{
		Name:    "stub",
		Aliases: []string{"java", "python", "javascript", "c", "cpp", "csharp"},
		Timeout: 5 * time.Second,
	}, &stubBackend{delay: 200 * time.Millisecond})

	dispatcher := engine.NewDispatcher(reg, logger)
	broker := terminal.NewBroker()

	logger.Info("testserver: starting with stub backend", "addr", addr, "db", dbPath)

	srv := api.NewServer(addr, db, reg, dispatcher, broker, logger)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
