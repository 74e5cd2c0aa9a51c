package executor_test

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/zenithlabs/nexus/internal/executor"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

func TestLocalSubmitPython(t *testing.T) {
	requireTool(t, "python3")

	b := executor.NewLocalBackend("local", t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := b.Submit(ctx, executor.Request{
		Language: "python",
		Files:    []executor.SourceFile{{Name: "main.py", Content: "import sys\nprint('out')\nprint('err', file=sys.stderr)\n"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if res.Kind != executor.KindSuccess || res.ExitCode != 0 {
		t.Fatalf("result = %+v, want success exit 0", res)
	}
	if !strings.Contains(res.Stdout, "out") {
		t.Errorf("stdout = %q, want to contain out", res.Stdout)
	}
	if !strings.Contains(res.Stderr, "err") {
		t.Errorf("stderr = %q, want to contain err", res.Stderr)
	}
}

func TestLocalSubmitInteractiveStdin(t *testing.T) {
	requireTool(t, "python3")

	input := make(chan string, 1)
	input <- "world"

	b := executor.NewLocalBackend("local", t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := b.Submit(ctx, executor.Request{
		Language: "python",
		Files:    []executor.SourceFile{{Name: "main.py", Content: "name = input()\nprint('hello ' + name)\n"}},
		Input:    input,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if !strings.Contains(res.Stdout, "hello world") {
		t.Errorf("stdout = %q, want to contain hello world", res.Stdout)
	}
}

func TestLocalSubmitNonZeroExitIsAuthoritative(t *testing.T) {
	requireTool(t, "python3")

	b := executor.NewLocalBackend("local", t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := b.Submit(ctx, executor.Request{
		Language: "python",
		Files:    []executor.SourceFile{{Name: "main.py", Content: "import sys\nsys.exit(3)\n"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if res.Kind != executor.KindSuccess {
		t.Errorf("kind = %q, want success (non-zero exit is a program outcome)", res.Kind)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestLocalSubmitUnsupportedLanguage(t *testing.T) {
	b := executor.NewLocalBackend("local", t.TempDir())
	if _, err := b.Submit(context.Background(), singleFileRequest("fortran")); err == nil {
		t.Error("Submit should fail for an unsupported local language")
	}
}
