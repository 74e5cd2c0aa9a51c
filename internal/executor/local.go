package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// LocalBackend compiles and runs submissions on the host with os/exec. It is
// the only backend with true interactive stdin: submitted lines are piped to
// the running process as they arrive, and output is streamed line by line.
type LocalBackend struct {
	name    string
	workDir string
}

// NewLocalBackend creates a local adapter. workDir is where per-run temp
// directories are created; empty means the system temp dir.
func NewLocalBackend(name, workDir string) *LocalBackend {
	return &LocalBackend{name: name, workDir: workDir}
}

// localCommands builds the compile and run argv for a language. The first
// file in the request is the entry point.
func localCommands(language string, files []SourceFile) (compile, run []string, err error) {
	if len(files) == 0 {
		return nil, nil, errors.New("no files")
	}
	entry := files[0].Name
	allNames := make([]string, len(files))
	for i, f := range files {
		allNames[i] = f.Name
	}

	switch strings.ToLower(language) {
	case "java":
		className := strings.TrimSuffix(entry, ".java")
		return append([]string{"javac"}, allNames...), []string{"java", className}, nil
	case "python":
		return nil, []string{"python3", entry}, nil
	case "javascript":
		return nil, []string{"node", entry}, nil
	case "c":
		return append([]string{"gcc", "-o", "out"}, allNames...), []string{"./out"}, nil
	case "cpp":
		return append([]string{"g++", "-o", "out"}, allNames...), []string{"./out"}, nil
	case "csharp":
		exe := strings.TrimSuffix(entry, ".cs") + ".exe"
		return append([]string{"mcs"}, allNames...), []string{"mono", exe}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported local language %q", language)
	}
}

// Submit writes the file set to a temp directory, compiles if the language
// needs it, and runs the program with stdin wired to the request's input
// channel. The temp directory is removed when the run finishes.
func (l *LocalBackend) Submit(ctx context.Context, req Request) (Result, error) {
	compileArgv, runArgv, err := localCommands(req.Language, req.Files)
	if err != nil {
		return Result{}, errUnmappableRequest(l.name, req.Language)
	}

	dir, err := os.MkdirTemp(l.workDir, "nexus-run-*")
	if err != nil {
		return Result{}, fmt.Errorf("create run dir: %w", err)
	}
	defer os.RemoveAll(dir)

	for _, f := range req.Files {
		name := filepath.Base(f.Name)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(f.Content), 0o644); err != nil {
			return Result{}, fmt.Errorf("write %s: %w", name, err)
		}
	}

	if compileArgv != nil {
		cmd := exec.CommandContext(ctx, compileArgv[0], compileArgv[1:]...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				diag := string(out)
				req.Emit(StreamStderr, diag)
				return Result{Kind: KindCompileError, Diagnostic: diag, Backend: l.name}, nil
			}
			return Result{}, fmt.Errorf("compile: %w", err)
		}
	}

	return l.run(ctx, dir, runArgv, req)
}

func (l *LocalBackend) run(ctx context.Context, dir string, argv []string, req Request) (Result, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start: %w", err)
	}

	// Feed the stdin seed, then stream interactive lines until the process
	// exits or the context is cancelled.
	go func() {
		defer stdin.Close()
		if req.Stdin != "" {
			if _, err := io.WriteString(stdin, req.Stdin); err != nil {
				return
			}
		}
		if req.Input == nil {
			return
		}
		for {
			select {
			case line, ok := <-req.Input:
				if !ok {
					return
				}
				if _, err := io.WriteString(stdin, line+"\n"); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var outBuf, errBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanStream(stdout, StreamStdout, &outBuf, req)
	}()
	go func() {
		defer wg.Done()
		scanStream(stderr, StreamStderr, &errBuf, req)
	}()
	wg.Wait()

	err = cmd.Wait()
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	exit := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("wait: %w", err)
		}
		exit = exitErr.ExitCode()
	}

	return Result{
		Kind:     KindSuccess,
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		ExitCode: exit,
		Backend:  l.name,
	}, nil
}

// scanStream reads a pipe line by line, emitting each line as an output event
// and accumulating the full capture for the result record.
func scanStream(r io.Reader, stream string, buf *strings.Builder, req Request) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		req.Emit(stream, line+"\n")
	}
}

// Capabilities reports local toolchain support, including interactive stdin.
func (l *LocalBackend) Capabilities() Capabilities {
	return Capabilities{
		Name:             l.name,
		Languages:        []string{"java", "python", "javascript", "c", "cpp", "csharp"},
		InteractiveStdin: true,
	}
}
