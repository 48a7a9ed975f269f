// Package sandbox runs a Transformer in an isolated child process with a
// fresh working directory, a scrubbed environment, and a wall-clock
// timeout: "run exactly one Transformer program against exactly one input
// file, with no shell in the loop at all" - the Transformer's own argv is a
// single file path, never a string handed to sh -c.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"
)

// Result is the raw outcome of one sandboxed run.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	WallTime time.Duration
	TimedOut bool
}

// Sandbox runs Transformer programs (always plain Go source per the
// template/oracle generators) as isolated child processes: each program is
// compiled with `go build` into its run's temporary directory and the
// binary is run from there, so it is removed along with that directory -
// appropriate since each Transformer is typically run only a handful of
// times before a cache hit takes over.
type Sandbox struct {
	// GoBin is the `go` binary to invoke; defaults to "go" (resolved via
	// PATH) when empty.
	GoBin string
}

// New builds a Sandbox using the "go" binary on PATH.
func New() *Sandbox {
	return &Sandbox{GoBin: "go"}
}

// Execute runs transformer against inputBytes: it materializes
// transformer.Source into a fresh temporary directory (which
// doubles as the child's cwd; paths outside it are not hidden from the
// child), copies the input
// file into that same directory so the child's single argument never
// resolves outside its sandbox, and runs it under wallTimeout.
func (s *Sandbox) Execute(ctx context.Context, transformer model.Transformer, inputBytes []byte, wallTimeout time.Duration) (Result, error) {
	dir, err := os.MkdirTemp("", "scriptforge-sandbox-*")
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: create tempdir: %w", err)
	}
	defer os.RemoveAll(dir)

	mainPath := filepath.Join(dir, "main.go")
	if err := os.WriteFile(mainPath, []byte(transformer.Source), 0644); err != nil {
		return Result{}, fmt.Errorf("sandbox: write transformer source: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "input.src"), inputBytes, 0644); err != nil {
		return Result{}, fmt.Errorf("sandbox: write input file: %w", err)
	}

	result, err := s.runProgram(ctx, dir, mainPath, []string{"input.src"}, wallTimeout)
	if err == nil {
		if result.TimedOut {
			logging.Sandbox("sandbox: transformer for %s timed out after %v", transformer.FunctionName, result.WallTime)
		} else {
			logging.SandboxDebug("sandbox: transformer for %s exited %d in %v", transformer.FunctionName, result.ExitCode, result.WallTime)
		}
	}
	return result, err
}

// ExecuteTest runs a Generated Test against the Transformer it validates,
// the behavioral check a Transformer must pass. The
// test program receives the transformer's own source file path and the
// sandbox's scratch directory as its two arguments, and is trusted (unlike
// the Transformer under test) to shell out to `go run` itself in order to
// invoke the transformer twice for the determinism check.
func (s *Sandbox) ExecuteTest(ctx context.Context, test model.GeneratedTest, transformer model.Transformer, wallTimeout time.Duration) (Result, error) {
	dir, err := os.MkdirTemp("", "scriptforge-test-*")
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: create tempdir: %w", err)
	}
	defer os.RemoveAll(dir)

	transformerPath := filepath.Join(dir, "transformer.go")
	if err := os.WriteFile(transformerPath, []byte(transformer.Source), 0644); err != nil {
		return Result{}, fmt.Errorf("sandbox: write transformer source: %w", err)
	}

	testPath := filepath.Join(dir, "test.go")
	if err := os.WriteFile(testPath, []byte(test.Source), 0644); err != nil {
		return Result{}, fmt.Errorf("sandbox: write test source: %w", err)
	}

	result, err := s.runProgram(ctx, dir, testPath, []string{transformerPath, dir}, wallTimeout)
	if err == nil {
		if result.TimedOut {
			logging.Sandbox("sandbox: generated test for %s timed out after %v", test.FunctionName, result.WallTime)
		} else {
			logging.SandboxDebug("sandbox: generated test for %s exited %d in %v", test.FunctionName, result.ExitCode, result.WallTime)
		}
	}
	return result, err
}

// runProgram is the shared child-process isolation primitive: a fresh
// working directory as the child's cwd (no filesystem restriction beyond
// that), a scrubbed
// environment carrying no parent secrets, and a hard wall-clock
// timeout enforced by the parent.
func (s *Sandbox) runProgram(ctx context.Context, dir, programPath string, args []string, wallTimeout time.Duration) (Result, error) {
	goBin := s.GoBin
	if goBin == "" {
		goBin = "go"
	}

	gocache := filepath.Join(dir, "gocache")
	if err := os.MkdirAll(gocache, 0755); err != nil {
		return Result{}, fmt.Errorf("sandbox: create gocache dir: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, wallTimeout)
	defer cancel()

	// The program is built to a binary that is then run directly: `go run`
	// reports exit status 1 for any non-zero exit, and takes any further
	// *.go argument as another source file rather than as an argument.
	binPath := filepath.Join(dir, "program.bin")
	build := exec.CommandContext(execCtx, goBin, "build", "-o", binPath, programPath)
	cmd := exec.CommandContext(execCtx, binPath, args...)
	cmd.Dir = dir
	// Minimal environment: no parent secrets, no module-search-path
	// leakage - just enough for the go tool to compile in isolation.
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		"GOCACHE=" + gocache,
		"GOFLAGS=-mod=mod",
		"SCRIPTFORGE_SANDBOX=1",
	}
	build.Dir, build.Env = dir, cmd.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	build.Stderr = &stderr

	start := time.Now()
	err := build.Run()
	if err == nil {
		err = cmd.Run()
	}
	elapsed := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		return Result{TimedOut: true, WallTime: elapsed, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, fmt.Errorf("sandbox: run program: %w", err)
		}
	}

	return Result{ExitCode: exitCode, Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), WallTime: elapsed}, nil
}
