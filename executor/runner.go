package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// CommandRequest captures one shell invocation.
type CommandRequest struct {
	CommandLine string
	Workdir     string
	Env         []string
	Timeout     time.Duration
	// Sink, when set, receives stdout/stderr line by line as the process
	// runs. When nil both streams are only buffered.
	Sink OutputSink
}

// CommandResult holds the captured streams and exit status. Both modes
// capture; streaming additionally forwards, so failure diagnostics always
// have the full text available.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner executes a command line through the platform shell.
// A non-zero exit status is reported via ExitCode, not via err; err is
// reserved for failures to run the command at all.
type CommandRunner interface {
	Run(ctx context.Context, req CommandRequest) (CommandResult, error)
}

// ShellCommandRunner spawns commands through the platform shell, matching
// how a user would have typed them in a terminal.
type ShellCommandRunner struct{}

func (ShellCommandRunner) Run(ctx context.Context, req CommandRequest) (CommandResult, error) {
	if strings.TrimSpace(req.CommandLine) == "" {
		return CommandResult{}, errors.New("command line required")
	}
	execCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	shell, flag := platformShell()
	cmd := exec.CommandContext(execCtx, shell, flag, req.CommandLine)
	cmd.Dir = req.Workdir
	if len(req.Env) > 0 {
		cmd.Env = req.Env
	}

	if req.Sink == nil {
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err := cmd.Run()
		return finishResult(stdout.String(), stderr.String(), err)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return CommandResult{}, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return CommandResult{}, err
	}
	if err := cmd.Start(); err != nil {
		return CommandResult{}, err
	}

	var stdout, stderr strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdoutPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			stdout.WriteString(line + "\n")
			req.Sink.Line(StreamStdout, line)
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			stderr.WriteString(line + "\n")
			req.Sink.Line(StreamStderr, line)
		}
	}()
	// Both pipes must be drained before Wait closes them and the exit
	// status is considered final.
	wg.Wait()
	err = cmd.Wait()
	return finishResult(stdout.String(), stderr.String(), err)
}

func finishResult(stdout, stderr string, err error) (CommandResult, error) {
	result := CommandResult{Stdout: stdout, Stderr: stderr}
	if err == nil {
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, err
}

func platformShell() (string, string) {
	if runtime.GOOS == "windows" {
		return "cmd", "/C"
	}
	return "sh", "-c"
}
