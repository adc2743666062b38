package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ExitNotFound is reported when the executable could not be located or started.
const ExitNotFound = 127

// ExitTimeout is reported when a command is killed for exceeding the step timeout.
const ExitTimeout = -1

// Result holds the captured outcome of one executed command.
type Result struct {
	Command         []string `json:"command"`
	ExitCode        int      `json:"exit_code"`
	Stdout          string   `json:"stdout"`
	Stderr          string   `json:"stderr"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// Failed reports whether the command exited nonzero.
func (r Result) Failed() bool {
	return r.ExitCode != 0
}

// Cmd describes a command to execute.
type Cmd struct {
	Args []string
	Dir  string   // working directory; "" = current
	Env  []string // KEY=VALUE pairs appended to the inherited environment
}

// CommandRunner abstracts process execution for testability.
// A non-nil error means the process could not be started at all.
type CommandRunner interface {
	Run(ctx context.Context, cmd Cmd) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, c Cmd) (string, string, int, error) {
	if len(c.Args) == 0 {
		return "", "", -1, fmt.Errorf("exec: empty command")
	}
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Executor runs commands and never fails: nonzero exits, launch failures and
// timeouts are all reported inside the Result.
type Executor struct {
	cmd     CommandRunner
	timeout time.Duration
}

// NewExecutor creates an Executor. A zero timeout means no deadline.
func NewExecutor(cmd CommandRunner, timeout time.Duration) *Executor {
	if cmd == nil {
		cmd = &ExecRunner{}
	}
	return &Executor{cmd: cmd, timeout: timeout}
}

// Run executes c and captures its outcome.
func (e *Executor) Run(ctx context.Context, c Cmd) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, exitCode, err := e.cmd.Run(ctx, c)
	elapsed := time.Since(start).Seconds()

	res := Result{
		Command:         append([]string(nil), c.Args...),
		ExitCode:        exitCode,
		Stdout:          stdout,
		Stderr:          stderr,
		DurationSeconds: elapsed,
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.ExitCode = ExitTimeout
		res.Stderr = appendLine(res.Stderr, fmt.Sprintf("timeout after %s", e.timeout))
	case err != nil:
		res.ExitCode = ExitNotFound
		res.Stdout = ""
		res.Stderr = err.Error()
	}
	return res
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return strings.TrimRight(s, "\n") + "\n" + line
}

// FormatLogEntry renders a result as one block of the repository log.
func FormatLogEntry(r Result) string {
	lines := []string{"$ " + strings.Join(r.Command, " ")}
	if out := strings.TrimRight(r.Stdout, " \t\r\n"); out != "" {
		lines = append(lines, out)
	}
	if errOut := strings.TrimRight(r.Stderr, " \t\r\n"); errOut != "" {
		lines = append(lines, errOut)
	}
	lines = append(lines, fmt.Sprintf("[exit %d | %.2fs]", r.ExitCode, r.DurationSeconds))
	return strings.Join(lines, "\n")
}
