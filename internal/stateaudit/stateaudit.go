// Package stateaudit runs the read-only terraform inspection commands in order.
package stateaudit

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Command is one program invocation.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Commands are run in this order.
var Commands = []Command{
	{Name: "terraform", Args: []string{"workspace", "show"}},
	{Name: "terraform", Args: []string{"state", "list"}},
	{Name: "terraform", Args: []string{"providers"}},
}

// Runner executes one command and returns its exit code.
// A command that cannot be started returns a non-nil error.
type Runner interface {
	Run(ctx context.Context, c Command) (int, error)
}

// ExecRunner runs commands as child processes sharing the given stdio.
type ExecRunner struct {
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner inherits the current process's stdio.
func NewExecRunner() ExecRunner {
	return ExecRunner{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r ExecRunner) Run(ctx context.Context, c Command) (int, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = r.Dir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = r.Stdin, r.Stdout, r.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		return 1, nil
	}
	return 1, err
}

// Audit runs every command, continuing past failures.
// The result is the last non-zero exit code, with unstartable commands counting as 1, else 0.
func Audit(ctx context.Context, r Runner, cmds []Command, logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}
	exitCode := 0
	for _, c := range cmds {
		code, err := r.Run(ctx, c)
		if err != nil {
			logger.Error("command failed to start", zap.String("command", c.String()), zap.Error(err))
			code = 1
		}
		if code != 0 {
			logger.Debug("command exited", zap.String("command", c.String()), zap.Int("code", code))
			exitCode = code
		}
	}
	return exitCode
}
