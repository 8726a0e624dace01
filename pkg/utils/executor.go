package utils

import (
	"bytes"
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	utilexec "k8s.io/utils/exec"
)

// Result is the captured outcome of an external command. A non-zero
// ExitCode is not an error by itself, callers decide what it means.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Failed returns true if the command exited with a non-zero status.
func (r *Result) Failed() bool {
	return r.ExitCode != 0
}

// Executor runs device inspection and mutation commands.
type Executor interface {
	// Run executes name with args and waits for it to exit. The returned
	// error is only set when the command could not be run at all.
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

type executor struct {
	exec utilexec.Interface
}

// NewExecutor returns an Executor running commands on the local host.
func NewExecutor() Executor {
	return NewExecutorWithInterface(utilexec.New())
}

func NewExecutorWithInterface(exec utilexec.Interface) Executor {
	return &executor{exec: exec}
}

func (e *executor) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	var stdout, stderr bytes.Buffer
	cmdline := strings.TrimSpace(name + " " + strings.Join(args, " "))
	logrus.Tracef("Executing `%s`", cmdline)

	cmd := e.exec.CommandContext(ctx, name, args...)
	cmd.SetStdout(&stdout)
	cmd.SetStderr(&stderr)
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.Wrapf(ctxErr, "interrupted while executing `%s`", cmdline)
	}

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr utilexec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errors.Wrapf(err, "failed to execute `%s`", cmdline)
		}
		result.ExitCode = exitErr.ExitStatus()
	}
	logrus.WithFields(logrus.Fields{
		"command":  cmdline,
		"exitCode": result.ExitCode,
	}).Trace("Command finished")
	return result, nil
}
