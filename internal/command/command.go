// Package command runs external programs (wine, winetricks, desktop
// database tools) behind an interface so the flows that drive them can be
// tested without spawning processes.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external program invocation.
type Command struct {
	Name string
	Args []string

	// Env is appended to the current process environment.
	Env []string
	Dir string

	// When Stdout is nil, Run captures combined output and returns it.
	Stdout io.Writer
	Stderr io.Writer
}

// Shell wraps a shell command string in sh -c.
func Shell(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	return strings.Join(parts, " ")
}

// Argv returns name and args as one slice.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// Process is a started command.
type Process interface {
	Pid() int
	Wait() error
}

// Runner executes commands.
type Runner interface {
	// Run executes the command and waits for it. A non-zero exit is
	// reported as *ExitError.
	Run(ctx context.Context, cmd Command) ([]byte, error)

	// Start launches the command without waiting for it.
	Start(ctx context.Context, cmd Command) (Process, error)

	// LookPath reports where a program would be found.
	LookPath(name string) (string, error)
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Output  string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d (output: %s)", e.Command, e.Code, e.Output)
}

// ExitCode extracts the exit status from err: 0 for nil, the process status
// for *ExitError, and 1 for any other failure (the command did not run).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := build(ctx, c)

	var combined bytes.Buffer
	if c.Stdout == nil {
		cmd.Stdout = &combined
		cmd.Stderr = &combined
	} else {
		cmd.Stdout = c.Stdout
		cmd.Stderr = c.Stderr
		if c.Stderr == nil {
			cmd.Stderr = c.Stdout
		}
	}

	err := cmd.Run()
	output := combined.Bytes()
	if err == nil {
		return output, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, &ExitError{
			Command: c.String(),
			Code:    exitErr.ExitCode(),
			Output:  strings.TrimSpace(string(output)),
		}
	}
	return output, fmt.Errorf("%s failed: %w", c.String(), err)
}

// Start implements Runner.
func (ExecRunner) Start(ctx context.Context, c Command) (Process, error) {
	cmd := build(ctx, c)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.String(), err)
	}
	return &execProcess{cmd: cmd}, nil
}

// LookPath implements Runner.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func build(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: strings.Join(p.cmd.Args, " "), Code: exitErr.ExitCode()}
	}
	return err
}
