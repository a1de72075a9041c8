package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRunner records commands instead of running them. Responses are
// matched by the first registered prefix of the command line.
type FakeRunner struct {
	mu        sync.Mutex
	calls     []Command
	responses []fakeResponse

	// Missing lists programs LookPath should report as absent.
	Missing map[string]bool

	// Hook, when set, is called with every command before it is answered.
	// Tests use it to create the files a real program would write.
	Hook func(Command)
}

type fakeResponse struct {
	prefix string
	output string
	code   int
}

// NewFakeRunner returns a FakeRunner where every command succeeds.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Missing: map[string]bool{}}
}

// On registers the output and exit code for commands starting with prefix.
func (f *FakeRunner) On(prefix, output string, code int) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, output: output, code: code})
	return f
}

// Calls returns every command seen so far.
func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CommandLines returns Calls rendered with Command.String.
func (f *FakeRunner) CommandLines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	output, code := f.record(c)
	if c.Stdout != nil {
		fmt.Fprint(c.Stdout, output)
	}
	if code != 0 {
		return []byte(output), &ExitError{Command: c.String(), Code: code, Output: output}
	}
	return []byte(output), nil
}

// Start implements Runner. The returned process finishes immediately with
// the registered exit code.
func (f *FakeRunner) Start(ctx context.Context, c Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	output, code := f.record(c)
	if c.Stdout != nil {
		fmt.Fprint(c.Stdout, output)
	}
	f.mu.Lock()
	pid := 1000 + len(f.calls)
	f.mu.Unlock()
	return &fakeProcess{pid: pid, code: code, command: c.String()}, nil
}

// LookPath implements Runner.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}

func (f *FakeRunner) record(c Command) (string, int) {
	if f.Hook != nil {
		f.Hook(c)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	line := c.String()
	for _, r := range f.responses {
		if strings.HasPrefix(line, r.prefix) {
			return r.output, r.code
		}
	}
	return "", 0
}

type fakeProcess struct {
	pid     int
	code    int
	command string
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Wait() error {
	if p.code != 0 {
		return &ExitError{Command: p.command, Code: p.code}
	}
	return nil
}
