package command

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestExecRunnerRun(t *testing.T) {
	r := ExecRunner{}

	out, err := r.Run(context.Background(), Shell("echo hello"))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("output = %q, want %q", out, "hello\n")
	}

	_, err = r.Run(context.Background(), Shell("echo boom >&2; exit 3"))
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("Code = %d, want 3", exitErr.Code)
	}
	if exitErr.Output != "boom" {
		t.Errorf("Output = %q, want boom", exitErr.Output)
	}
	if code := ExitCode(err); code != 3 {
		t.Errorf("ExitCode() = %d, want 3", code)
	}
}

func TestExecRunnerEnvAndWriters(t *testing.T) {
	var stdout bytes.Buffer
	cmd := Shell("printf %s \"$PSWINE_TEST\"")
	cmd.Env = []string{"PSWINE_TEST=prefix-value"}
	cmd.Stdout = &stdout

	if _, err := (ExecRunner{}).Run(context.Background(), cmd); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stdout.String() != "prefix-value" {
		t.Errorf("stdout = %q, want prefix-value", stdout.String())
	}
}

func TestExecRunnerStart(t *testing.T) {
	proc, err := ExecRunner{}.Start(context.Background(), Shell("exit 4"))
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if proc.Pid() <= 0 {
		t.Errorf("Pid() = %d, want a positive pid", proc.Pid())
	}
	if code := ExitCode(proc.Wait()); code != 4 {
		t.Errorf("exit code = %d, want 4", code)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{&ExitError{Code: 7}, 7},
		{errors.New("not found"), 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "wine", Args: []string{"wineboot", "--init"}}
	if c.String() != "wine wineboot --init" {
		t.Errorf("String() = %q", c.String())
	}
	if want := []string{"wine", "wineboot", "--init"}; !reflect.DeepEqual(c.Argv(), want) {
		t.Errorf("Argv() = %v, want %v", c.Argv(), want)
	}
}

func TestFakeRunner(t *testing.T) {
	f := NewFakeRunner().On("winetricks", "failed", 2)
	f.Missing["notify-send"] = true

	if _, err := f.Run(context.Background(), Command{Name: "wine", Args: []string{"--version"}}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	_, err := f.Run(context.Background(), Command{Name: "winetricks", Args: []string{"-q", "corefonts"}})
	if code := ExitCode(err); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}

	if _, err := f.LookPath("notify-send"); err == nil {
		t.Error("LookPath() should fail for a missing program")
	}

	want := []string{"wine --version", "winetricks -q corefonts"}
	if got := f.CommandLines(); !reflect.DeepEqual(got, want) {
		t.Errorf("CommandLines() = %v, want %v", got, want)
	}
}
