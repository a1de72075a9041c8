package launcher

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/config"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/wine"
)

type fakeProcs struct {
	alive      map[int32]bool
	matches    []int32
	terminated []int32
	failOn     int32
}

func (f *fakeProcs) Exists(pid int32) bool { return f.alive[pid] }

func (f *fakeProcs) Find(string) ([]int32, error) { return f.matches, nil }

func (f *fakeProcs) Terminate(pid int32) error {
	if pid == f.failOn {
		return errors.New("operation not permitted")
	}
	f.terminated = append(f.terminated, pid)
	return nil
}

var testRecord = &record.InstallationRecord{
	InstallPath: "/home/u/.photoshopCCV19",
	CachePath:   "/home/u/.cache/photoshopCCV19",
}

func newTestLauncher(t *testing.T, procs *fakeProcs) (*Launcher, afero.Fs, *command.FakeRunner) {
	t.Helper()
	cfg := config.Default()
	runner := command.NewFakeRunner()
	w, err := wine.New(runner, cfg, testRecord.PrefixPath(), "")
	if err != nil {
		t.Fatal(err)
	}

	fsys := afero.NewMemMapFs()
	return New(fsys, w, testRecord, cfg.Wine.PhotoshopExe, procs), fsys, runner
}

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fsys, path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func exists(fsys afero.Fs, path string) bool {
	ok, _ := afero.Exists(fsys, path)
	return ok
}

func TestExePath(t *testing.T) {
	l, _, _ := newTestLauncher(t, &fakeProcs{})
	want := "/home/u/.photoshopCCV19/prefix/drive_c/Program Files/Adobe/Adobe Photoshop CC 2019/Photoshop.exe"
	if l.ExePath() != want {
		t.Errorf("ExePath() = %q, want %q", l.ExePath(), want)
	}
}

func TestLaunchNotInstalled(t *testing.T) {
	l, _, runner := newTestLauncher(t, &fakeProcs{})
	if err := l.Launch(context.Background(), nil); !errors.Is(err, record.ErrNotInstalled) {
		t.Errorf("Launch() error = %v, want ErrNotInstalled", err)
	}
	if len(runner.Calls()) != 0 {
		t.Errorf("unexpected commands: %v", runner.CommandLines())
	}
}

func TestLaunchConvertsFiles(t *testing.T) {
	l, fsys, runner := newTestLauncher(t, &fakeProcs{})
	writeFile(t, fsys, l.ExePath(), "MZ")
	writeFile(t, fsys, "/home/u/art/cover.psd", "8BPS")

	runner.On("winepath -w /home/u/art/cover.psd", `Z:\home\u\art\cover.psd`, 0)
	runner.On("wine ", "fixme:noise\n", 0)

	if err := l.Launch(context.Background(), []string{"/home/u/art/cover.psd", "/home/u/missing.psd"}); err != nil {
		t.Fatalf("Launch() failed: %v", err)
	}

	want := []string{
		"winepath -w /home/u/art/cover.psd",
		"wine " + l.ExePath() + ` Z:\home\u\art\cover.psd`,
	}
	if got := runner.CommandLines(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}

	log, err := afero.ReadFile(fsys, testRecord.LogPath())
	if err != nil {
		t.Fatalf("launch log missing: %v", err)
	}
	if !strings.HasPrefix(string(log), "=== ") {
		t.Errorf("log should start with a session header:\n%s", log)
	}
	if !strings.Contains(string(log), "fixme:noise") {
		t.Errorf("log missing Wine output:\n%s", log)
	}

	if exists(fsys, testRecord.PIDPath()) {
		t.Error("PID file should be removed after exit")
	}
}

func TestLaunchReportsExitStatus(t *testing.T) {
	l, fsys, runner := newTestLauncher(t, &fakeProcs{})
	writeFile(t, fsys, l.ExePath(), "MZ")
	runner.On("wine ", "", 3)

	err := l.Launch(context.Background(), nil)
	if err == nil {
		t.Fatal("Launch() should fail")
	}
	if code := command.ExitCode(err); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestRunning(t *testing.T) {
	procs := &fakeProcs{alive: map[int32]bool{4242: true}}
	l, fsys, _ := newTestLauncher(t, procs)

	if _, ok := l.Running(); ok {
		t.Error("Running() = true without a PID file")
	}

	writeFile(t, fsys, testRecord.PIDPath(), "4242\n")
	if pid, ok := l.Running(); !ok || pid != 4242 {
		t.Errorf("Running() = %d, %v, want 4242, true", pid, ok)
	}

	writeFile(t, fsys, testRecord.PIDPath(), "999\n")
	if _, ok := l.Running(); ok {
		t.Error("Running() = true for a dead pid")
	}
	if exists(fsys, testRecord.PIDPath()) {
		t.Error("stale PID file should be removed")
	}
}

func TestKill(t *testing.T) {
	procs := &fakeProcs{alive: map[int32]bool{4242: true}, matches: []int32{4242, 4300}}
	l, fsys, runner := newTestLauncher(t, procs)
	writeFile(t, fsys, testRecord.PIDPath(), "4242\n")

	n, err := l.Kill(context.Background())
	if err != nil {
		t.Fatalf("Kill() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Kill() = %d, want 2", n)
	}

	sort.Slice(procs.terminated, func(i, j int) bool { return procs.terminated[i] < procs.terminated[j] })
	if want := []int32{4242, 4300}; !reflect.DeepEqual(procs.terminated, want) {
		t.Errorf("terminated = %v, want %v", procs.terminated, want)
	}
	if want := []string{"wineserver -k"}; !reflect.DeepEqual(runner.CommandLines(), want) {
		t.Errorf("commands = %v, want %v", runner.CommandLines(), want)
	}
	if exists(fsys, testRecord.PIDPath()) {
		t.Error("PID file should be removed")
	}
}

func TestKillNothingRunning(t *testing.T) {
	l, _, runner := newTestLauncher(t, &fakeProcs{})

	if _, err := l.Kill(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Kill() error = %v, want ErrNotRunning", err)
	}
	// wineserver is stopped regardless.
	if want := []string{"wineserver -k"}; !reflect.DeepEqual(runner.CommandLines(), want) {
		t.Errorf("commands = %v, want %v", runner.CommandLines(), want)
	}
}

func TestKillPartialFailure(t *testing.T) {
	procs := &fakeProcs{matches: []int32{10, 11}, failOn: 11}
	l, _, _ := newTestLauncher(t, procs)

	n, err := l.Kill(context.Background())
	if err == nil {
		t.Fatal("Kill() should report the failed process")
	}
	if n != 1 {
		t.Errorf("Kill() = %d, want 1", n)
	}
	if !strings.Contains(err.Error(), "process 11") {
		t.Errorf("error should name process 11: %v", err)
	}
}
