package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/paths"
	"github.com/blackwell-systems/pswine/internal/record"
	"github.com/blackwell-systems/pswine/internal/shell"
	"github.com/blackwell-systems/pswine/internal/store"
)

type fixture struct {
	root   string
	fs     afero.Fs
	runner *command.FakeRunner
	clock  *clockwork.FakeClock
	mgr    *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	root := t.TempDir()
	f := &fixture{
		root:   root,
		fs:     afero.NewOsFs(),
		runner: command.NewFakeRunner(),
		clock:  clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
	}
	f.mgr = New(f.fs, st, filepath.Join(root, "checkpoints"), paths.NewGuard(root), f.runner,
		WithClock(f.clock), WithRunID("test-run"))
	return f
}

func (f *fixture) create(t *testing.T, name string) {
	t.Helper()
	if _, err := f.mgr.Create(name, nil); err != nil {
		t.Fatalf("Create(%q) failed: %v", name, err)
	}
}

func (f *fixture) mkdir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(f.root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := f.mgr.Created(dir); err != nil {
		t.Fatalf("Created(%s) failed: %v", dir, err)
	}
	return dir
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "before-wine", want: "before-wine"},
		{in: "a;b", want: "ab"},
		{in: "  x  ", want: "x"},
		{in: "", wantErr: true},
		{in: ";|&", wantErr: true},
		{in: "../x", wantErr: true},
		{in: "..", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanName(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("CleanName(%q) error = %v, want ErrInvalidName", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanName(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("CleanName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCreateAndLoad(t *testing.T) {
	f := newFixture(t)

	install := filepath.Join(f.root, "ps")
	if err := os.MkdirAll(filepath.Join(install, "prefix"), 0755); err != nil {
		t.Fatal(err)
	}
	rec := &record.InstallationRecord{InstallPath: install, CachePath: filepath.Join(f.root, "cache")}

	cp, err := f.mgr.Create("after-prefix", rec)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if !cp.WinePrefixExists {
		t.Error("expected WinePrefixExists to be true")
	}

	data, err := os.ReadFile(filepath.Join(f.mgr.Dir(), "after-prefix.checkpoint"))
	if err != nil {
		t.Fatalf("checkpoint file missing: %v", err)
	}
	for _, line := range []string{
		"name=after-prefix\n",
		"timestamp=2024-05-01T10:00:00Z\n",
		"wine_prefix_exists=true\n",
		"scr_path=" + install + "\n",
	} {
		if !strings.Contains(string(data), line) {
			t.Errorf("checkpoint file missing %q:\n%s", line, data)
		}
	}

	loaded, err := f.mgr.Load("after-prefix")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !reflect.DeepEqual(cp, loaded) {
		t.Errorf("Load() = %+v, want %+v", loaded, cp)
	}
}

func TestCreateWithoutRecord(t *testing.T) {
	f := newFixture(t)

	cp, err := f.mgr.Create("start", nil)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if cp.WinePrefixExists || cp.ScrPath != "" {
		t.Errorf("expected an empty snapshot, got %+v", cp)
	}
}

func TestLoadMissing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.Load("nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestDecodeSkipsUnknownKeys(t *testing.T) {
	cp, err := decode([]byte("# comment\nname=x\nextra=1\nwine_prefix_exists=false\n"))
	if err != nil {
		t.Fatalf("decode() failed: %v", err)
	}
	if cp.Name != "x" {
		t.Errorf("Name = %q, want x", cp.Name)
	}

	if _, err := decode([]byte("garbage\n")); err == nil {
		t.Error("expected error for a line without '='")
	}
	if _, err := decode([]byte("scr_path=/x\n")); err == nil {
		t.Error("expected error for a file without a name")
	}
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)

	f.create(t, "one")
	f.mkdir(t, "a")
	f.clock.Advance(time.Minute)
	f.create(t, "two")

	list, err := f.mgr.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(list))
	}
	if list[0].Name != "two" || list[0].Pending != 0 {
		t.Errorf("list[0] = %s with %d pending, want two with 0", list[0].Name, list[0].Pending)
	}
	if list[1].Name != "one" || list[1].Pending != 1 {
		t.Errorf("list[1] = %s with %d pending, want one with 1", list[1].Name, list[1].Pending)
	}

	latest, err := f.mgr.Latest()
	if err != nil {
		t.Fatalf("Latest() failed: %v", err)
	}
	if latest != "two" {
		t.Errorf("Latest() = %q, want two", latest)
	}
}

func TestRollbackReplaysInReverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, "clean")

	dir := f.mkdir(t, filepath.Join("prefix", "drive_c"))
	dir = filepath.Dir(dir)
	if err := f.mgr.Created(dir); err != nil {
		t.Fatal(err)
	}

	recFile := filepath.Join(f.root, ".psdata.txt")
	if err := os.WriteFile(recFile, []byte("original\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.Modifying(recFile); err != nil {
		t.Fatalf("Modifying() failed: %v", err)
	}
	if err := os.WriteFile(recFile, []byte("changed\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fresh := filepath.Join(f.root, "fresh.txt")
	if err := f.mgr.Modifying(fresh); err != nil {
		t.Fatalf("Modifying() failed: %v", err)
	}
	if err := os.WriteFile(fresh, []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(f.root, "photoshop")
	if err := os.Symlink("/usr/bin/true", link); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.Linked(link); err != nil {
		t.Fatalf("Linked() failed: %v", err)
	}

	if err := f.mgr.Compensate("mime", "update-mime-database", "first"); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.Compensate("mime", "update-mime-database", "second"); err != nil {
		t.Fatal(err)
	}

	cp, err := f.mgr.Rollback(ctx, "clean")
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if cp.Name != "clean" {
		t.Errorf("Rollback() returned %q, want clean", cp.Name)
	}

	for _, path := range []string{dir, fresh, link} {
		if exists(path) {
			t.Errorf("%s still exists after rollback", path)
		}
	}

	data, err := os.ReadFile(recFile)
	if err != nil {
		t.Fatalf("record file missing: %v", err)
	}
	if string(data) != "original\n" {
		t.Errorf("record content = %q, want original", data)
	}

	want := []string{"update-mime-database second", "update-mime-database first"}
	if got := f.runner.CommandLines(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}

	// Nothing is replayed twice.
	if _, err := f.mgr.Rollback(ctx, "clean"); err != nil {
		t.Fatalf("second Rollback() failed: %v", err)
	}
	if n := len(f.runner.Calls()); n != 2 {
		t.Errorf("expected 2 commands after second rollback, got %d", n)
	}
}

func TestRollbackStripsProfileEntryOnly(t *testing.T) {
	f := newFixture(t)
	t.Setenv("HOME", f.root)
	t.Setenv("SHELL", "/bin/bash")
	t.Setenv("PATH", "/usr/bin")

	profile, _ := shell.ProfilePath(f.root, "/bin/bash")
	if err := os.WriteFile(profile, []byte("export EDITOR=vim\n"), 0644); err != nil {
		t.Fatal(err)
	}

	f.create(t, "before-path")
	if _, _, err := shell.EnsurePathEntry(f.fs, f.mgr, filepath.Join(f.root, "bin")); err != nil {
		t.Fatalf("EnsurePathEntry() failed: %v", err)
	}

	// The user keeps editing the profile after setup.
	fh, err := os.OpenFile(profile, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	fh.WriteString("export FOO=1\n")
	fh.Close()

	if _, err := f.mgr.Rollback(context.Background(), "before-path"); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	data, err := os.ReadFile(profile)
	if err != nil {
		t.Fatalf("profile removed: %v", err)
	}
	content := string(data)
	if strings.Contains(content, shell.Marker) {
		t.Errorf("PATH block still present:\n%s", content)
	}
	if !strings.Contains(content, "export EDITOR=vim\n") || !strings.Contains(content, "export FOO=1\n") {
		t.Errorf("user lines lost:\n%s", content)
	}
}

func TestRollbackRemovesCreatedProfile(t *testing.T) {
	tests := []struct {
		name     string
		userLine string
		wantFile bool
	}{
		{name: "untouched", wantFile: false},
		{name: "edited later", userLine: "export FOO=1\n", wantFile: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			t.Setenv("HOME", f.root)
			t.Setenv("SHELL", "/bin/zsh")
			t.Setenv("PATH", "/usr/bin")

			f.create(t, "before-path")
			_, profile, err := shell.EnsurePathEntry(f.fs, f.mgr, filepath.Join(f.root, "bin"))
			if err != nil {
				t.Fatalf("EnsurePathEntry() failed: %v", err)
			}
			if tt.userLine != "" {
				data, _ := os.ReadFile(profile)
				if err := os.WriteFile(profile, append(data, tt.userLine...), 0644); err != nil {
					t.Fatal(err)
				}
			}

			if _, err := f.mgr.Rollback(context.Background(), "before-path"); err != nil {
				t.Fatalf("Rollback() failed: %v", err)
			}

			if got := exists(profile); got != tt.wantFile {
				t.Errorf("profile exists = %v, want %v", got, tt.wantFile)
			}
			if tt.wantFile {
				data, _ := os.ReadFile(profile)
				if string(data) != tt.userLine {
					t.Errorf("profile = %q, want %q", data, tt.userLine)
				}
			}
		})
	}
}

func TestRollbackOnlyAfterCheckpoint(t *testing.T) {
	f := newFixture(t)

	early := f.mkdir(t, "early")
	f.create(t, "mid")
	late := f.mkdir(t, "late")

	if _, err := f.mgr.Rollback(context.Background(), "mid"); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	if !exists(early) {
		t.Error("action recorded before the checkpoint was undone")
	}
	if exists(late) {
		t.Error("action recorded after the checkpoint was not undone")
	}
}

func TestRollbackContinuesPastFailures(t *testing.T) {
	f := newFixture(t)

	f.create(t, "cp")
	kept := f.mkdir(t, "kept")
	if err := f.mgr.Created("/etc/pswine"); err != nil {
		t.Fatal(err)
	}
	f.runner.On("broken", "boom", 2)
	if err := f.mgr.Compensate("x", "broken"); err != nil {
		t.Fatal(err)
	}

	_, err := f.mgr.Rollback(context.Background(), "cp")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, paths.ErrUnsafePath) {
		t.Errorf("error %v does not wrap ErrUnsafePath", err)
	}
	if code := command.ExitCode(err); code != 2 {
		t.Errorf("ExitCode() = %d, want 2", code)
	}

	// The safe action still ran.
	if exists(kept) {
		t.Error("safe action was skipped")
	}

	list, err := f.mgr.List()
	if err != nil {
		t.Fatal(err)
	}
	if list[0].Pending != 2 {
		t.Errorf("pending = %d, want 2", list[0].Pending)
	}
}

func TestRollbackUnknownCheckpoint(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.Rollback(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Rollback() error = %v, want ErrNotFound", err)
	}
}

func TestRecreateMovesJournalPosition(t *testing.T) {
	f := newFixture(t)

	f.create(t, "cp")
	dir := f.mkdir(t, "d")
	f.create(t, "cp")

	if _, err := f.mgr.Rollback(context.Background(), "cp"); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if !exists(dir) {
		t.Error("action before the re-created checkpoint was undone")
	}
}

func TestRollbackAll(t *testing.T) {
	f := newFixture(t)

	dir := f.mkdir(t, "d")
	f.create(t, "cp")

	if err := f.mgr.RollbackAll(context.Background()); err != nil {
		t.Fatalf("RollbackAll() failed: %v", err)
	}
	if exists(dir) {
		t.Error("RollbackAll() left the directory")
	}
}

func TestPrune(t *testing.T) {
	f := newFixture(t)

	f.create(t, "old")
	f.clock.Advance(48 * time.Hour)
	f.create(t, "new")

	n, err := f.mgr.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}

	list, err := f.mgr.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "new" {
		t.Errorf("remaining checkpoints = %v, want [new]", list)
	}
	if exists(filepath.Join(f.mgr.Dir(), "old.checkpoint")) {
		t.Error("old checkpoint file left behind")
	}
}
