package wine

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/config"
)

func newTestWine(t *testing.T, mutate func(*config.Config), variant string) (*Wine, *command.FakeRunner) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	runner := command.NewFakeRunner()
	w, err := New(runner, cfg, "/home/u/.photoshopCCV19/prefix", variant)
	if err != nil {
		t.Fatal(err)
	}
	return w, runner
}

func envMap(env []string) map[string]string {
	out := map[string]string{}
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		out[k] = v
	}
	return out
}

func checkEnv(t *testing.T, env map[string]string, want map[string]string) {
	t.Helper()
	for k, v := range want {
		if env[k] != v {
			t.Errorf("%s = %q, want %q", k, env[k], v)
		}
	}
}

func TestEnvDefaults(t *testing.T) {
	w, _ := newTestWine(t, nil, "")
	env := envMap(w.Env())

	checkEnv(t, env, map[string]string{
		"WINEPREFIX":       "/home/u/.photoshopCCV19/prefix",
		"WINEDEBUG":        "-all",
		"WINEDLLOVERRIDES": "winemenubuilder.exe=d",
		"WINEESYNC":        "1",
		"WINEFSYNC":        "0",
	})
	for _, k := range []string{"LANG", "WINE"} {
		if _, ok := env[k]; ok {
			t.Errorf("%s set without a variant or locale", k)
		}
	}
}

func TestEnvVariantAndPassthrough(t *testing.T) {
	w, _ := newTestWine(t, func(c *config.Config) {
		c.Wine.Variants["ge"] = config.VariantConfig{BinDir: "/opt/wine-ge/bin"}
		c.Wine.Lang = "de_DE.UTF-8"
		c.Env["__GL_THREADED_OPTIMIZATIONS"] = "1"
		c.Env["WINEDEBUG"] = "+loaddll"
	}, "ge")
	env := envMap(w.Env())

	checkEnv(t, env, map[string]string{
		"WINE":                        "/opt/wine-ge/bin/wine",
		"WINESERVER":                  "/opt/wine-ge/bin/wineserver",
		"LANG":                        "de_DE.UTF-8",
		"LC_ALL":                      "de_DE.UTF-8",
		"__GL_THREADED_OPTIMIZATIONS": "1",
		"WINEDEBUG":                   "+loaddll", // passthrough wins
	})
	if !strings.HasPrefix(env["PATH"], "/opt/wine-ge/bin:") {
		t.Errorf("PATH = %q, want the variant bin dir first", env["PATH"])
	}
	if got := w.Bin("wineboot"); got != "/opt/wine-ge/bin/wineboot" {
		t.Errorf("Bin(wineboot) = %q", got)
	}
}

func TestUnknownVariant(t *testing.T) {
	if _, err := New(command.NewFakeRunner(), config.Default(), "/p", "nope"); err == nil {
		t.Error("New() should reject an unknown variant")
	}
}

func TestCommands(t *testing.T) {
	w, runner := newTestWine(t, nil, "")
	ctx := context.Background()

	steps := []func() error{
		func() error { return w.Boot(ctx) },
		func() error { return w.Winetricks(ctx, "gdiplus", "corefonts") },
		func() error { return w.SetWindowsVersion(ctx, "win10") },
		func() error { return w.KillServer(ctx) },
		func() error { return w.RunExe(ctx, "/tmp/Set-up.exe", "--silent") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("command %d failed: %v", i, err)
		}
	}

	want := []string{
		"wineboot --init",
		"winetricks -q gdiplus corefonts",
		"winetricks -q win10",
		"wineserver -k",
		"wine /tmp/Set-up.exe --silent",
	}
	if got := runner.CommandLines(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}

	for _, c := range runner.Calls() {
		if !slices.Contains(c.Env, "WINEPREFIX=/home/u/.photoshopCCV19/prefix") {
			t.Errorf("%s ran without WINEPREFIX", c.Name)
		}
	}
}

func TestWindowsPath(t *testing.T) {
	w, runner := newTestWine(t, nil, "")
	runner.On("winepath -w", "Z:\\home\\u\\a.psd\n", 0)

	got, err := w.WindowsPath(context.Background(), "/home/u/a.psd")
	if err != nil {
		t.Fatalf("WindowsPath() failed: %v", err)
	}
	if got != `Z:\home\u\a.psd` {
		t.Errorf("WindowsPath() = %q", got)
	}
}

func TestWindowsPathEmpty(t *testing.T) {
	w, _ := newTestWine(t, nil, "")
	if _, err := w.WindowsPath(context.Background(), "/x"); err == nil {
		t.Error("WindowsPath() should fail on empty output")
	}
}

func TestFailureCarriesExitCode(t *testing.T) {
	w, runner := newTestWine(t, nil, "")
	runner.On("winetricks", "download failed", 1)

	err := w.Winetricks(context.Background(), "vcrun2015")
	var exitErr *command.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Winetricks() error = %v, want *command.ExitError", err)
	}
	if exitErr.Output != "download failed" {
		t.Errorf("Output = %q, want download failed", exitErr.Output)
	}
}

func TestVersion(t *testing.T) {
	w, runner := newTestWine(t, nil, "")
	runner.On("wine --version", "wine-8.0.2\n", 0)

	v, err := w.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if v != "wine-8.0.2" {
		t.Errorf("Version() = %q, want wine-8.0.2", v)
	}
}

func TestStartExe(t *testing.T) {
	w, runner := newTestWine(t, nil, "")
	runner.On("wine", "started", 0)

	var out bytes.Buffer
	proc, err := w.StartExe(context.Background(), &out, "C:/ps/Photoshop.exe", `Z:\a.psd`)
	if err != nil {
		t.Fatalf("StartExe() failed: %v", err)
	}
	if err := proc.Wait(); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if out.String() != "started" {
		t.Errorf("output = %q, want started", out.String())
	}
	if want := []string{`wine C:/ps/Photoshop.exe Z:\a.psd`}; !reflect.DeepEqual(runner.CommandLines(), want) {
		t.Errorf("commands = %v, want %v", runner.CommandLines(), want)
	}
}
