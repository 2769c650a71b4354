package env

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindDotEnvNearest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "project", "go.mod"), "module x\n")
	writeFile(t, filepath.Join(root, "project", ".env"), "A=1\n")
	writeFile(t, filepath.Join(root, "project", "sub", ".env"), "A=2\n")

	got, err := findDotEnv(filepath.Join(root, "project", "sub", "deeper"), "")
	if err != nil {
		t.Fatalf("findDotEnv() error = %v", err)
	}
	if want := filepath.Join(root, "project", "sub", ".env"); got != want {
		t.Fatalf("findDotEnv() = %q, want %q", got, want)
	}
}

func TestFindDotEnvStopsAtProjectMarker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"), "A=outside\n")
	if err := os.MkdirAll(filepath.Join(root, "checkout", ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	start := filepath.Join(root, "checkout", "cmd")
	if err := os.MkdirAll(start, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := findDotEnv(start, "")
	if err != nil {
		t.Fatalf("findDotEnv() error = %v", err)
	}
	if got != "" {
		t.Fatalf("findDotEnv() = %q, a .env above the checkout must be ignored", got)
	}
}

func TestFindDotEnvStopsAtHome(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"), "A=above-home\n")
	home := filepath.Join(root, "home")
	start := filepath.Join(home, "work")
	if err := os.MkdirAll(start, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := findDotEnv(start, home)
	if err != nil || got != "" {
		t.Fatalf("findDotEnv() = %q, %v", got, err)
	}
}

func TestResolveOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.env")
	writeFile(t, path, "A=1\n")
	t.Setenv(PathOverride, path)
	got, err := Resolve()
	if err != nil || got != path {
		t.Fatalf("Resolve() = %q, %v", got, err)
	}

	t.Setenv(PathOverride, filepath.Join(t.TempDir(), "missing.env"))
	if _, err := Resolve(); err == nil {
		t.Fatal("missing override file should fail")
	}
}

func TestLoadKeepsExistingVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "ADBPAIR_ENVTEST_NEW=from-file\nADBPAIR_ENVTEST_SET=from-file\n")
	t.Setenv("ADBPAIR_ENVTEST_SET", "from-shell")
	t.Cleanup(func() { _ = os.Unsetenv("ADBPAIR_ENVTEST_NEW") })

	if err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := os.Getenv("ADBPAIR_ENVTEST_NEW"); got != "from-file" {
		t.Fatalf("new variable = %q", got)
	}
	if got := os.Getenv("ADBPAIR_ENVTEST_SET"); got != "from-shell" {
		t.Fatalf("existing variable overridden: %q", got)
	}
	if LoadedPath() == "" {
		t.Fatal("LoadedPath() should report the loaded file")
	}
	if err := Load(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatal("missing file should fail")
	}
}
