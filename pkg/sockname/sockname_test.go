package sockname

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePrefersExplicitOverride(t *testing.T) {
	t.Setenv("PING_SOCKET_PATH", "/explicit/override.sock")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := Resolve("ping"); got != "/explicit/override.sock" {
		t.Errorf("Resolve = %q, want explicit override", got)
	}
}

func TestResolveFallsBackToXDGRuntimeDir(t *testing.T) {
	t.Setenv("PING_SOCKET_PATH", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got, want := Resolve("ping"), "/run/user/1000/ping.socket"; got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveFallsBackToAbstractName(t *testing.T) {
	t.Setenv("PING_SOCKET_PATH", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	if got, want := Resolve("ping"), "@ping"; got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestFilterUIDOnFilesystemPathWalksToExistingParent(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "nested", "does-not-exist.sock")
	uid, ok := FilterUID(sockPath)
	if !ok {
		t.Fatalf("expected FilterUID to resolve by walking up to %s", dir)
	}
	if uid != uint32(os.Getuid()) {
		t.Errorf("expected owner uid %d, got %d", os.Getuid(), uid)
	}
}

func TestFilterUIDOnAbstractNameUsesXDGRuntimeDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	uid, ok := FilterUID("@ping")
	if !ok {
		t.Fatalf("expected FilterUID to resolve an abstract name against XDG_RUNTIME_DIR")
	}
	if uid != uint32(os.Getuid()) {
		t.Errorf("expected owner uid %d, got %d", os.Getuid(), uid)
	}
}

func TestFilterUIDOnAbstractNameWithoutXDGRuntimeDirFails(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	if _, ok := FilterUID("@ping"); ok {
		t.Errorf("expected FilterUID to fail with no XDG_RUNTIME_DIR to anchor an abstract name")
	}
}
