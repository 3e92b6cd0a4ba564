package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFilesOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("UPSTREAM_BASE_URL=http://from-dotenv:2024\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("UPSTREAM_BASE_URL", "http://from-env:2024")

	loadEnvFiles()

	if got := os.Getenv("UPSTREAM_BASE_URL"); got != "http://from-dotenv:2024" {
		t.Fatalf("UPSTREAM_BASE_URL = %q, want the .env value", got)
	}
}
