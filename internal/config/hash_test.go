package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockDryRun(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, dir, "dispatch:\n  cooldown: 2s\n"))
	if err != nil {
		t.Fatal(err)
	}

	report, err := Lock(cfg, true)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if report.Written {
		t.Fatal("report.Written = true in dry-run")
	}
	if len(report.Files) != 1 || report.Files[0].Key != "config.yaml" || report.Files[0].Hash == "" {
		t.Fatalf("report.Files = %+v", report.Files)
	}
	if _, err := os.Stat(filepath.Join(dir, ChecksumFile)); !os.IsNotExist(err) {
		t.Fatal(".checksums written in dry-run")
	}
}

func TestLockThenTamper(t *testing.T) {
	dir := t.TempDir()
	intents := filepath.Join(dir, "intents.yaml")
	if err := os.WriteFile(intents, []byte("intents: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, dir, "dispatch:\n  intents_file: intents.yaml\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	report, err := Lock(cfg, false)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !report.Written || len(report.Files) != 2 {
		t.Fatalf("report = %+v", report)
	}

	if _, err := Load(path); err != nil {
		t.Fatalf("Load() after lock error = %v", err)
	}

	if err := os.WriteFile(intents, []byte("intents: [{code: 7}]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = Load(path)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("Load() after tamper error = %v, want hash mismatch", err)
	}

	// Re-locking starts from an unverified load.
	cfg, err = LoadUnverified(path)
	if err != nil {
		t.Fatalf("LoadUnverified() error = %v", err)
	}
	if _, err := Lock(cfg, false); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() after re-lock error = %v", err)
	}
}

func TestVerifyRequiresEveryTrackedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Lock(cfg, false); err != nil {
		t.Fatal(err)
	}

	// Neither the edited config nor the new intents file match the manifest.
	writeConfig(t, dir, "dispatch:\n  intents_file: intents.yaml\n")
	if err := os.WriteFile(filepath.Join(dir, "intents.yaml"), []byte("intents: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 9\nhashes: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChecksums(dir); err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("LoadChecksums() error = %v", err)
	}
}
