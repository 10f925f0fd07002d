package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name, kept next to config.yaml.
const ChecksumFile = ".checksums"

// ChecksumManifest maps tracked files to their BLAKE3 hashes. Keys are paths
// relative to the config directory when possible.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockedFile is one entry written by Lock.
type LockedFile struct {
	Key  string
	Path string
	Hash string
}

// LockReport describes a Lock run.
type LockReport struct {
	ChecksumPath string
	Written      bool
	Files        []LockedFile
}

// ComputeBlake3Hash hashes a file's bytes as they are on disk, before env
// interpolation.
func ComputeBlake3Hash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// TrackedFiles lists the files whose integrity Lock records: the config
// file and, when configured, the intents file.
func TrackedFiles(cfg *Config) []string {
	files := []string{cfg.Path}
	if p := cfg.IntentsPath(); p != "" {
		files = append(files, p)
	}
	return files
}

func checksumKey(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// Lock hashes every tracked file and writes the manifest. With dryRun it
// only reports.
func Lock(cfg *Config, dryRun bool) (*LockReport, error) {
	if cfg.Path == "" {
		return nil, errors.New("config has no file path to lock")
	}

	dir := cfg.Dir()
	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string),
	}
	report := &LockReport{ChecksumPath: filepath.Join(dir, ChecksumFile)}

	for _, path := range TrackedFiles(cfg) {
		hash, err := ComputeBlake3Hash(path)
		if err != nil {
			return nil, fmt.Errorf("lock: %w", err)
		}
		key := checksumKey(dir, path)
		manifest.Hashes[key] = hash
		report.Files = append(report.Files, LockedFile{Key: key, Path: path, Hash: hash})
	}
	sort.Slice(report.Files, func(i, j int) bool { return report.Files[i].Key < report.Files[j].Key })

	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the manifest from dir. A missing manifest returns
// os.ErrNotExist.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		return nil, err
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// verifyChecksums is a no-op when no manifest exists. Once one exists,
// every tracked file must be listed and match.
func verifyChecksums(cfg *Config) error {
	dir := cfg.Dir()
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, path := range TrackedFiles(cfg) {
		key := checksumKey(dir, path)
		expected, ok := manifest.Hashes[key]
		if !ok {
			return fmt.Errorf("%s has no hash in %s\nRun: go2voice config lock --config %s", key, ChecksumFile, cfg.Path)
		}
		actual, err := ComputeBlake3Hash(path)
		if err != nil {
			return fmt.Errorf("config verification failed: %w", err)
		}
		if actual != expected {
			return fmt.Errorf("config verification failed for %s: hash mismatch (expected %s, got %s)\n"+
				"If you edited this file intentionally, run: go2voice config lock --config %s", key, expected, actual, cfg.Path)
		}
	}
	return nil
}
