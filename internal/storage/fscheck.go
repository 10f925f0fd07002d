package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var remoteFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// Location is where a journal database would be written.
type Location struct {
	// Path is the absolute database path.
	Path string
	// Anchor is Path or its nearest existing ancestor; the filesystem is
	// read from here because the database may not exist yet.
	Anchor string
	FSType string
}

// Remote reports whether the location is a network mount.
func (l Location) Remote() bool {
	_, ok := remoteFilesystems[strings.ToLower(strings.TrimSpace(l.FSType))]
	return ok
}

// Err is non-nil for a remote location. SQLite locking is unreliable there.
func (l Location) Err() error {
	if !l.Remote() {
		return nil
	}
	return fmt.Errorf("journal %q is on network filesystem %q; point journal.path at local disk (SQLite needs local locking)", l.Path, l.FSType)
}

// InspectJournalPath resolves path and identifies the filesystem it lands on.
func InspectJournalPath(path string) (Location, error) {
	return inspectJournalPath(path, detectFilesystemType)
}

func inspectJournalPath(path string, detect func(string) (string, error)) (Location, error) {
	if path == "" {
		return Location{}, errors.New("journal path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Location{}, fmt.Errorf("resolve journal path %q: %w", path, err)
	}
	anchor, err := nearestExisting(abs)
	if err != nil {
		return Location{}, fmt.Errorf("resolve journal path %q: %w", path, err)
	}
	fsType, err := detect(anchor)
	if err != nil {
		return Location{}, fmt.Errorf("detect filesystem for %q: %w", anchor, err)
	}
	return Location{Path: abs, Anchor: anchor, FSType: fsType}, nil
}

func nearestExisting(abs string) (string, error) {
	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		candidate = parent
	}
}

// prepareJournalDir refuses remote locations and creates the parent
// directory of a local one.
func prepareJournalDir(path string, detect func(string) (string, error)) error {
	loc, err := inspectJournalPath(path, detect)
	if err != nil {
		return err
	}
	if err := loc.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(loc.Path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	return nil
}
