package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"swap-orchestrator/core/models"
)

// DiskStore stores artifacts on the local filesystem under
// <root>/<session_id>/<kind>.<ext>. Paths are derived from the key, so
// lookups never scan a directory.
type DiskStore struct {
	root string
}

// NewDiskStore creates a disk-backed artifact store rooted at root
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (d *DiskStore) sessionDir(sessionID string) string {
	return filepath.Join(d.root, sessionID)
}

func (d *DiskStore) artifactPath(sessionID string, kind models.ArtifactKind, mimeType string) string {
	return filepath.Join(d.sessionDir(sessionID), string(kind)+extensionFor(mimeType))
}

// Save writes the artifact bytes atomically: a temp file in the session
// directory is renamed into place, so a crash mid-write never leaves a
// partial file at the canonical path.
func (d *DiskStore) Save(_ context.Context, sessionID string, kind models.ArtifactKind, data []byte, mimeType string) (models.Artifact, error) {
	dir := d.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.Artifact{}, fmt.Errorf("failed to create session dir: %w", err)
	}

	path := d.artifactPath(sessionID, kind, mimeType)

	tmp, err := os.CreateTemp(dir, string(kind)+".*.tmp")
	if err != nil {
		return models.Artifact{}, err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return models.Artifact{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return models.Artifact{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return models.Artifact{}, err
	}

	// Drop a stale copy saved earlier under the other extension
	for _, ext := range []string{".jpg", ".png"} {
		alt := filepath.Join(dir, string(kind)+ext)
		if alt != path {
			os.Remove(alt)
		}
	}

	return models.Artifact{
		Kind:      kind,
		SessionID: sessionID,
		Path:      path,
		MimeType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}, nil
}

// Load reads the artifact bytes for (sessionID, kind)
func (d *DiskStore) Load(_ context.Context, sessionID string, kind models.ArtifactKind) ([]byte, string, error) {
	for _, ext := range []string{".jpg", ".png"} {
		path := filepath.Join(d.sessionDir(sessionID), string(kind)+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, mimeTypeFor(ext), nil
		}
		if !os.IsNotExist(err) {
			return nil, "", err
		}
	}
	return nil, "", ErrArtifactNotFound
}

// DeleteSession removes every artifact under the session id. Deleting a
// session that has no artifacts is a no-op.
func (d *DiskStore) DeleteSession(_ context.Context, sessionID string) error {
	return os.RemoveAll(d.sessionDir(sessionID))
}
