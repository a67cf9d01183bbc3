package storage

import (
	"context"
	"errors"

	"swap-orchestrator/core/models"
)

// Sentinel errors — callers use errors.Is() instead of string matching
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore persists image artifacts keyed by (session id, kind).
// Saving the same kind twice within one session overwrites (last-write-wins);
// each kind is produced at most once per pipeline run.
type ArtifactStore interface {
	Save(ctx context.Context, sessionID string, kind models.ArtifactKind, data []byte, mimeType string) (models.Artifact, error)
	Load(ctx context.Context, sessionID string, kind models.ArtifactKind) ([]byte, string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// extensionFor maps a mime type to the on-disk/object-key extension
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}

// mimeTypeFor is the inverse mapping, used when listing existing objects
func mimeTypeFor(ext string) string {
	if ext == ".png" {
		return "image/png"
	}
	return "image/jpeg"
}
