package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"swap-orchestrator/core/models"
	"swap-orchestrator/storage"
)

// Sentinel errors — callers use errors.Is() instead of string matching
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTerminalState   = errors.New("session is in a terminal state")
)

// Store is the persistence backend for session records. The registry does
// not care whether records live in process memory or in Postgres; both
// implementations must apply Update mutators atomically per session id.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	AppendEvent(ctx context.Context, event models.SessionEvent) error
	ListEvents(ctx context.Context, sessionID string) ([]models.SessionEvent, error)
}

// Registry owns the canonical session records and their artifact files
type Registry struct {
	store     Store
	artifacts storage.ArtifactStore
}

// New creates a session registry backed by the given store
func New(store Store, artifacts storage.ArtifactStore) *Registry {
	return &Registry{store: store, artifacts: artifacts}
}

// Create allocates a fresh session with a unique id and an empty artifact map
func (r *Registry) Create(ctx context.Context, prompts models.Prompts) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New().String(),
		Status:    models.SessionStatusCreated,
		Prompts:   prompts,
		Artifacts: make(map[models.ArtifactKind]models.Artifact),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Create(ctx, session); err != nil {
		return nil, err
	}
	r.store.AppendEvent(ctx, models.SessionEvent{
		SessionID: session.ID,
		At:        now,
		ToStatus:  models.SessionStatusCreated,
		Reason:    "session_created",
	})
	return session.Clone(), nil
}

// Get returns the session with the given id
func (r *Registry) Get(ctx context.Context, id string) (*models.Session, error) {
	return r.store.Get(ctx, id)
}

// Update applies a mutator to the session record atomically
func (r *Registry) Update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	return r.store.Update(ctx, id, func(s *models.Session) error {
		if err := mutate(s); err != nil {
			return err
		}
		s.UpdatedAt = time.Now()
		return nil
	})
}

// Transition advances the session to the next pipeline status and records
// the transition event. A session already in a terminal state is never
// moved again; a concurrent cancel wins over a late stage commit.
func (r *Registry) Transition(ctx context.Context, id string, to models.SessionStatus, reason string) (*models.Session, error) {
	var from models.SessionStatus
	updated, err := r.Update(ctx, id, func(s *models.Session) error {
		if s.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrTerminalState, s.Status)
		}
		from = s.Status
		s.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.store.AppendEvent(ctx, models.SessionEvent{
		SessionID:  id,
		At:         updated.UpdatedAt,
		FromStatus: &from,
		ToStatus:   to,
		Reason:     reason,
	})
	return updated, nil
}

// RecordArtifact attaches a saved artifact to the session record. Results
// landing after the session reached a terminal state are not recorded.
func (r *Registry) RecordArtifact(ctx context.Context, id string, artifact models.Artifact) (*models.Session, error) {
	return r.Update(ctx, id, func(s *models.Session) error {
		if s.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrTerminalState, s.Status)
		}
		s.Artifacts[artifact.Kind] = artifact
		return nil
	})
}

// Fail moves a non-terminal session to failed with the originating error
// recorded. Failing an already-terminal session is rejected.
func (r *Registry) Fail(ctx context.Context, id string, failure models.FailureInfo) (*models.Session, error) {
	var from models.SessionStatus
	updated, err := r.Update(ctx, id, func(s *models.Session) error {
		if s.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrTerminalState, s.Status)
		}
		from = s.Status
		s.Status = models.SessionStatusFailed
		s.Error = &failure
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.store.AppendEvent(ctx, models.SessionEvent{
		SessionID:  id,
		At:         updated.UpdatedAt,
		FromStatus: &from,
		ToStatus:   models.SessionStatusFailed,
		Reason:     string(failure.Kind),
	})
	return updated, nil
}

// Cancel fails any non-terminal session with a cancelled error. Cancelled
// sessions are never resurrected or retried.
func (r *Registry) Cancel(ctx context.Context, id string) (*models.Session, error) {
	return r.Fail(ctx, id, models.FailureInfo{
		Kind:    models.FailureKindCancelled,
		Message: "cancelled by caller",
	})
}

// Delete removes the session record and all artifacts stored under its id.
// Artifact removal is idempotent; only a missing record reports not found.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	return r.artifacts.DeleteSession(ctx, id)
}

// Events returns the transition trail for a session, oldest first
func (r *Registry) Events(ctx context.Context, id string) ([]models.SessionEvent, error) {
	if _, err := r.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return r.store.ListEvents(ctx, id)
}
