package models

import "time"

// Session represents one end-to-end person-swap request and its accumulated state
type Session struct {
	ID        string
	Status    SessionStatus
	Prompts   Prompts
	Artifacts map[ArtifactKind]Artifact
	Error     *FailureInfo
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionStatus represents the current stage of a session's pipeline run
type SessionStatus string

const (
	SessionStatusCreated      SessionStatus = "created"
	SessionStatusAddingPerson SessionStatus = "adding_person"
	SessionStatusCompositing  SessionStatus = "compositing"
	SessionStatusSwapping     SessionStatus = "swapping"
	SessionStatusCompleted    SessionStatus = "completed"
	SessionStatusFailed       SessionStatus = "failed"
)

// Terminal reports whether no further stage may run for this status
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// Prompts holds the three natural-language instructions for a pipeline run.
// CompositePrompt is recorded with the session but the composite stage is
// local-only and never sends it to the remote editor.
type Prompts struct {
	AddPerson string
	Composite string
	Swap      string
}

// ArtifactKind identifies one image produced or consumed by the pipeline
type ArtifactKind string

const (
	ArtifactKindBackground  ArtifactKind = "background"
	ArtifactKindPerson      ArtifactKind = "person"
	ArtifactKindAddedPerson ArtifactKind = "added_person"
	ArtifactKindComposite   ArtifactKind = "composite"
	ArtifactKindFinalSwap   ArtifactKind = "final_swap"
)

// ValidArtifactKind reports whether k names a known artifact kind
func ValidArtifactKind(k ArtifactKind) bool {
	switch k {
	case ArtifactKindBackground, ArtifactKindPerson, ArtifactKindAddedPerson,
		ArtifactKindComposite, ArtifactKindFinalSwap:
		return true
	}
	return false
}

// Artifact represents a persisted image file owned by a session
type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	SessionID string       `json:"session_id"`
	Path      string       `json:"path"`
	MimeType  string       `json:"mime_type"`
	Size      int64        `json:"size"`
	CreatedAt time.Time    `json:"created_at"`
}

// FailureKind classifies a terminal session failure
type FailureKind string

const (
	FailureKindNotFound          FailureKind = "not_found"
	FailureKindInvalidImage      FailureKind = "invalid_image"
	FailureKindInvalidRequest    FailureKind = "invalid_request"
	FailureKindRemoteRejected    FailureKind = "remote_rejected"
	FailureKindRemoteUnavailable FailureKind = "remote_unavailable"
	FailureKindTimeout           FailureKind = "timeout"
	FailureKindCancelled         FailureKind = "cancelled"
	FailureKindInternal          FailureKind = "internal"
)

// FailureInfo describes why a session ended in the failed status
type FailureInfo struct {
	Kind    FailureKind `json:"kind"`
	Stage   string      `json:"stage,omitempty"`
	Message string      `json:"message"`
}

// ArtifactKinds returns the kinds present in the session's artifact map
func (s *Session) ArtifactKinds() []ArtifactKind {
	kinds := make([]ArtifactKind, 0, len(s.Artifacts))
	for _, k := range []ArtifactKind{ArtifactKindBackground, ArtifactKindPerson,
		ArtifactKindAddedPerson, ArtifactKindComposite, ArtifactKindFinalSwap} {
		if _, ok := s.Artifacts[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Clone returns a deep copy so registry callers never share artifact maps
func (s *Session) Clone() *Session {
	cp := *s
	cp.Artifacts = make(map[ArtifactKind]Artifact, len(s.Artifacts))
	for k, v := range s.Artifacts {
		cp.Artifacts[k] = v
	}
	if s.Error != nil {
		errCopy := *s.Error
		cp.Error = &errCopy
	}
	return &cp
}
