package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"swap-orchestrator/core/compositor"
	"swap-orchestrator/core/editclient"
	"swap-orchestrator/core/models"
	"swap-orchestrator/core/registry"
	"swap-orchestrator/storage"
)

// Editor is the remote image-editing capability the orchestrator depends on
type Editor interface {
	SubmitEdit(ctx context.Context, images [][]byte, prompt string) (*editclient.EditResult, error)
}

// Orchestrator drives one session through the ordered pipeline stages,
// committing every status transition and artifact to the registry before
// the next stage starts. Stage failures are recorded into the session, not
// raised past the orchestrator boundary.
type Orchestrator struct {
	registry  *registry.Registry
	artifacts storage.ArtifactStore
	editor    Editor
}

// New creates a pipeline orchestrator
func New(reg *registry.Registry, artifacts storage.ArtifactStore, editor Editor) *Orchestrator {
	return &Orchestrator{
		registry:  reg,
		artifacts: artifacts,
		editor:    editor,
	}
}

// RunInput carries the two input images and three prompts for one run
type RunInput struct {
	Background     []byte
	BackgroundMime string
	Person         []byte
	PersonMime     string
	Prompts        models.Prompts
}

// Run executes the full pipeline for a fresh session and returns the
// session in its final state. Every call creates a new session; the remote
// editor is not deterministic, so two runs with identical inputs produce
// independent artifacts. The returned error is non-nil only when the
// session itself could not be created or read back — stage failures are
// reported via the session's status and error fields.
func (o *Orchestrator) Run(ctx context.Context, input RunInput) (*models.Session, error) {
	session, err := o.prepare(ctx, input)
	if err != nil || session.Status.Terminal() {
		return session, err
	}
	return o.execute(ctx, session.ID, input.Prompts)
}

// Start creates the session and persists its inputs, then executes the
// stages in the background. Callers poll the registry for progress.
func (o *Orchestrator) Start(ctx context.Context, input RunInput) (*models.Session, error) {
	session, err := o.prepare(ctx, input)
	if err != nil || session.Status.Terminal() {
		return session, err
	}
	go func() {
		if _, err := o.execute(context.Background(), session.ID, input.Prompts); err != nil {
			log.Printf("Session %s: pipeline aborted: %v", session.ID, err)
		}
	}()
	return session, nil
}

// prepare creates the session record and persists the raw inputs up front
// so they are retrievable even when an early stage fails
func (o *Orchestrator) prepare(ctx context.Context, input RunInput) (*models.Session, error) {
	session, err := o.registry.Create(ctx, input.Prompts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("Session %s created, starting pipeline", session.ID)

	if err := o.saveInput(ctx, session.ID, models.ArtifactKindBackground, input.Background, input.BackgroundMime); err != nil {
		return o.failStage(ctx, session.ID, "persist_inputs", err)
	}
	if err := o.saveInput(ctx, session.ID, models.ArtifactKindPerson, input.Person, input.PersonMime); err != nil {
		return o.failStage(ctx, session.ID, "persist_inputs", err)
	}
	return o.registry.Get(ctx, session.ID)
}

// execute runs the ordered stage list until completion or the first failure
func (o *Orchestrator) execute(ctx context.Context, sessionID string, prompts models.Prompts) (*models.Session, error) {
	for _, stage := range Stages {
		if _, err := o.registry.Transition(ctx, sessionID, stage.Status, "stage_started:"+stage.Name); err != nil {
			if errors.Is(err, registry.ErrTerminalState) {
				// Cancelled (or failed) from outside between stages
				return o.registry.Get(ctx, sessionID)
			}
			return o.failStage(ctx, sessionID, stage.Name, err)
		}

		log.Printf("Session %s: running stage %s", sessionID, stage.Name)

		inputs := make(map[models.ArtifactKind][]byte, len(stage.Inputs))
		var loadErr error
		for _, kind := range stage.Inputs {
			data, _, err := o.artifacts.Load(ctx, sessionID, kind)
			if err != nil {
				loadErr = err
				break
			}
			inputs[kind] = data
		}
		if loadErr != nil {
			return o.failStage(ctx, sessionID, stage.Name, loadErr)
		}

		output, mimeType, err := stage.Run(ctx, o, prompts, inputs)
		if err != nil {
			return o.failStage(ctx, sessionID, stage.Name, err)
		}

		artifact, err := o.artifacts.Save(ctx, sessionID, stage.Output, output, mimeType)
		if err != nil {
			return o.failStage(ctx, sessionID, stage.Name, err)
		}
		if _, err := o.registry.RecordArtifact(ctx, sessionID, artifact); err != nil {
			if errors.Is(err, registry.ErrSessionNotFound) {
				return nil, err
			}
			return o.failStage(ctx, sessionID, stage.Name, err)
		}

		log.Printf("Session %s: stage %s produced %s (%d bytes)", sessionID, stage.Name, stage.Output, artifact.Size)
	}

	final, err := o.registry.Transition(ctx, sessionID, models.SessionStatusCompleted, "pipeline_completed")
	if err != nil {
		if errors.Is(err, registry.ErrTerminalState) {
			return o.registry.Get(ctx, sessionID)
		}
		return nil, err
	}

	log.Printf("Session %s completed", final.ID)
	return final, nil
}

// saveInput persists a raw input image and records it on the session
func (o *Orchestrator) saveInput(ctx context.Context, sessionID string, kind models.ArtifactKind, data []byte, mimeType string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s input is empty", compositor.ErrInvalidImage, kind)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	artifact, err := o.artifacts.Save(ctx, sessionID, kind, data, mimeType)
	if err != nil {
		return err
	}
	_, err = o.registry.RecordArtifact(ctx, sessionID, artifact)
	return err
}

// failStage records a stage failure into the session and returns the
// failed session. A session cancelled concurrently keeps its cancelled
// error; the late failure does not overwrite it.
func (o *Orchestrator) failStage(ctx context.Context, sessionID, stageName string, cause error) (*models.Session, error) {
	log.Printf("Session %s: stage %s failed: %v", sessionID, stageName, cause)

	failed, err := o.registry.Fail(ctx, sessionID, models.FailureInfo{
		Kind:    classifyFailure(cause),
		Stage:   stageName,
		Message: cause.Error(),
	})
	if err != nil {
		if errors.Is(err, registry.ErrTerminalState) {
			return o.registry.Get(ctx, sessionID)
		}
		return nil, err
	}
	return failed, nil
}

// classifyFailure maps a stage error onto the session failure taxonomy
func classifyFailure(err error) models.FailureKind {
	switch {
	case errors.Is(err, compositor.ErrInvalidImage):
		return models.FailureKindInvalidImage
	case errors.Is(err, storage.ErrArtifactNotFound),
		errors.Is(err, registry.ErrSessionNotFound):
		return models.FailureKindNotFound
	}
	var editErr *editclient.Error
	if errors.As(err, &editErr) {
		return editErr.Kind.FailureKind()
	}
	return models.FailureKindInternal
}
