package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"swap-orchestrator/config"
	"swap-orchestrator/core/models"
	"swap-orchestrator/core/pipeline"
	"swap-orchestrator/core/registry"
	"swap-orchestrator/storage"
)

// maxUploadBytes bounds one multipart upload (two images plus prompts)
const maxUploadBytes = 64 << 20

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	registry       *registry.Registry
	artifacts      storage.ArtifactStore
	orchestrator   *pipeline.Orchestrator
	defaultPrompts models.Prompts
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(
	reg *registry.Registry,
	artifacts storage.ArtifactStore,
	orchestrator *pipeline.Orchestrator,
	defaultPrompts models.Prompts,
) *SessionHandler {
	return &SessionHandler{
		registry:       reg,
		artifacts:      artifacts,
		orchestrator:   orchestrator,
		defaultPrompts: defaultPrompts,
	}
}

// SessionView is the serializable view of a session exposed to clients
type SessionView struct {
	ID        string                `json:"session_id"`
	Status    models.SessionStatus  `json:"status"`
	Artifacts []models.ArtifactKind `json:"artifacts"`
	Error     *models.FailureInfo   `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func viewOf(session *models.Session) SessionView {
	return SessionView{
		ID:        session.ID,
		Status:    session.Status,
		Artifacts: session.ArtifactKinds(),
		Error:     session.Error,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
}

// CreateSession handles POST /v1/sessions. It accepts a multipart form
// with background_image and person_image files plus optional prompt
// fields, starts the pipeline in the background, and returns the session
// id immediately.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	background, backgroundMime, err := readUpload(r, "background_image")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	person, personMime, err := readUpload(r, "person_image")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	prompts := config.MergePrompts(h.defaultPrompts, models.Prompts{
		AddPerson: r.FormValue("add_person_prompt"),
		Composite: r.FormValue("composite_prompt"),
		Swap:      r.FormValue("swap_prompt"),
	})

	session, err := h.orchestrator.Start(r.Context(), pipeline.RunInput{
		Background:     background,
		BackgroundMime: backgroundMime,
		Person:         person,
		PersonMime:     personMime,
		Prompts:        prompts,
	})
	if err != nil {
		http.Error(w, "Failed to start pipeline: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, viewOf(session))
}

// GetSession handles GET /v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

// DeleteSession handles DELETE /v1/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session " + id + " deleted"})
}

// CancelSession handles POST /v1/sessions/{id}/cancel
func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.registry.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrSessionNotFound):
			http.Error(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, registry.ErrTerminalState):
			http.Error(w, "Session already finished", http.StatusConflict)
		default:
			http.Error(w, "Failed to cancel session: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

// GetSessionEvents handles GET /v1/sessions/{id}/events
func (h *SessionHandler) GetSessionEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.registry.Events(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// DownloadArtifact handles GET /v1/sessions/{id}/artifacts/{kind}
func (h *SessionHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	kind := models.ArtifactKind(vars["kind"])

	if !models.ValidArtifactKind(kind) {
		http.Error(w, "Invalid artifact kind: "+string(kind), http.StatusBadRequest)
		return
	}
	if _, err := h.registry.Get(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data, mimeType, err := h.artifacts.Load(r.Context(), id, kind)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			http.Error(w, "Artifact not found: "+string(kind), http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load artifact: "+err.Error(), http.StatusInternalServerError)
		return
	}

	ext := ".jpg"
	if mimeType == "image/png" {
		ext = ".png"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+string(kind)+"_"+id+ext+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// readUpload reads one multipart file field into memory
func readUpload(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", errors.New("missing file field: " + field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", errors.New("failed to read " + field)
	}
	if len(data) == 0 {
		return nil, "", errors.New(field + " is empty")
	}
	return data, header.Header.Get("Content-Type"), nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
