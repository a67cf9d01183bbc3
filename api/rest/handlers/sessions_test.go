package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-orchestrator/core/editclient"
	"swap-orchestrator/core/models"
	"swap-orchestrator/core/pipeline"
	"swap-orchestrator/core/registry"
	"swap-orchestrator/storage"
)

type stubEditor struct{}

func (stubEditor) SubmitEdit(ctx context.Context, images [][]byte, prompt string) (*editclient.EditResult, error) {
	return &editclient.EditResult{Image: jpegFixture(64, 48), MimeType: "image/jpeg", Attempts: 1}, nil
}

func jpegFixture(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func newTestRouter(t *testing.T) (*mux.Router, *registry.Registry) {
	t.Helper()
	artifacts, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	reg := registry.New(registry.NewMemoryStore(), artifacts)
	orchestrator := pipeline.New(reg, artifacts, stubEditor{})
	handler := NewSessionHandler(reg, artifacts, orchestrator, models.Prompts{
		AddPerson: "default add", Composite: "default compose", Swap: "default swap",
	})

	r := mux.NewRouter()
	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/sessions", handler.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", handler.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", handler.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/cancel", handler.CancelSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/events", handler.GetSessionEvents).Methods("GET")
	api.HandleFunc("/sessions/{id}/artifacts/{kind}", handler.DownloadArtifact).Methods("GET")
	return r, reg
}

func multipartRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, field := range []string{"background_image", "person_image"} {
		part, err := writer.CreateFormFile(field, field+".jpg")
		require.NoError(t, err)
		_, err = part.Write(jpegFixture(48, 48))
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func waitForTerminal(t *testing.T, reg *registry.Registry, id string) *models.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		session, err := reg.Get(context.Background(), id)
		require.NoError(t, err)
		if session.Status.Terminal() {
			return session
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session did not reach a terminal state in time")
	return nil
}

func TestCreateSessionRunsPipeline(t *testing.T) {
	router, reg := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var view SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotEmpty(t, view.ID)

	session := waitForTerminal(t, reg, view.ID)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Len(t, session.Artifacts, 5)
}

func TestCreateSessionMissingFile(t *testing.T) {
	router, _ := newTestRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("background_image", "bg.jpg")
	require.NoError(t, err)
	part.Write(jpegFixture(10, 10))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadArtifact(t *testing.T) {
	router, reg := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var view SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	waitForTerminal(t, reg, view.ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+view.ID+"/artifacts/final_swap", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	// Unknown kind is a client error, missing session a 404
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+view.ID+"/artifacts/bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/nope/artifacts/final_swap", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSessionRemovesArtifacts(t *testing.T) {
	router, reg := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var view SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	waitForTerminal(t, reg, view.ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+view.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+view.ID+"/artifacts/final_swap", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+view.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelFinishedSessionConflicts(t *testing.T) {
	router, reg := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var view SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	waitForTerminal(t, reg, view.ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions/"+view.ID+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionEvents(t *testing.T) {
	router, reg := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, map[string]string{"swap_prompt": "custom swap"}))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var view SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	waitForTerminal(t, reg, view.ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+view.ID+"/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Events []models.SessionEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Events, 5)
	assert.Equal(t, models.SessionStatusCompleted, payload.Events[len(payload.Events)-1].ToStatus)
}
