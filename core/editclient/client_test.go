package editclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote simulates the remote edit capability: submit, poll, download
type fakeRemote struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	submits      int
	submitStatus func(submitCount int) int // HTTP status per submit, 200 = accept
	pollStatus   string                    // job status reported on poll
	resultImage  []byte
}

func newFakeRemote(t *testing.T) *fakeRemote {
	f := &fakeRemote{
		t:            t,
		submitStatus: func(int) int { return http.StatusOK },
		pollStatus:   "Ready",
		resultImage:  []byte("edited-image-bytes"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/edit", f.handleSubmit)
	mux.HandleFunc("/poll", f.handlePoll)
	mux.HandleFunc("/result", f.handleResult)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRemote) handleSubmit(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.submits++
	status := f.submitStatus(f.submits)
	f.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InputImage == "" || req.Prompt == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(submitResponse{
		ID:         "job-1",
		PollingURL: f.srv.URL + "/poll",
	})
}

func (f *fakeRemote) handlePoll(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status := f.pollStatus
	f.mu.Unlock()

	resp := pollResponse{ID: r.URL.Query().Get("id"), Status: status}
	if status == "Ready" {
		resp.Result.Sample = f.srv.URL + "/result"
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeRemote) handleResult(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(f.resultImage)
}

func (f *fakeRemote) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *fakeRemote) client(attemptTimeout time.Duration) *Client {
	return NewClient(Options{
		BaseURL:        f.srv.URL + "/edit",
		APIKey:         "test-key",
		PollInterval:   time.Millisecond,
		AttemptTimeout: attemptTimeout,
		Policy:         fastPolicy(3),
	})
}

func TestSubmitEditSuccess(t *testing.T) {
	remote := newFakeRemote(t)
	client := remote.client(time.Second)

	result, err := client.SubmitEdit(context.Background(), [][]byte{[]byte("input")}, "add a person")
	require.NoError(t, err)
	assert.Equal(t, []byte("edited-image-bytes"), result.Image)
	assert.Equal(t, "image/jpeg", result.MimeType)
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, 1, result.Attempts)
}

func TestSubmitEditRetriesTransientThenSucceeds(t *testing.T) {
	remote := newFakeRemote(t)
	remote.submitStatus = func(submitCount int) int {
		if submitCount <= 2 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}
	client := remote.client(time.Second)

	result, err := client.SubmitEdit(context.Background(), [][]byte{[]byte("input")}, "add a person")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, remote.submitCount())
}

func TestSubmitEditPolicyRejectionIsNotRetried(t *testing.T) {
	remote := newFakeRemote(t)
	remote.pollStatus = "Content Moderated"
	client := remote.client(time.Second)

	_, err := client.SubmitEdit(context.Background(), [][]byte{[]byte("input")}, "add a person")
	require.Error(t, err)
	assert.Equal(t, KindRemoteRejected, KindOf(err))
	assert.Equal(t, 1, remote.submitCount(), "non-retryable failure must make exactly one attempt")
}

func TestSubmitEditInvalidRequestIsNotRetried(t *testing.T) {
	remote := newFakeRemote(t)
	remote.submitStatus = func(int) int { return http.StatusBadRequest }
	client := remote.client(time.Second)

	_, err := client.SubmitEdit(context.Background(), [][]byte{[]byte("input")}, "add a person")
	require.Error(t, err)
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.Equal(t, 1, remote.submitCount())
}

func TestSubmitEditTimeoutSurfacesAsRemoteUnavailable(t *testing.T) {
	remote := newFakeRemote(t)
	remote.pollStatus = "Pending" // never completes
	client := remote.client(20 * time.Millisecond)

	_, err := client.SubmitEdit(context.Background(), [][]byte{[]byte("input")}, "add a person")
	require.Error(t, err)
	assert.Equal(t, KindRemoteUnavailable, KindOf(err))
	assert.Equal(t, 3, remote.submitCount(), "timeouts are retried up to the attempt budget")
}

func TestSubmitEditValidatesInput(t *testing.T) {
	remote := newFakeRemote(t)
	client := remote.client(time.Second)
	ctx := context.Background()

	_, err := client.SubmitEdit(ctx, nil, "prompt")
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = client.SubmitEdit(ctx, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, "prompt")
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = client.SubmitEdit(ctx, [][]byte{[]byte("a")}, "")
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	assert.Equal(t, 0, remote.submitCount())
}

func TestSubmitEditSendsBothImages(t *testing.T) {
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/edit":
			json.NewDecoder(r.Body).Decode(&got)
			json.NewEncoder(w).Encode(submitResponse{ID: "job-2", PollingURL: "http://" + r.Host + "/poll"})
		case "/poll":
			resp := pollResponse{ID: "job-2", Status: "Ready"}
			resp.Result.Sample = "http://" + r.Host + "/result"
			json.NewEncoder(w).Encode(resp)
		case "/result":
			w.Write([]byte("img"))
		}
	}))
	defer srv.Close()

	client := NewClient(Options{
		BaseURL:      srv.URL + "/edit",
		APIKey:       "test-key",
		PollInterval: time.Millisecond,
		Policy:       fastPolicy(1),
	})

	_, err := client.SubmitEdit(context.Background(), [][]byte{[]byte("one"), []byte("two")}, "combine")
	require.NoError(t, err)
	assert.NotEmpty(t, got.InputImage)
	assert.NotEmpty(t, got.InputImage2)
	assert.Equal(t, "combine", got.Prompt)
}
