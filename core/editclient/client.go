package editclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// EditResult is the outcome of one successful edit submission
type EditResult struct {
	Image    []byte
	MimeType string
	JobID    string
	Attempts int
}

// Client talks to the remote flux-kontext style image editing capability.
// One edit is submit → poll until terminal → download; the whole exchange
// is one attempt under the retry policy.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	pollInterval   time.Duration
	attemptTimeout time.Duration
	policy         Policy
}

// Options configures a Client
type Options struct {
	BaseURL        string
	APIKey         string
	PollInterval   time.Duration
	AttemptTimeout time.Duration
	Policy         Policy
	HTTPClient     *http.Client
}

// NewClient creates a client for the remote edit capability
func NewClient(opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Minute
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = DefaultPolicy()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		httpClient:     opts.HTTPClient,
		baseURL:        opts.BaseURL,
		apiKey:         opts.APIKey,
		pollInterval:   opts.PollInterval,
		attemptTimeout: opts.AttemptTimeout,
		policy:         opts.Policy,
	}
}

type submitRequest struct {
	Prompt      string `json:"prompt"`
	InputImage  string `json:"input_image"`
	InputImage2 string `json:"input_image_2,omitempty"`
}

type submitResponse struct {
	ID         string `json:"id"`
	PollingURL string `json:"polling_url"`
}

type pollResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result struct {
		Sample string `json:"sample"`
	} `json:"result"`
}

// SubmitEdit sends one or two images plus an instruction to the remote
// capability and returns the edited image bytes. Transient failures are
// retried per the client's policy; input and policy rejections propagate
// immediately. Exhausted timeouts surface as remote_unavailable.
func (c *Client) SubmitEdit(ctx context.Context, images [][]byte, prompt string) (*EditResult, error) {
	if len(images) == 0 || len(images) > 2 {
		return nil, invalidRequest(fmt.Sprintf("expected 1 or 2 images, got %d", len(images)))
	}
	if prompt == "" {
		return nil, invalidRequest("prompt must not be empty")
	}

	var result *EditResult
	attempts, err := c.policy.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()

		r, err := c.attempt(attemptCtx, images, prompt)
		if err != nil {
			if attemptCtx.Err() != nil && ctx.Err() == nil {
				return timeoutErr("edit attempt exceeded timeout", err)
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var editErr *Error
		if errors.As(err, &editErr) && editErr.Kind == KindTimeout {
			// Retry budget spent on timeouts
			return nil, remoteUnavailable("edit did not complete within the attempt budget", err)
		}
		return nil, err
	}

	result.Attempts = attempts
	return result, nil
}

// attempt performs one full submit/poll/download exchange
func (c *Client) attempt(ctx context.Context, images [][]byte, prompt string) (*EditResult, error) {
	jobID, pollingURL, err := c.submit(ctx, images, prompt)
	if err != nil {
		return nil, err
	}

	log.Printf("Edit job %s submitted, polling for result", jobID)

	sampleURL, err := c.poll(ctx, pollingURL, jobID)
	if err != nil {
		return nil, err
	}

	image, mimeType, err := c.download(ctx, sampleURL)
	if err != nil {
		return nil, err
	}

	return &EditResult{Image: image, MimeType: mimeType, JobID: jobID}, nil
}

func (c *Client) submit(ctx context.Context, images [][]byte, prompt string) (jobID, pollingURL string, err error) {
	payload := submitRequest{
		Prompt:     prompt,
		InputImage: base64.StdEncoding.EncodeToString(images[0]),
	}
	if len(images) == 2 {
		payload.InputImage2 = base64.StdEncoding.EncodeToString(images[1])
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", remoteUnavailable("submit request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("submit", resp); err != nil {
		return "", "", err
	}

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", "", remoteUnavailable("failed to decode submit response", err)
	}
	if submitted.ID == "" || submitted.PollingURL == "" {
		return "", "", remoteUnavailable("submit response missing id or polling_url", nil)
	}
	return submitted.ID, submitted.PollingURL, nil
}

func (c *Client) poll(ctx context.Context, pollingURL, jobID string) (string, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollingURL, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set("x-key", c.apiKey)
		q := req.URL.Query()
		q.Set("id", jobID)
		req.URL.RawQuery = q.Encode()

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", remoteUnavailable("polling request failed", err)
		}

		if err := classifyStatus("poll", resp); err != nil {
			resp.Body.Close()
			return "", err
		}

		var polled pollResponse
		err = json.NewDecoder(resp.Body).Decode(&polled)
		resp.Body.Close()
		if err != nil {
			return "", remoteUnavailable("failed to decode poll response", err)
		}

		switch polled.Status {
		case "Ready":
			if polled.Result.Sample == "" {
				return "", remoteUnavailable("job ready but no result image", nil)
			}
			return polled.Result.Sample, nil
		case "Content Moderated", "Request Moderated":
			return "", remoteRejected(fmt.Sprintf("job %s rejected: %s", jobID, polled.Status))
		case "Error", "Failed", "Task not found":
			return "", remoteUnavailable(fmt.Sprintf("job %s failed remotely: %s", jobID, polled.Status), nil)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", remoteUnavailable("result download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", remoteUnavailable(fmt.Sprintf("result download returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", remoteUnavailable("failed to read result image", err)
	}
	if len(data) == 0 {
		return nil, "", remoteUnavailable("result image is empty", nil)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, nil
}

// classifyStatus maps an HTTP response status to the failure taxonomy
func classifyStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity,
		resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return remoteRejected(fmt.Sprintf("%s rejected with status %d: %s", op, resp.StatusCode, body))
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return invalidRequest(fmt.Sprintf("%s failed with status %d: %s", op, resp.StatusCode, body))
	default:
		return remoteUnavailable(fmt.Sprintf("%s failed with status %d", op, resp.StatusCode), nil)
	}
}
