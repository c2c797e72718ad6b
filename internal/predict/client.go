// Package predict talks to the external prediction-model service: it submits
// an image plus context for analysis and polls the resulting job until a
// terminal state.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/snapbet/decision-engine/internal/model"
)

// SubmissionError wraps an upload or validation failure from the model
// service. Submissions are never retried automatically.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return "predict: submission failed: " + e.Err.Error()
	}
	return fmt.Sprintf("predict: submission failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ErrJobNotFound is returned when the model service does not know the job.
var ErrJobNotFound = errors.New("predict: job not found")

// Client is an HTTP client for the model service.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a model-service client. A zero timeout defaults to 30s;
// multipart uploads can be slow on mobile links.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// SubmitRequest carries everything the model needs to produce a
// recommendation. Context is optional free text shown to the model.
type SubmitRequest struct {
	Image    io.Reader
	Filename string
	UserID   string
	Context  string
	Model    string
}

// Submit uploads the image and context as multipart form data and returns
// the job ID assigned by the model service. Failures surface verbatim as
// *SubmissionError.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.UserID == "" {
		return "", &SubmissionError{Err: errors.New("user_id is required")}
	}
	if req.Image == nil {
		return "", &SubmissionError{Err: errors.New("image is required")}
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("image", req.Filename)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	if _, err := io.Copy(part, req.Image); err != nil {
		return "", &SubmissionError{Err: err}
	}
	w.WriteField("user_id", req.UserID)
	if req.Context != "" {
		w.WriteField("context", req.Context)
	}
	if req.Model != "" {
		w.WriteField("model", req.Model)
	}
	if err := w.Close(); err != nil {
		return "", &SubmissionError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &body)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.JobID == "" {
		return "", &SubmissionError{Err: errors.New("model service returned no job_id")}
	}
	return out.JobID, nil
}

// GetJob fetches the current state of a job. Safe to call repeatedly: a
// terminal job returns the same payload on every call.
func (c *Client) GetJob(ctx context.Context, jobID string) (*model.PredictionJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/predictions/"+jobID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict: fetch job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("predict: fetch job %s: status %d", jobID, resp.StatusCode)
	}

	var job model.PredictionJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("predict: decode job %s: %w", jobID, err)
	}
	return &job, nil
}
