package examapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Client talks to the exstem-backend REST API on behalf of the student whose
// bearer token it is handed per call. It owns the retry policy for transient
// failures; terminal rejections pass straight through.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	log        zerolog.Logger
}

// NewClient creates an upstream API client. maxRetries bounds the attempts for
// transient failures (network errors and 5xx); backoff is the initial delay,
// doubled per retry.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, backoff time.Duration, log zerolog.Logger) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    backoff,
		log:        log.With().Str("component", "examapi").Logger(),
	}
}

type upstreamError struct {
	Error string `json:"error"`
}

// GetExam fetches the exam paper plus the student's submission status. Fetches
// are not retried: the client can simply re-request before the session starts.
func (c *Client) GetExam(ctx context.Context, examID uuid.UUID, bearer string) (*model.ExamEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/exams/%s", c.baseURL, examID), nil)
	if err != nil {
		return nil, fmt.Errorf("build exam request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("fetch exam: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var envelope model.ExamEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, fmt.Errorf("decode exam payload: %w", err)
		}
		return &envelope, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrExamNotFound
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("upstream returned %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("unexpected upstream status %d", resp.StatusCode)
	}
}

// Submit records the attempt upstream. Transient failures are retried with
// exponential backoff up to the configured bound; a duplicate submission or
// validation rejection returns immediately as terminal.
func (c *Client) Submit(ctx context.Context, bearer string, sub model.SubmissionRequest) (*model.SubmissionResult, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	delay := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		res, err := c.postSubmission(ctx, bearer, body)
		if err == nil {
			return res, nil
		}
		if IsTerminal(err) {
			return nil, err
		}

		lastErr = err
		c.log.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_retries", c.maxRetries).
			Msg("Submission attempt failed, will retry")

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("submission cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("submission failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) postSubmission(ctx context.Context, bearer string, body []byte) (*model.SubmissionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submissions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		var result model.SubmissionResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode submission result: %w", err)
		}
		return &result, nil
	case resp.StatusCode == http.StatusBadRequest:
		// The upstream answers 400 both for duplicates and validation
		// rejections; a duplicate is the hasSubmitted case, not an error to
		// show as a failure.
		msg := readUpstreamError(resp.Body)
		if msg == "You have already submitted this exam" {
			return nil, ErrAlreadySubmitted
		}
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Message: msg}
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrExamNotFound
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("upstream returned %d", resp.StatusCode)}
	default:
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Message: readUpstreamError(resp.Body)}
	}
}

func readUpstreamError(r io.Reader) string {
	var ue upstreamError
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable error body"
	}
	if err := json.Unmarshal(data, &ue); err != nil || ue.Error == "" {
		return string(data)
	}
	return ue.Error
}
