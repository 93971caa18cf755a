package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/erazemk/najdeno/internal/model"
)

const (
	defaultRetryBaseDelay = 250 * time.Millisecond
	defaultRetryMaxDelay  = 2 * time.Second
	maxErrorBody          = 512
)

// Remote asks an HTTP endpoint for a verdict. The endpoint receives
// {"lostItem": ..., "foundItem": ...} and answers with a Verdict.
type Remote struct {
	url        string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RemoteOption customizes a Remote classifier.
type RemoteOption func(*Remote)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) RemoteOption {
	return func(r *Remote) {
		if n >= 0 {
			r.maxRetries = uint64(n)
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays. Non-positive values
// keep the defaults.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) RemoteOption {
	return func(r *Remote) {
		if baseDelay > 0 {
			r.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			r.maxDelay = maxDelay
		}
	}
}

// NewRemote returns a classifier calling url with an optional bearer token.
func NewRemote(url, apiKey string, opts ...RemoteOption) *Remote {
	r := &Remote{
		url:        strings.TrimSpace(url),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{},
		maxRetries: 3,
		baseDelay:  defaultRetryBaseDelay,
		maxDelay:   defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type remoteRequest struct {
	LostItem  *model.Item `json:"lostItem"`
	FoundItem *model.Item `json:"foundItem"`
}

type remoteResponse struct {
	IsMatch bool     `json:"is_match"`
	Reason  string   `json:"reason"`
	Score   *float64 `json:"score"`
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("classifier request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Classify implements Classifier. Network errors, 429 and 5xx responses are
// retried with capped exponential backoff; other failures return at once.
func (r *Remote) Classify(ctx context.Context, lost, found *model.Item) (Verdict, error) {
	body, err := json.Marshal(remoteRequest{LostItem: lost, FoundItem: found})
	if err != nil {
		return Verdict{}, fmt.Errorf("encoding classifier request: %w", err)
	}

	backoff := retry.WithMaxRetries(r.maxRetries, retry.WithCappedDuration(r.maxDelay, retry.NewExponential(r.baseDelay)))

	var out remoteResponse
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := r.do(ctx, body)
		if err != nil {
			return err
		}
		out = *resp
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, ctxErr
		}
		var se *statusError
		if errors.As(err, &se) && !retryableStatus(se.StatusCode) {
			return Verdict{}, err
		}
		return Verdict{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	v := Verdict{IsMatch: out.IsMatch, Reason: out.Reason}
	switch {
	case out.Score != nil:
		v.Score = clampScore(*out.Score)
	case out.IsMatch:
		v.Score = 1
	}
	return v, nil
}

func (r *Remote) do(ctx context.Context, body []byte) (*remoteResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, retry.RetryableError(fmt.Errorf("classifier request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &statusError{StatusCode: resp.StatusCode, Body: string(snippet)}
		if retryableStatus(resp.StatusCode) {
			return nil, retry.RetryableError(se)
		}
		return nil, se
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding classifier response: %w", err)
	}
	return &out, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
