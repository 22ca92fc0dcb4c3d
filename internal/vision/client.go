// Package vision calls the optional computer-vision collaborator service
// that estimates defect class, confidence, and depth from report imagery.
// The engine works without it: an unconfigured client is disabled and
// callers fall back to severity defaults.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls the collaborator connection. An empty BaseURL disables the
// client.
type Config struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerS  float64       `yaml:"rate_per_s" mapstructure:"rate_per_s"`
	RateBurst int           `yaml:"rate_burst" mapstructure:"rate_burst"`
	// MaxAttempts is the total number of tries per analysis call, including
	// the first. Only transient failures are retried.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Request describes one analysis call.
type Request struct {
	IssueID  string  `json:"issue_id"`
	ImageURL string  `json:"image_url,omitempty"`
	Category string  `json:"category,omitempty"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// Result is the collaborator's estimate for a report.
type Result struct {
	DefectClass string   `json:"defect_class"`
	Confidence  float64  `json:"confidence"`
	DepthCM     *float64 `json:"depth_estimate_cm,omitempty"`
}

// Client talks to the collaborator service.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a Client. A nil return means vision analysis is not
// configured.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerS > 0 {
		limit = rate.Limit(cfg.RatePerS)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Enabled reports whether analysis calls will be attempted.
func (c *Client) Enabled() bool {
	return c != nil
}

// transientError marks failures worth retrying: network errors and 5xx
// responses from the collaborator.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Analyze submits a report for image analysis and returns the estimate.
// Transient failures are retried with exponential backoff.
func (c *Client) Analyze(ctx context.Context, req Request) (*Result, error) {
	if !c.Enabled() {
		return nil, eris.New("vision: client not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "vision: rate limit wait")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "vision: marshal request")
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			zap.L().Warn("vision: retrying analysis",
				zap.String("issue_id", req.IssueID),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr
			case <-timer.C:
			}
			backoff *= 2
		}

		result, err := c.analyzeOnce(ctx, req, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var te *transientError
		if ctx.Err() != nil || !errors.As(err, &te) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) analyzeOnce(ctx context.Context, req Request, payload []byte) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "vision: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &transientError{err: eris.Wrap(err, "vision: analyze request")}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 500 {
		return nil, &transientError{err: eris.Errorf("vision: analyze returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("vision: analyze returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, eris.Wrap(err, "vision: decode response")
	}

	zap.L().Debug("vision: analysis complete",
		zap.String("issue_id", req.IssueID),
		zap.String("defect_class", result.DefectClass),
		zap.Float64("confidence", result.Confidence),
	)
	return &result, nil
}
