package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/sethvargo/go-retry"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultTimeout     = 10 * time.Second
)

// ClientConfig configures report submission
type ClientConfig struct {
	URL         string
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

// Client posts final reports to the evaluation endpoint
type Client struct {
	url         string
	maxAttempts int
	baseDelay   time.Duration
	httpClient  *http.Client
	logger      *logger.Logger
}

// NewClient creates a callback client
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		url:         cfg.URL,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log.WithComponent("callback-client"),
	}
}

// Submit posts report, retrying non-200 responses and transport errors with
// exponential backoff. It returns the number of attempts made.
func (c *Client) Submit(ctx context.Context, report models.FinalReport) (int, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshal report: %w", err)
	}

	log := c.logger.WithSessionID(report.SessionID)
	attempts := 0

	b := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.baseDelay))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		if err := c.post(ctx, payload); err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempts).
				Int("max_attempts", c.maxAttempts).
				Msg("report submission failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int("attempts", attempts).Msg("giving up on report submission")
		return attempts, fmt.Errorf("submit report for %s: %w", report.SessionID, err)
	}

	log.Info().Int("attempts", attempts).Msg("report submitted")
	return attempts, nil
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callback returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
