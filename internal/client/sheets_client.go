package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ResultSink accepts result batches for the spreadsheet backend
type ResultSink interface {
	Send(ctx context.Context, body []byte) error
}

// SheetsClient posts result batches to a spreadsheet web-app endpoint.
// Bodies are sent as text/plain so browsers and scripts skip CORS preflight.
type SheetsClient struct {
	httpClient *http.Client
	url        string
	log        zerolog.Logger
}

// NewSheetsClient creates a client for the endpoint at url
func NewSheetsClient(url string, timeout time.Duration) *SheetsClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SheetsClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url: url,
		log: log.Logger.With().Str("component", "sheets-client").Logger(),
	}
}

// URL returns the endpoint the client posts to
func (c *SheetsClient) URL() string {
	return c.url
}

// Send posts body and reports non-2xx responses as errors
func (c *SheetsClient) Send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	c.log.Debug().Int("bytes", len(body)).Msg("→ relay POST")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug().Int("status", resp.StatusCode).Msg("← relay response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sheets endpoint error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
