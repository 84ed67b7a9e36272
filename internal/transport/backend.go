package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deskhaus/deskchat/internal/domain"
)

// ErrRequestFailed marks a discrete call that returned a non-success
// status or failed at the transport level.
var ErrRequestFailed = errors.New("backend request failed")

// Backend is the discrete-call client for the support backend's REST
// surface: the query fallback, the health probe, and the analytics feed.
type Backend struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewBackend creates a REST client for the backend at baseURL.
func NewBackend(baseURL string, timeout time.Duration, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Health probes GET /health. A 2xx status means the backend is reachable;
// the reconciler uses this to gate the persistent-channel attempt.
func (b *Backend) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: health returned status %d", ErrRequestFailed, resp.StatusCode)
	}
	return nil
}

// Query issues one discrete POST /api/v1/query call.
func (b *Backend) Query(ctx context.Context, q QueryPayload) (*ReplyPayload, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.logger.Warn("Discrete query rejected", "status", resp.StatusCode, "session_id", q.SessionID)
		return nil, fmt.Errorf("%w: query returned status %d", ErrRequestFailed, resp.StatusCode)
	}

	var reply ReplyPayload
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", ErrRequestFailed, err)
	}
	return &reply, nil
}

// Analytics fetches GET /api/v1/analytics.
func (b *Backend) Analytics(ctx context.Context) (domain.AnalyticsSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v1/analytics", nil)
	if err != nil {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("build analytics request: %w", err)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("%w: analytics returned status %d", ErrRequestFailed, resp.StatusCode)
	}

	var snap domain.AnalyticsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("%w: decode analytics: %v", ErrRequestFailed, err)
	}
	return snap, nil
}

func drainAndClose(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, io.LimitReader(body, 4096)); err != nil {
		slog.Debug("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Debug("Failed to close response body", "error", err)
	}
}
