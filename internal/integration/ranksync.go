package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
)

// RankSync pushes rank promotions to an external permission or economy
// system. The backing system may be absent; callers must consult Available
// and treat an unavailable sync as a no-op, never as an error.
type RankSync interface {
	Available() bool
	SyncRank(ctx context.Context, playerKey string, pos domain.RankPosition, title string) error
}

// Noop is the RankSync used when no backing system is configured
type Noop struct{}

func (Noop) Available() bool { return false }

func (Noop) SyncRank(context.Context, string, domain.RankPosition, string) error { return nil }

// Webhook posts promotions to a configured HTTP endpoint
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook rank sync
func NewWebhook(cfg *config.RankSyncConfig, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (w *Webhook) Available() bool {
	return w.url != ""
}

type webhookPayload struct {
	PlayerKey string    `json:"player_key"`
	Main      int       `json:"main"`
	Sub       int       `json:"sub"`
	Title     string    `json:"title"`
	At        time.Time `json:"at"`
}

func (w *Webhook) SyncRank(ctx context.Context, playerKey string, pos domain.RankPosition, title string) error {
	body, err := json.Marshal(webhookPayload{
		PlayerKey: playerKey,
		Main:      pos.Main,
		Sub:       pos.Sub,
		Title:     title,
		At:        time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting rank sync: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("rank sync webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// FromConfig returns the webhook sync when a URL is configured, Noop otherwise
func FromConfig(cfg *config.RankSyncConfig, logger *slog.Logger) RankSync {
	if cfg.WebhookURL == "" {
		return Noop{}
	}
	return NewWebhook(cfg, logger)
}
