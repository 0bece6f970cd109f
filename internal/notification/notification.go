// Package notification renders trade events into generic feed records and
// delivers them to registered providers. The record format is provider
// agnostic; any messaging collaborator can consume it.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"market-matrix/internal/position"
)

// EventType classifies a feed record.
type EventType string

const (
	EventSetup      EventType = "setup"
	EventTradeClose EventType = "trade_close"
	EventBreaker    EventType = "circuit_breaker"
)

// FeedRecord is one rendered notification payload.
type FeedRecord struct {
	Type       EventType `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Symbol     string    `json:"symbol,omitempty"`
	Price      float64   `json:"price,omitempty"`
	PnlUSD     float64   `json:"pnl_usd,omitempty"`
	PnlPercent float64   `json:"pnl_percent,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier delivers a feed record to one provider.
type Notifier interface {
	Send(ctx context.Context, rec FeedRecord) error
	Name() string
}

// Manager fans feed records out to every registered provider. Delivery
// failures are logged per provider and never propagate.
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// NewManager creates a notification manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger: logger.With().Str("component", "notification").Logger(),
		now:    time.Now,
	}
}

// AddNotifier registers a delivery provider.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

func (m *Manager) send(ctx context.Context, rec FeedRecord) {
	for _, n := range m.notifiers {
		if err := n.Send(ctx, rec); err != nil {
			m.logger.Warn().Err(err).Str("provider", n.Name()).Str("type", string(rec.Type)).Msg("notification delivery failed")
		}
	}
}

// NotifySetup announces a generated trade setup.
func (m *Manager) NotifySetup(ctx context.Context, setup position.TradeSetup) {
	m.send(ctx, FeedRecord{
		Type:  EventSetup,
		Title: fmt.Sprintf("Setup: %s %s", setup.Symbol, setup.Side),
		Message: fmt.Sprintf("%s %s @ %.6g (confluence %.1f)\nSL: %.6g | TP: %.6g",
			setup.Side, setup.Symbol, setup.Entry, setup.Confluence, setup.StopLoss, setup.TakeProfit),
		Symbol:    setup.Symbol,
		Price:     setup.Entry,
		Timestamp: m.now(),
	})
}

// OnTradeClosed renders and delivers the consolidated close record. It
// implements position.CloseListener.
func (m *Manager) OnTradeClosed(ctx context.Context, trade position.ClosedTrade, stats position.RunningStats) {
	m.send(ctx, FeedRecord{
		Type:  EventTradeClose,
		Title: fmt.Sprintf("Closed: %s %s %s", trade.Symbol, trade.Side, trade.Result),
		Message: fmt.Sprintf("Entry %.6g -> exit %.6g (%s)\nPnL: $%.2f (%.2f%%)\nRecord: %dW-%dL",
			trade.EntryPrice, trade.ExitPrice, trade.ExitReason,
			trade.PnlUSD, trade.PnlPercent, stats.Wins, stats.Losses),
		Symbol:     trade.Symbol,
		Price:      trade.ExitPrice,
		PnlUSD:     trade.PnlUSD,
		PnlPercent: trade.PnlPercent,
		Timestamp:  m.now(),
	})

	if stats.CircuitBreakerActive {
		m.send(ctx, FeedRecord{
			Type:      EventBreaker,
			Title:     "Circuit breaker active",
			Message:   fmt.Sprintf("%d consecutive losses, new setups are blocked until reset", stats.ConsecutiveLosses),
			Timestamp: m.now(),
		})
	}
}

// ============================================================================
// WEBHOOK NOTIFIER
// ============================================================================

// WebhookNotifier POSTs feed records as JSON to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook provider.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Send(ctx context.Context, rec FeedRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal feed record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
