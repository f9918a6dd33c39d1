package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"dca-trading-btc-binance/internal/logger"
)

const (
	queueCapacity = 100
	queueTTL      = 24 * time.Hour

	// Minimum gap between non-critical alerts. Critical bypasses.
	rateLimitWindow = 30 * time.Second
)

type queuedAlert struct {
	Message  string
	Severity string
	QueuedAt time.Time
}

// WebhookNotifier posts alerts to a webhook. Best-effort by contract: it
// never returns errors into the candle path. Failed posts go to a bounded
// queue that drains on the next successful send.
type WebhookNotifier struct {
	url    string
	client *resty.Client

	mu       sync.Mutex
	queue    []queuedAlert
	lastSent time.Time
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{url: url, client: client}
}

// SendAlert posts {message, severity} to the webhook. Severities below
// critical are rate limited; delivery failures enqueue the alert.
func (n *WebhookNotifier) SendAlert(message, severity string) {
	if n.url == "" {
		logger.Debug("Notifier not configured, dropping alert", "severity", severity)
		return
	}

	n.mu.Lock()
	if severity != "critical" && time.Since(n.lastSent) < rateLimitWindow {
		n.enqueueLocked(message, severity)
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	// Posts run async so a slow webhook never blocks trading.
	go n.deliver(message, severity)
}

func (n *WebhookNotifier) deliver(message, severity string) {
	resp, err := n.client.R().
		SetBody(map[string]string{
			"message":  message,
			"severity": severity,
			"sentAt":   time.Now().UTC().Format(time.RFC3339),
		}).
		Post(n.url)

	if err != nil || resp.IsError() {
		if err == nil {
			err = fmt.Errorf("webhook status %s", resp.Status())
		}
		logger.Error("Failed to deliver alert, queueing", "severity", severity, "error", err)
		n.mu.Lock()
		n.enqueueLocked(message, severity)
		n.mu.Unlock()
		return
	}

	n.mu.Lock()
	n.lastSent = time.Now()
	pending := n.dequeueLocked()
	n.mu.Unlock()

	for _, a := range pending {
		n.deliverQueued(a)
	}
}

func (n *WebhookNotifier) deliverQueued(a queuedAlert) {
	resp, err := n.client.R().
		SetBody(map[string]string{
			"message":  a.Message,
			"severity": a.Severity,
			"queuedAt": a.QueuedAt.UTC().Format(time.RFC3339),
		}).
		Post(n.url)
	if err != nil || resp.IsError() {
		n.mu.Lock()
		n.enqueueLocked(a.Message, a.Severity)
		n.mu.Unlock()
	}
}

// enqueueLocked appends under the lock, evicting the oldest entry when full
// and dropping entries past their TTL.
func (n *WebhookNotifier) enqueueLocked(message, severity string) {
	cutoff := time.Now().Add(-queueTTL)
	kept := n.queue[:0]
	for _, a := range n.queue {
		if a.QueuedAt.After(cutoff) {
			kept = append(kept, a)
		}
	}
	n.queue = kept

	if len(n.queue) >= queueCapacity {
		n.queue = n.queue[1:]
	}
	n.queue = append(n.queue, queuedAlert{Message: message, Severity: severity, QueuedAt: time.Now()})
}

func (n *WebhookNotifier) dequeueLocked() []queuedAlert {
	pending := n.queue
	n.queue = nil
	return pending
}

// QueueLen reports the number of alerts waiting for redelivery.
func (n *WebhookNotifier) QueueLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// CheckReachable probes the webhook endpoint. Used by the startup validator;
// failure is a warning there, never fatal.
func (n *WebhookNotifier) CheckReachable() error {
	if n.url == "" {
		return fmt.Errorf("webhook URL not configured")
	}
	resp, err := n.client.R().Head(n.url)
	if err != nil {
		return err
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("webhook status %s", resp.Status())
	}
	return nil
}
