package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// webhookPayload is the JSON body posted to the workspace's webhook URL.
type webhookPayload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// WebhookChannel POSTs a signed payload to the workspace's configured URL.
// Every distinct URL gets its own circuit breaker so one tenant's dead
// endpoint can't burn request budget probing it on every event; trips open
// after a run of failures and half-opens after Timeout, the same shape the
// pack's resilient-execution service wires around outbound calls.
type WebhookChannel struct {
	client  *http.Client
	timeout time.Duration

	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
}

func NewWebhookChannel(timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, settings *NotificationSettingsView, _ Rendered, ev Event) error {
	if !settings.WebhookEnabled || settings.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Event: string(ev.Type), Data: ev.Data})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	signature := c.sign(body, settings.WebhookSecret)

	breaker := c.breakerFor(settings.WebhookURL)
	_, err = breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Secret", signature)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

// sign returns the hex-encoded HMAC-SHA256 of body using secret, carried in
// the X-Webhook-Secret header so the receiver can verify authenticity
// without the raw secret ever leaving this process.
func (c *WebhookChannel) sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *WebhookChannel) breakerFor(url string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[url]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook:" + url,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[url] = b
	return b
}
