// Package audit posts audit log entries to a Discord webhook in the background.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"modpod/internal/logging"
	"modpod/internal/metrics"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	webhookUsername = "Modcast Podcast Admin"
	webhookIconURL  = "https://cdn.discordapp.com/team-icons/755212236242288640/69496a2e8be6eccfee1fbc0fce476ae8.png"
)

type Colour int

const (
	ColourDefault Colour = 0xE70B71
	ColourSuccess Colour = 0x43B581
	ColourError   Colour = 0xF04747
	ColourBlurple Colour = 0x7289DA
)

type Field struct {
	Name  string
	Value string
}

// Entry is one audit log message. Inline fields render before newline fields.
type Entry struct {
	Title   string
	Body    string
	Inline  []Field
	Newline []Field
	Colour  Colour
}

type Config struct {
	WebhookURL string
	QueueSize  int
	HTTPClient *http.Client
}

type Notifier struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewNotifier starts the delivery worker. An empty webhook URL yields a notifier that drops everything.
func NewNotifier(cfg Config) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		url:    cfg.WebhookURL,
		http:   cfg.HTTPClient,
		queue:  make(chan Entry, cfg.QueueSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		sleep:  sleepCtx,
	}
	n.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "audit-webhook",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	if n.url == "" {
		close(n.done)
		return n
	}
	go n.run()
	return n
}

// Notify queues e for delivery. It never blocks; entries are dropped when the queue is full.
func (n *Notifier) Notify(e Entry) {
	if n.url == "" {
		logging.Debug().Str("title", e.Title).Msg("audit webhook not configured, dropping entry")
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		metrics.AuditDeliveries.WithLabelValues("dropped").Inc()
		return
	}

	select {
	case n.queue <- e:
	default:
		metrics.AuditDeliveries.WithLabelValues("dropped").Inc()
		logging.Warn().Str("title", e.Title).Msg("audit queue full, dropping entry")
	}
}

// Close stops accepting entries and waits for queued ones to be delivered or ctx to end.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		if n.url != "" {
			close(n.queue)
		}
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-n.done
		return ctx.Err()
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for e := range n.queue {
		if n.ctx.Err() != nil {
			metrics.AuditDeliveries.WithLabelValues("dropped").Inc()
			continue
		}
		n.deliver(e)
	}
}

func (n *Notifier) deliver(e Entry) {
	op := "internal/audit/notifier.go deliver"
	body, err := json.Marshal(payloadFor(e))
	if err != nil {
		metrics.AuditDeliveries.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Str("op", op).Msg("failed to encode audit entry")
		return
	}

	_, err = n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.post(body)
	})
	switch {
	case err == nil:
		metrics.AuditDeliveries.WithLabelValues("sent").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.AuditDeliveries.WithLabelValues("dropped").Inc()
		logging.Warn().Str("op", op).Str("title", e.Title).Msg("audit webhook circuit open, dropping entry")
	default:
		metrics.AuditDeliveries.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Str("op", op).Str("title", e.Title).Msg("audit delivery failed")
	}
}

// post sends body, waiting out a single 429 before one retry.
func (n *Notifier) post(body []byte) error {
	for attempt := 0; ; attempt++ {
		status, retryAfter, err := n.send(body)
		if err != nil {
			return err
		}
		switch {
		case status == http.StatusNoContent || status == http.StatusOK:
			return nil
		case status == http.StatusTooManyRequests && attempt == 0:
			metrics.AuditDeliveries.WithLabelValues("ratelimited").Inc()
			if err := n.sleep(n.ctx, retryAfter); err != nil {
				return err
			}
		default:
			return fmt.Errorf("webhook returned http %d", status)
		}
	}
}

func (n *Notifier) send(body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(n.ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		return resp.StatusCode, 0, nil
	}

	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&rl)
	return resp.StatusCode, time.Duration(rl.RetryAfter * float64(time.Second)), nil
}

type payload struct {
	Username string  `json:"username"`
	IconURL  string  `json:"icon_url"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Fields      []embedField `json:"fields"`
	Color       int          `json:"color"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func payloadFor(e Entry) payload {
	colour := e.Colour
	if colour == 0 {
		colour = ColourDefault
	}

	fields := make([]embedField, 0, len(e.Inline)+len(e.Newline))
	for _, f := range e.Inline {
		fields = append(fields, embedField{Name: f.Name, Value: f.Value, Inline: true})
	}
	for _, f := range e.Newline {
		fields = append(fields, embedField{Name: f.Name, Value: f.Value})
	}

	return payload{
		Username: webhookUsername,
		IconURL:  webhookIconURL,
		Embeds: []embed{{
			Title:       e.Title,
			Description: e.Body,
			Fields:      fields,
			Color:       int(colour),
		}},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
