// Package mailer relays contact submissions to a transactional email API.
// Delivery is best-effort and rate limited; a failed or throttled send never
// blocks the notification path.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"folionotify/pkg/logx"
)

var ErrThrottled = errors.New("mailer: rate limit exceeded")

type Config struct {
	Enabled    bool
	Endpoint   string
	APIKey     string
	From       string
	To         string
	RatePerMin int // default 10
}

type Message struct {
	Subject string
	Body    string
	ReplyTo string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the configured mailer, or a no-op when disabled.
func New(cfg Config, log logx.Logger) Mailer {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nopMailer{}
	}
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &apiMailer{
		cfg:     cfg,
		log:     log,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), cfg.RatePerMin),
	}
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, Message) error { return nil }

type apiMailer struct {
	cfg     Config
	log     logx.Logger
	client  *http.Client
	limiter *rate.Limiter
}

type apiPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

func (m *apiMailer) Send(ctx context.Context, msg Message) error {
	// Non-blocking: a burst of submissions drops mail, not requests.
	if !m.limiter.Allow() {
		return ErrThrottled
	}

	body, err := json.Marshal(apiPayload{
		From:    m.cfg.From,
		To:      m.cfg.To,
		Subject: msg.Subject,
		Text:    msg.Body,
		ReplyTo: msg.ReplyTo,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mailer: provider returned %s", resp.Status)
	}
	m.log.Debug("contact mail relayed", logx.String("subject", msg.Subject))
	return nil
}
