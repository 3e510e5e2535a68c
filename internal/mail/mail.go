// Package mail provides the email delivery boundary. Delivery is
// best-effort: senders are called after database transactions commit and
// failures are reported to the caller, never rolled back.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Sender delivers transactional email.
type Sender interface {
	// SendVerificationCode delivers a registration verification code.
	SendVerificationCode(ctx context.Context, email, code string) error
	// SendInvitation delivers an invitation acceptance link.
	SendInvitation(ctx context.Context, email, link string) error
}

// Config holds email delivery configuration.
type Config struct {
	Endpoint string
	APIKey   string
	From     string
}

// HTTPSender delivers email through a Resend-compatible JSON API.
type HTTPSender struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPSender creates a sender for the configured API endpoint.
func NewHTTPSender(cfg *Config, logger *slog.Logger) *HTTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSender{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendVerificationCode delivers a registration verification code.
func (s *HTTPSender) SendVerificationCode(ctx context.Context, email, code string) error {
	body := fmt.Sprintf(
		`<p>Your verification code is:</p><h1>%s</h1><p>This code will expire in 15 minutes.</p>`,
		code,
	)
	return s.send(ctx, email, "Verify your PowerFlow account", body)
}

// SendInvitation delivers an invitation acceptance link.
func (s *HTTPSender) SendInvitation(ctx context.Context, email, link string) error {
	body := fmt.Sprintf(
		`<p>You have been invited to join a PowerFlow organization.</p><p><a href="%s">Accept invitation</a></p><p>This link expires in 7 days.</p>`,
		link,
	)
	return s.send(ctx, email, "You have been invited to PowerFlow", body)
}

func (s *HTTPSender) send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(emailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("encoding email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}

	s.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

// LogSender logs messages instead of delivering them. Used in
// development and tests.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// SendVerificationCode logs the verification code.
func (s *LogSender) SendVerificationCode(ctx context.Context, email, code string) error {
	s.logger.Info("verification code issued", "email", email, "code", code)
	return nil
}

// SendInvitation logs the invitation link.
func (s *LogSender) SendInvitation(ctx context.Context, email, link string) error {
	s.logger.Info("invitation link issued", "email", email, "link", link)
	return nil
}
