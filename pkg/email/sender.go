package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Email subjects, matching the application's Polish UI copy.
const (
	SubjectReset      = "Zresetuj swoje hasło"
	SubjectInvitation = "Zaproszenie do systemu"
)

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	// IdempotencyKey lets the mail API deduplicate retried dispatches.
	IdempotencyKey string `json:"idempotency_key"`
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPSenderConfig configures the mail API client.
type HTTPSenderConfig struct {
	// URL is the mail API send endpoint.
	URL    string
	APIKey string
	// From is the sender address stamped on every message.
	From    string
	Timeout time.Duration
}

// HTTPSender posts messages to an HTTP mail API.
type HTTPSender struct {
	cfg        HTTPSenderConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPSender creates a mail API sender.
func NewHTTPSender(cfg HTTPSenderConfig, logger *logrus.Logger) *HTTPSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = s.cfg.From
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.logger.WithFields(logrus.Fields{
		"component": "email_sender",
		"to":        msg.To,
		"subject":   msg.Subject,
	}).Info("email dispatched")
	return nil
}

// Service renders account emails and hands them to the sender. It
// implements the mailer interface the user service consumes.
type Service struct {
	templates *TemplateStore
	sender    Sender
}

// NewService wires templates and delivery.
func NewService(templates *TemplateStore, sender Sender) *Service {
	return &Service{templates: templates, sender: sender}
}

// SendInvitation sends the account-activation email.
func (s *Service) SendInvitation(ctx context.Context, to, name, link string) error {
	return s.send(ctx, TemplateInvitation, SubjectInvitation, to, name, link)
}

// SendPasswordReset sends the reset-link email.
func (s *Service) SendPasswordReset(ctx context.Context, to, name, link string) error {
	return s.send(ctx, TemplateReset, SubjectReset, to, name, link)
}

func (s *Service) send(ctx context.Context, tmpl, subject, to, name, link string) error {
	html, err := s.templates.Render(tmpl, TemplateData{Name: name, Link: link})
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, Message{
		To:             to,
		Subject:        subject,
		HTML:           html,
		IdempotencyKey: uuid.New().String(),
	})
}
