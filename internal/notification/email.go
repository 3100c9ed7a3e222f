package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"duka-be/internal/logger"
	"duka-be/internal/metrics"

	"go.uber.org/zap"
)

type Email struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

type EmailConfig struct {
	APIURL string
	APIKey string
	From   string
}

// SendError is a non-2xx answer from the email provider.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("email provider returned %d: %s", e.StatusCode, e.Body)
}

type emailClient struct {
	cfg        EmailConfig
	httpClient *http.Client
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

type sendEmailResponse struct {
	ID string `json:"id"`
}

// NewEmailClient talks to a Resend-compatible HTTP API.
func NewEmailClient(cfg EmailConfig) Sender {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &emailClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *emailClient) Send(ctx context.Context, e Email) error {
	log := logger.FromCtx(ctx)

	payload, err := json.Marshal(sendEmailRequest{
		From:    c.cfg.From,
		To:      []string{e.To},
		Subject: e.Subject,
		Text:    e.Text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	timer := metrics.StartTimer()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("email request failed", zap.Error(err), timer.Latency())
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("email provider rejected message",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return &SendError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out sendEmailResponse
	_ = json.Unmarshal(body, &out)
	log.Debug("email accepted",
		zap.String("message_id", out.ID),
		timer.Latency(),
	)
	return nil
}
