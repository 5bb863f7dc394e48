package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CareLink/pkg/breaker"
	"CareLink/pkg/errors"
)

// Email 单个收件人的一封邮件
type Email struct {
	To      string
	Subject string
	HTML    string
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type EmailConfig struct {
	URL     string
	APIKey  string
	From    string
	Timeout time.Duration
}

// EmailClient Resend 事务邮件，每个收件人一次请求
type EmailClient struct {
	doer    Doer
	cfg     EmailConfig
	breaker *breaker.CircuitBreaker
}

func NewEmailClient(doer Doer, cfg EmailConfig) *EmailClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &EmailClient{
		doer:    doer,
		cfg:     cfg,
		breaker: breaker.NewCircuitBreaker("resend_email", 5, 30*time.Second),
	}
}

// Ready 凭据缺失时整轮升级直接失败
func (c *EmailClient) Ready() error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("%w: RESEND_API_KEY is not set", errors.DispatcherNotReady)
	}
	if c.cfg.From == "" {
		return fmt.Errorf("%w: EMAIL_FROM is not set", errors.DispatcherNotReady)
	}
	return nil
}

func (c *EmailClient) SendEmail(ctx context.Context, email Email) error {
	if err := c.Ready(); err != nil {
		return err
	}

	body, err := json.Marshal(resendRequest{
		From:    c.cfg.From,
		To:      []string{email.To},
		Subject: email.Subject,
		HTML:    email.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	if err := postJSON(ctx, c.doer, c.breaker, c.cfg.URL, headers, body, c.cfg.Timeout); err != nil {
		return fmt.Errorf("resend email: %w", err)
	}
	return nil
}
