package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CareLink/pkg/breaker"
)

// PushMessage Expo push 消息体
type PushMessage struct {
	To        string            `json:"to"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Priority  string            `json:"priority"`
	Sound     string            `json:"sound"`
	ChannelID string            `json:"channelId"`
}

type PushConfig struct {
	URL         string
	AccessToken string
	Timeout     time.Duration
}

// PushClient 对 Expo push 网关发一次批量请求，不解析逐条 ticket
type PushClient struct {
	doer    Doer
	cfg     PushConfig
	breaker *breaker.CircuitBreaker
}

func NewPushClient(doer Doer, cfg PushConfig) *PushClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &PushClient{
		doer:    doer,
		cfg:     cfg,
		breaker: breaker.NewCircuitBreaker("expo_push", 3, 30*time.Second),
	}
}

func (c *PushClient) SendPush(ctx context.Context, messages []PushMessage) error {
	if len(messages) == 0 {
		return nil
	}

	body, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal push messages: %w", err)
	}

	headers := map[string]string{}
	if c.cfg.AccessToken != "" {
		headers["Authorization"] = "Bearer " + c.cfg.AccessToken
	}

	if err := postJSON(ctx, c.doer, c.breaker, c.cfg.URL, headers, body, c.cfg.Timeout); err != nil {
		return fmt.Errorf("expo push (%d messages): %w", len(messages), err)
	}
	return nil
}
