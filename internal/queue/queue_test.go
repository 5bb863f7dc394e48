package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CareLink/internal/cache"
	"CareLink/internal/model"
	pkgerrors "CareLink/pkg/errors"
	"CareLink/pkg/snowflake"
	"CareLink/storage/mq"
)

type fakeOpener struct {
	calls int
	err   error
}

func (f *fakeOpener) Open(_ context.Context, _ model.AlertTriggeredMessage) (bool, error) {
	f.calls++
	return f.err == nil, f.err
}

func newGuard(t *testing.T) *cache.MessageGuard {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewMessageGuard(client)
}

func alertBody(t *testing.T, messageID string) []byte {
	t.Helper()

	body, err := json.Marshal(model.AlertTriggeredMessage{
		MessageID:   messageID,
		AlertID:     "0b5f7c3e-4a1d-4c55-9a55-6c2f0f0d1a11",
		HouseholdID: "7e9c1d2a-5b3f-4e8a-8f6d-2a1b3c4d5e6f",
		TriggeredAt: "2026-01-02T03:04:05Z",
	})
	require.NoError(t, err)
	return body
}

func TestAlertTriggeredHandlerSkipsDuplicates(t *testing.T) {
	opener := &fakeOpener{}
	handler := AlertTriggeredHandler(opener, newGuard(t), nil)
	ctx := context.Background()

	require.NoError(t, handler(ctx, alertBody(t, "m-1")))

	err := handler(ctx, alertBody(t, "m-1"))
	assert.True(t, pkgerrors.IsSkipMessageError(err))
	assert.Equal(t, 1, opener.calls)
}

func TestAlertTriggeredHandlerAllowsRetryAfterFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("db down")}
	handler := AlertTriggeredHandler(opener, newGuard(t), nil)
	ctx := context.Background()

	err := handler(ctx, alertBody(t, "m-2"))
	require.Error(t, err)
	assert.False(t, pkgerrors.IsSkipMessageError(err))

	opener.err = nil
	require.NoError(t, handler(ctx, alertBody(t, "m-2")))
	assert.Equal(t, 2, opener.calls)
}

func TestAlertTriggeredHandlerRejectsMalformedBody(t *testing.T) {
	opener := &fakeOpener{}
	handler := AlertTriggeredHandler(opener, newGuard(t), nil)

	err := handler(context.Background(), []byte("{not json"))
	assert.True(t, pkgerrors.IsSkipMessageError(err))
	assert.Zero(t, opener.calls)
}

func TestAlertTriggeredHandlerRemembersSkippedMessages(t *testing.T) {
	opener := &fakeOpener{err: &pkgerrors.SkipMessageError{Reason: "alert already acknowledged"}}
	handler := AlertTriggeredHandler(opener, newGuard(t), nil)
	ctx := context.Background()

	assert.True(t, pkgerrors.IsSkipMessageError(handler(ctx, alertBody(t, "m-3"))))
	assert.True(t, pkgerrors.IsSkipMessageError(handler(ctx, alertBody(t, "m-3"))))
	assert.Equal(t, 1, opener.calls)
}

func TestPublishEscalationAdvanced(t *testing.T) {
	require.NoError(t, snowflake.Init(1, 1))

	var (
		gotExchange, gotKey string
		gotBody             interface{}
	)
	publisher := newEventPublisher(func(_ context.Context, exchange, routingKey string, body interface{}) error {
		gotExchange, gotKey, gotBody = exchange, routingKey, body
		return nil
	}, nil)

	err := publisher.PublishEscalationAdvanced(context.Background(), model.EscalationAdvancedEvent{
		EscalationID: "e-1",
		FromLevel:    0,
		ToLevel:      1,
	})
	require.NoError(t, err)

	assert.Equal(t, mq.ExchangeEscalation, gotExchange)
	assert.Equal(t, mq.RoutingEscalationEvent, gotKey)

	event, ok := gotBody.(model.EscalationAdvancedEvent)
	require.True(t, ok)
	assert.Contains(t, event.MessageID, "esc_adv_")
	assert.NotEmpty(t, event.OccurredAt)
	assert.Equal(t, 1, event.ToLevel)
}

func TestPublishEscalationAdvancedReturnsBrokerError(t *testing.T) {
	require.NoError(t, snowflake.Init(1, 1))

	publisher := newEventPublisher(func(context.Context, string, string, interface{}) error {
		return errors.New("channel closed")
	}, nil)

	err := publisher.PublishEscalationAdvanced(context.Background(), model.EscalationAdvancedEvent{
		MessageID:    "fixed",
		EscalationID: "e-2",
	})
	assert.EqualError(t, err, "channel closed")
}
