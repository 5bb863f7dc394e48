package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestRunLockIsExclusive(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	first := NewRunLock(client, "escalation-run", time.Minute)
	second := NewRunLock(client, "escalation-run", time.Minute)

	token, ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx, token))

	_, ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLockReleaseIgnoresForeignToken(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	lock := NewRunLock(client, "escalation-run", time.Minute)

	token, ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx, "someone-else"))

	stored, err := mr.Get(lock.Key())
	require.NoError(t, err)
	assert.Equal(t, token, stored)
}

func TestRunLockExpires(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	lock := NewRunLock(client, "escalation-run", 30*time.Second)

	_, ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	_, ok, err = lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMessageGuardLifecycle(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	guard := NewMessageGuard(client)

	ok, err := guard.TryMarkMessageProcessing(ctx, "msg-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.TryMarkMessageProcessing(ctx, "msg-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate delivery must be rejected")

	require.NoError(t, guard.UnmarkMessageProcessing(ctx, "msg-1"))
	ok, err = guard.TryMarkMessageProcessing(ctx, "msg-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "unmarked message can be retried")

	require.NoError(t, guard.MarkMessageProcessed(ctx, "msg-1", time.Hour))
	stored, err := mr.Get(messageKey("msg-1"))
	require.NoError(t, err)
	assert.Equal(t, "completed", stored)
}
