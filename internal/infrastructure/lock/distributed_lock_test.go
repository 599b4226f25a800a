package lock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestLockKeys(t *testing.T) {
	require.Equal(t, "loyalty:lock:redeem:user:42", RedeemLockKey(42))
	require.Equal(t, "loyalty:lock:accrue:order:O-1", AccrueLockKey("O-1"))
}

func TestAcquireFailsWhenRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	release, err := NewRedisLocker(client, time.Second).Acquire(context.Background(), RedeemLockKey(1), "owner")
	require.Error(t, err)
	require.Nil(t, release)
}
