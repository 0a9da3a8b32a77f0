package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/akylbek/payment-system/credential-payments/internal/lock"
)

func TestRedisLocker_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	locker := lock.NewRedisLocker(client, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	release, err := locker.Acquire(ctx, "payment:1")
	assert.Error(t, err)
	assert.Nil(t, release)
	assert.Contains(t, err.Error(), "payment:1")
}
