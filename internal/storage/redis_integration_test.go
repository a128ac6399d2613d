//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisKV(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	kv, err := OpenRedis(ctx, url, "test:")
	require.NoError(t, err)
	defer kv.Close()

	exerciseKV(t, kv)

	s := NewStore(kv)
	require.NoError(t, s.SaveValidationResult(ctx, sampleResult()))
	got, ok := s.ValidationResult(ctx)
	require.True(t, ok)
	assert.Equal(t, "u-1", *got.UserID)

	other := NewRedisKV(kv.client, "other:")
	_, err = other.Get(ctx, "validation.payment_data")
	assert.ErrorIs(t, err, ErrNotFound, "prefixes isolate stores")
}
