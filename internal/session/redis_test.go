package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/wallroll/pkg/models"
)

func TestSessionCodec(t *testing.T) {
	sess := models.NewSession(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	sess.Cursor = models.StepWindowHeight
	sess.RoomLength, sess.RoomWidth, sess.WallHeight = 5, 3, 2.7
	sess.WindowCount = 2
	sess.WindowDims = []float64{1.0, 1.2, 1.5}

	data, err := encodeSession(sess)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cursor":"window_height"`)

	decoded, err := decodeSession(data)
	require.NoError(t, err)
	assert.Equal(t, sess.Cursor, decoded.Cursor)
	assert.Equal(t, sess.WindowDims, decoded.WindowDims)
	assert.True(t, sess.StartedAt.Equal(decoded.StartedAt))

	_, err = encodeSession(nil)
	assert.Error(t, err)
}

func TestDecodeSession_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unknown cursor", `{"cursor":"attic"}`},
		{"inconsistent buffer", `{"cursor":"window_width","window_count":1,"window_dims":[1.2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeSession([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestRedisStore_Defaults(t *testing.T) {
	s := newRedisStore(nil, RedisConfig{})
	assert.Equal(t, SessionTimeout, s.ttl)
	assert.Equal(t, DefaultKeyPrefix+"42", s.key("42"))
}

// TestRedisStore_Integration runs against a live server when WALLROLL_TEST_REDIS_ADDR is set.
func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("WALLROLL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WALLROLL_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{
		Addr:   addr,
		TTL:    time.Minute,
		Prefix: "wallroll-test:" + uuid.NewString() + ":",
	})
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, "chat")
	require.NoError(t, err)
	assert.Nil(t, got)

	sess := models.NewSession(time.Now().UTC().Truncate(time.Second))
	sess.RoomLength = 5
	sess.Cursor = models.StepWidth
	require.NoError(t, store.Put(ctx, "chat", sess))

	got, err = store.Get(ctx, "chat")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StepWidth, got.Cursor)
	assert.Equal(t, 5.0, got.RoomLength)

	require.NoError(t, store.Clear(ctx, "chat"))
	got, err = store.Get(ctx, "chat")
	require.NoError(t, err)
	assert.Nil(t, got)
}
