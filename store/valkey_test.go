package store

import (
	"context"
	"errors"
	"testing"
	"time"

	appconfig "accounts-service/config"
	"accounts-service/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) (*ValkeyStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	store := NewValkeyStore(appconfig.ValkeyConfig{Addr: server.Addr(), MaxIdle: 2})
	t.Cleanup(func() { _ = store.Close() })
	return store, server
}

func TestValkeyStoreSetAndGet(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.Set(ctx, "user_profile_johndoe", []byte(`{"username":"johndoe"}`), 300*time.Second))

	value, found, err := store.Get(ctx, "user_profile_johndoe")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"username":"johndoe"}`, string(value))
	assert.Equal(t, 300*time.Second, server.TTL("user_profile_johndoe"))
}

func TestValkeyStoreGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	value, found, err := store.Get(context.Background(), "user_profile_ghost")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestValkeyStoreEntryExpires(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	server.FastForward(time.Minute + time.Second)

	_, found, err := store.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestValkeyStoreSetRejectsNonPositiveTTL(t *testing.T) {
	store, server := newTestStore(t)

	assert.Error(t, store.Set(context.Background(), "k", []byte("v"), 0))
	assert.False(t, server.Exists("k"))
}

func TestValkeyStoreSetIfAbsent(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	stored, err := store.SetIfAbsent(ctx, "user_profile_johndoe", []byte("old"), time.Minute)
	assert.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, time.Minute, server.TTL("user_profile_johndoe"))

	stored, err = store.SetIfAbsent(ctx, "user_profile_johndoe", []byte("new"), time.Minute)
	assert.NoError(t, err)
	assert.False(t, stored)
	value, _ := server.Get("user_profile_johndoe")
	assert.Equal(t, "old", value)

	_, err = store.SetIfAbsent(ctx, "k", []byte("v"), 0)
	assert.Error(t, err)
	assert.False(t, server.Exists("k"))
}

func TestValkeyStoreDelete(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, server.Set("k", "v"))
	assert.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, server.Exists("k"))
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestValkeyStorePrefix(t *testing.T) {
	server := miniredis.RunT(t)
	store := NewValkeyStore(appconfig.ValkeyConfig{Addr: server.Addr(), Prefix: "accounts"})
	defer store.Close()

	assert.NoError(t, store.Set(context.Background(), "user_profile_johndoe", []byte("v"), time.Minute))
	assert.True(t, server.Exists("accounts:user_profile_johndoe"))
	assert.Equal(t, "user_profile_johndoe", (&ValkeyStore{}).key("user_profile_johndoe"))
}

func TestValkeyStorePasswordAndDatabase(t *testing.T) {
	server := miniredis.RunT(t)
	server.RequireAuth("secret")
	store := NewValkeyStore(appconfig.ValkeyConfig{Addr: server.Addr(), Password: "secret", DB: 3})
	defer store.Close()

	assert.NoError(t, store.Set(context.Background(), "k", []byte("v"), time.Minute))
	assert.True(t, server.DB(3).Exists("k"))
}

func TestValkeyStoreServerError(t *testing.T) {
	store, server := newTestStore(t)
	server.SetError("LOADING dataset in memory")

	_, _, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, models.ErrCacheUnavailable)

	err = store.Set(context.Background(), "k", []byte("v"), time.Minute)
	assert.ErrorIs(t, err, models.ErrCacheUnavailable)
}

func TestValkeyStoreDialError(t *testing.T) {
	original := dialContext
	dialContext = func(ctx context.Context, network, address string, options ...redis.DialOption) (redis.Conn, error) {
		return nil, errors.New("connection refused")
	}
	defer func() { dialContext = original }()

	store := NewValkeyStore(appconfig.ValkeyConfig{Addr: "localhost:1"})
	defer store.Close()

	assert.ErrorIs(t, store.Ping(context.Background()), models.ErrCacheUnavailable)
	_, _, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, models.ErrCacheUnavailable)
}

func TestValkeyStorePing(t *testing.T) {
	store, _ := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
