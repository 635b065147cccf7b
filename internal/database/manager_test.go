package database

import (
	"context"
	"net"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestManagerLifecycle(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	manager := NewManager(ManagerConfig{RedisURL: "redis://" + mini.Addr()}, zerolog.Nop())
	require.Equal(t, StateIdle, manager.State())
	require.Nil(t, manager.Redis(), "redis must not be exposed before init")

	require.NoError(t, manager.Init(context.Background()))
	require.True(t, manager.Ready())
	require.NotNil(t, manager.Redis())
	require.Nil(t, manager.NATS(), "nats disabled without url")

	client := manager.Redis()
	require.NoError(t, manager.Init(context.Background()))
	require.Same(t, client, manager.Redis(), "init is idempotent")

	require.NoError(t, manager.Close())
	require.Equal(t, StateClosed, manager.State())
	require.Nil(t, manager.Redis())
	require.ErrorIs(t, manager.Init(context.Background()), ErrManagerClosed)
	require.NoError(t, manager.Close())
}

func TestManagerWithoutBackends(t *testing.T) {
	manager := NewManager(ManagerConfig{}, zerolog.Nop())
	require.NoError(t, manager.Init(context.Background()))
	require.True(t, manager.Ready())
	require.Nil(t, manager.Redis())
	require.Nil(t, manager.NATS())
}

func TestManagerInitFailsAfterBoundedRetries(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	addr := mini.Addr()
	mini.Close()

	manager := NewManager(ManagerConfig{
		RedisURL:   "redis://" + addr,
		MaxRetries: 2,
		RetryWait:  10 * time.Millisecond,
	}, zerolog.Nop())

	start := time.Now()
	err = manager.Init(context.Background())
	require.Error(t, err)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Equal(t, StateIdle, manager.State())
}

func TestManagerInitFailsWhenNATSUnreachable(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	manager := NewManager(ManagerConfig{
		RedisURL:   "redis://" + mini.Addr(),
		NATSURL:    "nats://" + addr,
		MaxRetries: 2,
		RetryWait:  10 * time.Millisecond,
	}, zerolog.Nop())

	start := time.Now()
	err = manager.Init(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "nats")
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Equal(t, StateIdle, manager.State())
	require.Nil(t, manager.NATS())
}

func TestConnectNATSValidatesURL(t *testing.T) {
	_, err := ConnectNATS(context.Background(), "", 0, time.Millisecond)
	require.Error(t, err)
}

func TestConnectRedisValidatesURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "", 0, time.Millisecond)
	require.Error(t, err)

	_, err = ConnectRedis(context.Background(), "not-a-url", 0, time.Millisecond)
	require.Error(t, err)
}
