package queue

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/server"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTransport creates a transport connected to a miniredis instance.
func setupRedisTransport(t *testing.T) (*RedisTransport, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	tr, err := NewRedisTransport(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	return tr, mr
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Address: "activemq:61613"}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, TransportStomp, cfg.Transport)
	assert.Equal(t, "isis", cfg.Namespace)

	bad := cfg
	bad.Transport = "kafka"
	assert.ErrorContains(t, bad.Validate(), "unsupported queue transport")

	bad = cfg
	bad.Address = ""
	assert.ErrorContains(t, bad.Validate(), "address is required")

	bad = cfg
	bad.PublishTimeout = -1
	assert.ErrorContains(t, bad.Validate(), "publish_timeout")
}

func TestSchema(t *testing.T) {
	assert.Equal(t, "DataReady", DestinationName("/queue/DataReady"))
	assert.Equal(t, "Events", DestinationName("/topic/Events/"))
	assert.Equal(t, "autoreduce:isis:queue:DataReady:p1", QueueKey("isis", "/queue/DataReady", 1))
	assert.Equal(t, "autoreduce:isis:queue:DataReady:events", QueueEventsChannel("isis", "/queue/DataReady"))
}

func TestNewRedisTransport_RejectsEmptyNamespace(t *testing.T) {
	_, err := NewRedisTransport(&redis.Options{Addr: "localhost:6379"}, "")
	assert.ErrorContains(t, err, "namespace cannot be empty")
}

func TestRedisTransport_Publish(t *testing.T) {
	tr, mr := setupRedisTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Publish(ctx, "/queue/DataReady", []byte(`{"run_number":1}`), 1))
	require.NoError(t, tr.Publish(ctx, "/queue/DataReady", []byte(`{"run_number":2}`), 1))
	require.NoError(t, tr.Publish(ctx, "/queue/DataReady", []byte(`{"run_number":3}`), 4))

	p1, err := mr.List("autoreduce:test:queue:DataReady:p1")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"run_number":1}`, `{"run_number":2}`}, p1)

	p4, err := mr.List("autoreduce:test:queue:DataReady:p4")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"run_number":3}`}, p4)
}

func TestRedisTransport_AnnouncesMessages(t *testing.T) {
	tr, mr := setupRedisTransport(t)
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()}).Subscribe(ctx, QueueEventsChannel("test", "/queue/DataReady"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.Publish(ctx, "/queue/DataReady", []byte("{}"), 1))

	select {
	case msg := <-sub.Channel():
		var event queuedEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, "autoreduce:test:queue:DataReady:p1", event.Key)
		assert.Equal(t, 1, event.Priority)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for queue event")
	}
}

func TestDialRedis(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := Config{Transport: TransportRedis, Address: "redis://" + mr.Addr()}
		cfg.ApplyDefaults()

		tr, err := Dial(context.Background(), cfg)
		require.NoError(t, err)
		defer tr.Close()
		assert.IsType(t, &RedisTransport{}, tr)
	})

	t.Run("invalid url", func(t *testing.T) {
		cfg := Config{Transport: TransportRedis, Address: "not-a-url"}
		cfg.ApplyDefaults()
		_, err := Dial(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrConnect)
	})

	t.Run("server down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := Config{Transport: TransportRedis, Address: "redis://" + addr, ConnectTimeout: time.Second}
		cfg.ApplyDefaults()
		_, err := Dial(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrConnect)
	})
}

// startStompServer runs an in-process STOMP broker on a random port.
func startStompServer(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go server.Serve(l)
	return l.Addr().String()
}

func TestStompTransport_Publish(t *testing.T) {
	addr := startStompServer(t)
	ctx := context.Background()

	consumer, err := stomp.Dial("tcp", addr)
	require.NoError(t, err)
	defer consumer.Disconnect()
	sub, err := consumer.Subscribe("/queue/DataReady", stomp.AckAuto)
	require.NoError(t, err)

	cfg := Config{Address: addr}
	cfg.ApplyDefaults()
	tr, err := Dial(ctx, cfg)
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.Publish(ctx, "/queue/DataReady", []byte(`{"run_number":25581}`), 1))

	select {
	case msg := <-sub.C:
		require.NoError(t, msg.Err)
		assert.Equal(t, `{"run_number":25581}`, string(msg.Body))
		assert.Equal(t, "/queue/DataReady", msg.Destination)
		assert.Equal(t, "1", msg.Header.Get("priority"))
		assert.Equal(t, "true", msg.Header.Get("persistent"))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for STOMP message")
	}
}

func TestStompTransport_Closed(t *testing.T) {
	addr := startStompServer(t)
	cfg := Config{Address: addr}
	cfg.ApplyDefaults()

	tr, err := DialStomp(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())

	err = tr.Publish(context.Background(), "/queue/DataReady", []byte("{}"), 1)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDialStomp_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	cfg := Config{Address: addr, ConnectTimeout: time.Second}
	cfg.ApplyDefaults()
	_, err = DialStomp(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrConnect)
}
