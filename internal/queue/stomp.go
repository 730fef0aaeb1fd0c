package queue

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/go-stomp/stomp/v3"
)

// StompTransport sends messages to an ActiveMQ broker over STOMP.
type StompTransport struct {
	mu   sync.Mutex
	conn *stomp.Conn
}

// DialStomp opens a TCP connection to cfg.Address and performs the STOMP handshake.
func DialStomp(ctx context.Context, cfg Config) (*StompTransport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	netConn, err := d.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host("/"),
	}
	if cfg.Username != "" {
		opts = append(opts, stomp.ConnOpt.Login(cfg.Username, cfg.Password))
	}

	conn, err := stomp.Connect(netConn, opts...)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return &StompTransport{conn: conn}, nil
}

// Publish sends body as a persistent JSON message and waits for the broker's receipt.
// If ctx ends first the call returns ctx.Err(); the send may still complete.
func (t *StompTransport) Publish(ctx context.Context, destination string, body []byte, priority int) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Send(destination, "application/json", body,
			stomp.SendOpt.Receipt,
			stomp.SendOpt.Header("persistent", "true"),
			stomp.SendOpt.Header("priority", strconv.Itoa(priority)),
		)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send message to %s: %w", destination, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send to %s abandoned: %w", destination, ctx.Err())
	}
}

// Close disconnects from the broker. Safe to call more than once.
func (t *StompTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Disconnect()
	t.conn = nil
	return err
}
