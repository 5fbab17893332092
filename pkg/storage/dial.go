package storage

import (
	"context"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// DialFunc opens an ssh client connection to addr.
type DialFunc func(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

// SSHDialContext is ssh.Dial with cancellation covering both the TCP dial and the handshake.
func SSHDialContext(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(config.Timeout))
	}

	type result struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan result)
	go func() {
		var client *ssh.Client
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		if err == nil {
			_ = conn.SetDeadline(time.Time{})
			client = ssh.NewClient(c, chans, reqs)
		} else {
			_ = conn.Close()
		}
		select {
		case ch <- result{client, err}:
		case <-ctx.Done():
			if client != nil {
				_ = client.Close()
			}
		}
	}()

	select {
	case res := <-ch:
		return res.client, res.err
	case <-ctx.Done():
		_ = conn.Close()
		return nil, context.Cause(ctx)
	}
}
