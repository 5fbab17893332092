package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrConnectivityConfiguration reports incomplete or unusable credentials, detected
	// before any network operation.
	ErrConnectivityConfiguration = errors.New("invalid connectivity configuration")

	ErrUnsupportedKeyFormat = errors.New("unsupported private key format: PuTTY keys must be converted " +
		"to OpenSSH format first (puttygen key.ppk -O private-openssh -o key)")
)

// ConnectionError wraps any failure to establish the remote session.
type ConnectionError struct {
	Host  string
	Port  int
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s:%d: %v", e.Host, e.Port, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

var transportErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
	syscall.ETIMEDOUT,
}

// IsTransportError reports whether err is a socket-level connectivity failure as opposed to
// an authentication or protocol rejection.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	for _, errno := range transportErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
