package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"sftpush/pkg/logger"
)

const (
	DefaultPort              = 22
	DefaultConnectionTimeout = 30 * time.Second

	puttyKeyMarker = "PuTTY-User-Key-File"
)

// ConnectionParameters describe one remote session. With PrivateKeyPath set, Password is
// used as the key passphrase.
type ConnectionParameters struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string
	Timeout        time.Duration
}

func (p ConnectionParameters) Address() string {
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

func (p ConnectionParameters) UsesPrivateKey() bool {
	return p.PrivateKeyPath != ""
}

// Validate checks that either the password or the key-file credential set is complete.
func (p ConnectionParameters) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(p.Username) == "" {
		missing = append(missing, "username")
	}
	if p.Password == "" {
		if p.UsesPrivateKey() {
			missing = append(missing, "password (key passphrase)")
		} else {
			missing = append(missing, "password")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConnectivityConfiguration, strings.Join(missing, ", "))
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrConnectivityConfiguration, p.Port)
	}
	return nil
}

// Connector establishes the single remote session used for a whole invocation.
type Connector struct {
	params ConnectionParameters
	policy RetryPolicy
	logger *logger.Logger
	dial   DialFunc
}

func NewConnector(params ConnectionParameters, policy RetryPolicy, log *logger.Logger) *Connector {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Connector{
		params: params,
		policy: policy,
		logger: log,
		dial:   SSHDialContext,
	}
}

func (c *Connector) Connect(ctx context.Context) (*SFTPBackend, error) {
	if err := c.params.Validate(); err != nil {
		return nil, err
	}

	sshConfig, err := c.createSSHConfig()
	if err != nil {
		return nil, err
	}

	addr := c.params.Address()
	c.logger.Info("connecting", map[string]any{
		"addr":     addr,
		"username": c.params.Username,
		"auth":     c.authKind(),
	})

	var backend *SFTPBackend
	err = Retry(ctx, c.policy, c.logger, func(ctx context.Context) error {
		conn, err := c.dial(ctx, "tcp", addr, sshConfig)
		if err != nil {
			return fmt.Errorf("dial ssh: %w", err)
		}

		client, err := sftp.NewClient(conn)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("initialize sftp subsystem: %w", err)
		}

		backend = NewSFTPBackend(client, conn)
		return nil
	})
	if err != nil {
		return nil, &ConnectionError{Host: c.params.Host, Port: c.params.Port, Cause: err}
	}

	c.logger.Info("connected", map[string]any{"addr": addr})
	return backend, nil
}

func (c *Connector) authKind() string {
	if c.params.UsesPrivateKey() {
		return "private_key"
	}
	return "password"
}

func (c *Connector) createSSHConfig() (*ssh.ClientConfig, error) {
	timeout := c.params.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}

	sshConfig := &ssh.ClientConfig{
		User:            c.params.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	if c.params.UsesPrivateKey() {
		signer, err := loadPrivateKey(c.params.PrivateKeyPath, c.params.Password)
		if err != nil {
			return nil, err
		}
		sshConfig.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
		return sshConfig, nil
	}

	password := c.params.Password
	sshConfig.Auth = []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	}
	return sshConfig, nil
}

func loadPrivateKey(keyPath, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: private key %s is not readable: %v", ErrConnectivityConfiguration, keyPath, err)
	}

	if bytes.Contains(data, []byte(puttyKeyMarker)) {
		return nil, fmt.Errorf("%w (%s)", ErrUnsupportedKeyFormat, keyPath)
	}

	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key %s: %v", ErrConnectivityConfiguration, keyPath, err)
	}
	return signer, nil
}
