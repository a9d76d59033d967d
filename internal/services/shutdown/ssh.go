package shutdown

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSH authentication methods reported in results.
const (
	AuthPublicKey = "publickey"
	AuthPassword  = "password"
)

// Remote shutdown commands per target OS.
const (
	linuxShutdownCommand   = "sudo shutdown -h now"
	windowsShutdownCommand = "shutdown /s /t 0"
)

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	return s.session.CombinedOutput(cmd)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// SSHStrategy runs a privileged shutdown command over SSH.
type SSHStrategy struct {
	clientFactory ClientFactory
	cfg           models.ShutdownConfig
	timeout       time.Duration
	logger        zerolog.Logger
}

// NewSSH creates the SSH strategy.
func NewSSH(logger zerolog.Logger, cfg models.ShutdownConfig, timeout time.Duration) *SSHStrategy {
	return NewSSHWithClientFactory(logger, cfg, timeout, &DefaultClientFactory{})
}

// NewSSHWithClientFactory creates the SSH strategy with a custom client factory (for testing).
func NewSSHWithClientFactory(logger zerolog.Logger, cfg models.ShutdownConfig, timeout time.Duration, factory ClientFactory) *SSHStrategy {
	if cfg.SSHPort == 0 {
		cfg.SSHPort = 22
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SSHStrategy{
		clientFactory: factory,
		cfg:           cfg,
		timeout:       timeout,
		logger:        logger,
	}
}

// Name implements Strategy.
func (s *SSHStrategy) Name() string {
	return models.StrategySSH
}

// buildConfig returns the client configuration for host, the authentication
// method used and a cleanup func for an ssh-agent connection. Hosts with a
// secret authenticate with it; all others use keys only.
func (s *SSHStrategy) buildConfig(host models.Host) (*ssh.ClientConfig, string, func(), error) {
	cleanup := func() {}

	if host.Credentials.Username == "" {
		return nil, "", cleanup, fmt.Errorf("no SSH username configured for %s", host.ID)
	}

	hostKeyCallback, err := s.hostKeyCallback()
	if err != nil {
		return nil, "", cleanup, err
	}

	var auth []ssh.AuthMethod
	method := AuthPublicKey

	if host.Credentials.HasSecret() {
		method = AuthPassword
		secret := host.Credentials.Secret
		auth = []ssh.AuthMethod{
			ssh.Password(secret),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = secret
				}
				return answers, nil
			}),
		}
	} else {
		signers, err := s.loadSigners()
		if err != nil {
			return nil, "", cleanup, err
		}
		if len(signers) > 0 {
			auth = append(auth, ssh.PublicKeys(signers...))
		}

		if s.cfg.UseAgent {
			if agentAuth, closeAgent, ok := s.agentAuth(); ok {
				auth = append(auth, agentAuth)
				cleanup = closeAgent
			}
		}

		if len(auth) == 0 {
			return nil, "", cleanup, ErrNoAuth
		}
	}

	return &ssh.ClientConfig{
		User:            host.Credentials.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.timeout,
	}, method, cleanup, nil
}

// loadSigners reads the configured key, or the default OpenSSH identities
// when no key path is configured. Missing default identities are skipped.
func (s *SSHStrategy) loadSigners() ([]ssh.Signer, error) {
	if s.cfg.KeyPath != "" {
		key, err := os.ReadFile(expandHome(s.cfg.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", s.cfg.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return []ssh.Signer{signer}, nil
	}

	var signers []ssh.Signer
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		key, err := os.ReadFile(expandHome(filepath.Join("~", ".ssh", name)))
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			s.logger.Debug().Err(err).Str("key", name).Msg("skipping unusable identity")
			continue
		}
		signers = append(signers, signer)
	}
	return signers, nil
}

func (s *SSHStrategy) agentAuth() (ssh.AuthMethod, func(), bool) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil, false
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		s.logger.Debug().Err(err).Msg("ssh-agent unavailable")
		return nil, nil, false
	}
	client := agent.NewClient(conn)
	return ssh.PublicKeysCallback(client.Signers), func() { _ = conn.Close() }, true
}

func (s *SSHStrategy) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.cfg.KnownHosts == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // homelab environment, opt-in checking via known_hosts
	}
	callback, err := knownhosts.New(expandHome(s.cfg.KnownHosts))
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return callback, nil
}

// Shutdown initiates an immediate system shutdown via SSH.
func (s *SSHStrategy) Shutdown(ctx context.Context, host models.Host) *models.ShutdownResult {
	result := &models.ShutdownResult{Strategy: s.Name()}

	sshConfig, method, cleanup, err := s.buildConfig(host)
	defer cleanup()
	if err != nil {
		result.Error = err
		return result
	}
	result.AuthMethod = method

	s.logger.Debug().
		Str("address", host.Address).
		Int("port", s.cfg.SSHPort).
		Str("user", host.Credentials.Username).
		Str("auth", method).
		Msg("connecting over SSH")

	addr := net.JoinHostPort(host.Address, strconv.Itoa(s.cfg.SSHPort))

	client, err := s.dial(ctx, addr, sshConfig)
	if err != nil {
		result.Error = err
		return result
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		return result
	}
	defer func() { _ = session.Close() }()

	cmd := shutdownCommand(host.OS)
	s.logger.Debug().Str("command", cmd).Msg("executing shutdown command")

	type runResult struct {
		output []byte
		err    error
	}
	runChan := make(chan runResult, 1)
	go func() {
		output, err := session.CombinedOutput(cmd)
		runChan <- runResult{output, err}
	}()

	select {
	case <-ctx.Done():
		// Closing the client unblocks the session goroutine.
		_ = client.Close()
		result.CommandRun = true
		result.Error = fmt.Errorf("shutdown command timed out: %w", ctx.Err())
		return result
	case res := <-runChan:
		result.Output = string(res.output)
		result.CommandRun = true
		err = res.err
	}

	var exitMissing *ssh.ExitMissingError
	switch {
	case err == nil:
		result.Success = true
	case errors.As(err, &exitMissing):
		// The host dropped the connection while powering off.
		s.logger.Debug().Err(err).Msg("connection closed without exit status")
		result.Success = true
	default:
		result.Error = fmt.Errorf("shutdown command failed: %w", err)
	}

	return result
}

// dial connects in the background so that ctx bounds the SSH handshake too.
func (s *SSHStrategy) dial(ctx context.Context, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	type dialResult struct {
		client SSHClient
		err    error
	}
	clientChan := make(chan dialResult)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, config)
		select {
		case clientChan <- dialResult{client, err}:
		case <-ctx.Done():
			if client != nil {
				_ = client.Close()
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect: %w", res.err)
		}
		return res.client, nil
	}
}

func shutdownCommand(targetOS string) string {
	if targetOS == models.OSWindows {
		return windowsShutdownCommand
	}
	return linuxShutdownCommand
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
