// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/fgeck/wakehub/internal/services/probe"
	"github.com/fgeck/wakehub/internal/services/wol"
	"github.com/spf13/viper"
)

// Defaults applied when a setting is omitted.
const (
	DefaultListen         = ":5000"
	DefaultPollInterval   = 10 * time.Second
	DefaultWakeSettle     = 5 * time.Second
	DefaultShutdownSettle = 5 * time.Second
	DefaultCommandTimeout = 5 * time.Second
	DefaultProbeTimeout   = 2 * time.Second
	DefaultShutdownUser   = "user"
	DefaultSSHPort        = 22
)

// hostEntry is a single item of the hosts list as written in the file.
type hostEntry struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	MAC      string `mapstructure:"mac"`
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	OS       string `mapstructure:"os"`
}

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.AppConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.AppConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.AppConfig, error) {
	cfg := &models.AppConfig{}

	cfg.Server = models.ServerConfig{
		Listen: p.v.GetString("server.listen"),
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}

	// Parse timing, every value falls back to its default.
	cfg.Timing = models.TimingConfig{
		PollInterval:   p.duration("timing.poll_interval", DefaultPollInterval),
		WakeSettle:     p.duration("timing.wake_settle", DefaultWakeSettle),
		ShutdownSettle: p.duration("timing.shutdown_settle", DefaultShutdownSettle),
		CommandTimeout: p.duration("timing.command_timeout", DefaultCommandTimeout),
		ProbeTimeout:   p.duration("timing.probe_timeout", DefaultProbeTimeout),
	}

	cfg.Probe = models.ProbeConfig{
		Method:     p.v.GetString("probe.method"),
		Privileged: p.v.GetBool("probe.privileged"),
	}
	if cfg.Probe.Method == "" {
		cfg.Probe.Method = models.ProbeMethodExec
	}

	cfg.WOL = models.WOLConfig{
		BroadcastAddress: p.v.GetString("wol.broadcast_address"),
	}
	if cfg.WOL.BroadcastAddress == "" {
		cfg.WOL.BroadcastAddress = wol.DefaultBroadcastAddress
	}

	cfg.Shutdown = models.ShutdownConfig{
		Strategy:   p.v.GetString("shutdown.strategy"),
		Username:   p.expandEnv(p.v.GetString("shutdown.username")),
		Password:   p.expandEnv(p.v.GetString("shutdown.password")),
		SSHPort:    p.v.GetInt("shutdown.ssh_port"),
		KeyPath:    p.expandEnv(p.v.GetString("shutdown.key_path")),
		KnownHosts: p.expandEnv(p.v.GetString("shutdown.known_hosts")),
		UseAgent:   true,
	}
	if p.v.IsSet("shutdown.use_agent") {
		cfg.Shutdown.UseAgent = p.v.GetBool("shutdown.use_agent")
	}
	if cfg.Shutdown.Strategy == "" {
		cfg.Shutdown.Strategy = models.StrategyAuto
	}
	if cfg.Shutdown.Username == "" {
		cfg.Shutdown.Username = DefaultShutdownUser
	}
	if cfg.Shutdown.SSHPort == 0 {
		cfg.Shutdown.SSHPort = DefaultSSHPort
	}

	// Parse hosts (required).
	var entries []hostEntry
	if err := p.v.UnmarshalKey("hosts", &entries); err != nil {
		return nil, fmt.Errorf("parsing hosts: %w", err)
	}

	for i, e := range entries {
		host, err := p.buildHost(e, cfg.Shutdown)
		if err != nil {
			return nil, fmt.Errorf("hosts[%d]: %w", i, err)
		}
		cfg.Hosts = append(cfg.Hosts, host)
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (p *Parser) buildHost(e hostEntry, defaults models.ShutdownConfig) (models.Host, error) {
	if e.ID == "" {
		return models.Host{}, fmt.Errorf("id is required")
	}

	mac, err := wol.NormalizeMAC(e.MAC)
	if err != nil {
		return models.Host{}, fmt.Errorf("host %q: %w", e.ID, err)
	}

	host := models.Host{
		ID:      e.ID,
		Name:    e.Name,
		MAC:     mac,
		Address: e.Address,
		OS:      strings.ToLower(e.OS),
		Credentials: models.Credentials{
			Username: p.expandEnv(e.Username),
			Secret:   p.expandEnv(e.Password),
		},
	}

	if host.Name == "" {
		host.Name = host.ID
	}
	if host.OS == "" {
		host.OS = models.OSLinux
	}
	if host.Credentials.Username == "" {
		host.Credentials.Username = defaults.Username
	}
	if host.Credentials.Secret == "" {
		host.Credentials.Secret = defaults.Password
	}

	return host, nil
}

func (p *Parser) duration(key string, def time.Duration) time.Duration {
	if !p.v.IsSet(key) {
		return def
	}
	return p.v.GetDuration(key)
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
//
//nolint:gocyclo // one check per field
func Validate(cfg *models.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if len(cfg.Hosts) == 0 {
		return fmt.Errorf("at least one host is required")
	}

	seen := make(map[string]bool, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		if h.ID == "" {
			return fmt.Errorf("host id is required")
		}
		if seen[h.ID] {
			return fmt.Errorf("duplicate host id %q", h.ID)
		}
		seen[h.ID] = true

		if _, err := wol.ParseMAC(h.MAC); err != nil {
			return fmt.Errorf("host %q: %w", h.ID, err)
		}
		if err := probe.ValidateAddress(h.Address); err != nil {
			return fmt.Errorf("host %q: %w", h.ID, err)
		}
		if h.OS != models.OSLinux && h.OS != models.OSWindows {
			return fmt.Errorf("host %q: os must be one of: linux, windows", h.ID)
		}
	}

	validMethods := map[string]bool{models.ProbeMethodExec: true, models.ProbeMethodICMP: true}
	if !validMethods[cfg.Probe.Method] {
		return fmt.Errorf("probe.method must be one of: exec, icmp")
	}

	validStrategies := map[string]bool{
		models.StrategyAuto:    true,
		models.StrategyWindows: true,
		models.StrategySSH:     true,
	}
	if !validStrategies[cfg.Shutdown.Strategy] {
		return fmt.Errorf("shutdown.strategy must be one of: auto, windows, ssh")
	}

	if cfg.Shutdown.SSHPort < 1 || cfg.Shutdown.SSHPort > 65535 {
		return fmt.Errorf("shutdown.ssh_port must be between 1 and 65535")
	}

	durations := map[string]time.Duration{
		"timing.poll_interval":   cfg.Timing.PollInterval,
		"timing.command_timeout": cfg.Timing.CommandTimeout,
		"timing.probe_timeout":   cfg.Timing.ProbeTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if cfg.Timing.WakeSettle < 0 || cfg.Timing.ShutdownSettle < 0 {
		return fmt.Errorf("settle intervals must not be negative")
	}

	return nil
}
