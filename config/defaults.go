package config

import (
	"time"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmwave/common"
	"github.com/mensylisir/xmwave/connector"
	"github.com/mensylisir/xmwave/logger"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultKeepAlive      = 15 * time.Second
	DefaultLogLevel       = "info"
	DefaultKnownHosts     = "strict"
)

// SetDefaults fills unset fields. Port and user stay empty so that the ssh config
// file can still supply them.
func SetDefaults(cfg *Config) {
	if cfg.SSH.ConnectTimeout == 0 {
		cfg.SSH.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.SSH.KeepAlive == 0 {
		cfg.SSH.KeepAlive = DefaultKeepAlive
	}
	if cfg.SSH.KnownHosts == "" {
		cfg.SSH.KnownHosts = DefaultKnownHosts
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if b := cfg.SSH.Bastion; b != nil && b.Port == 0 {
		b.Port = common.DefaultSSHPort
	}
}

// Validate checks values that would otherwise only fail at connect time.
func Validate(cfg *Config) error {
	if cfg.SSH.Port < 0 || cfg.SSH.Port > 65535 {
		return errors.Errorf("ssh.port %d is out of range", cfg.SSH.Port)
	}
	if cfg.SSH.ConnectTimeout < 0 {
		return errors.Errorf("ssh.connectTimeout must not be negative, got %s", cfg.SSH.ConnectTimeout)
	}
	if cfg.SSH.KeepAlive < 0 {
		return errors.Errorf("ssh.keepAlive must not be negative, got %s", cfg.SSH.KeepAlive)
	}
	if _, err := connector.ParseKnownHostsPolicy(cfg.SSH.KnownHosts); err != nil {
		return errors.Wrap(err, "ssh.knownHosts")
	}
	if b := cfg.SSH.Bastion; b != nil {
		if b.Host == "" {
			return errors.New("ssh.bastion.host is required when a bastion is configured")
		}
		if b.Port < 1 || b.Port > 65535 {
			return errors.Errorf("ssh.bastion.port %d is out of range", b.Port)
		}
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	SetDefaults(cfg)
	return cfg
}
