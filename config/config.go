package config

import (
	"time"

	"github.com/mensylisir/xmwave/connector"
	"github.com/mensylisir/xmwave/util"
)

// Config is the top-level structure of the xmwave configuration file.
type Config struct {
	SSH SSHSpec `yaml:"ssh"`
	Log LogSpec `yaml:"log"`
}

// SSHSpec holds the connection settings shared by every destination.
type SSHSpec struct {
	User           string        `yaml:"user,omitempty"`
	Port           int           `yaml:"port,omitempty"`
	IdentityFiles  []string      `yaml:"identityFiles,omitempty"`
	AgentSocket    string        `yaml:"agentSocket,omitempty"`
	Password       string        `yaml:"password,omitempty"`
	KnownHosts     string        `yaml:"knownHosts,omitempty"` // strict, accept-new or off
	KnownHostsFile string        `yaml:"knownHostsFile,omitempty"`
	SSHConfigFile  string        `yaml:"sshConfigFile,omitempty"`
	ConnectTimeout time.Duration `yaml:"connectTimeout,omitempty"`
	KeepAlive      time.Duration `yaml:"keepAlive,omitempty"`
	Bastion        *BastionSpec  `yaml:"bastion,omitempty"`
}

// BastionSpec describes a jump host.
type BastionSpec struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port,omitempty"`
	User string `yaml:"user,omitempty"`
}

// LogSpec configures the global logger.
type LogSpec struct {
	Dir     string `yaml:"dir,omitempty"`
	Level   string `yaml:"level,omitempty"`
	Verbose bool   `yaml:"verbose,omitempty"`
}

// SSHConfig converts the ssh section to a connector.Config, expanding "~" in paths.
func (c *Config) SSHConfig() (connector.Config, error) {
	s := c.SSH
	policy, err := connector.ParseKnownHostsPolicy(s.KnownHosts)
	if err != nil {
		return connector.Config{}, err
	}
	out := connector.Config{
		User:        s.User,
		Port:        s.Port,
		Password:    s.Password,
		AgentSocket: s.AgentSocket,
		KnownHosts:  policy,
		Timeout:     s.ConnectTimeout,
		KeepAlive:   s.KeepAlive,
	}
	for _, f := range s.IdentityFiles {
		p, err := util.ExpandHome(f)
		if err != nil {
			return connector.Config{}, err
		}
		out.KeyFiles = append(out.KeyFiles, p)
	}
	if s.KnownHostsFile != "" {
		p, err := util.ExpandHome(s.KnownHostsFile)
		if err != nil {
			return connector.Config{}, err
		}
		out.KnownHostsFiles = []string{p}
	}
	if out.SSHConfigFile, err = util.ExpandHome(s.SSHConfigFile); err != nil {
		return connector.Config{}, err
	}
	if s.Bastion != nil {
		out.Bastion = s.Bastion.Host
		out.BastionPort = s.Bastion.Port
		out.BastionUser = s.Bastion.User
	}
	return out, nil
}
