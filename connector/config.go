package connector

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/pkg/errors"

	"github.com/mensylisir/xmwave/common"
	"github.com/mensylisir/xmwave/file"
	"github.com/mensylisir/xmwave/logger"
	"github.com/mensylisir/xmwave/util"
)

// KnownHostsPolicy selects how unknown or changed host keys are treated.
type KnownHostsPolicy int

const (
	// KnownHostsStrict rejects any host whose key is not already in known_hosts.
	KnownHostsStrict KnownHostsPolicy = iota
	// KnownHostsAcceptNew records keys of unknown hosts and rejects changed keys.
	KnownHostsAcceptNew
	// KnownHostsOff accepts any host key.
	KnownHostsOff
)

func (p KnownHostsPolicy) String() string {
	switch p {
	case KnownHostsStrict:
		return "strict"
	case KnownHostsAcceptNew:
		return "accept-new"
	case KnownHostsOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseKnownHostsPolicy accepts the names printed by KnownHostsPolicy.String.
// The empty string means strict.
func ParseKnownHostsPolicy(s string) (KnownHostsPolicy, error) {
	switch strings.ToLower(s) {
	case "", "strict", "yes":
		return KnownHostsStrict, nil
	case "accept-new":
		return KnownHostsAcceptNew, nil
	case "off", "no":
		return KnownHostsOff, nil
	default:
		return KnownHostsStrict, errors.Errorf("unknown known hosts policy %q", s)
	}
}

// Config carries caller-supplied SSH settings. The zero value connects with strict
// host key checking, the ssh agent from $SSH_AUTH_SOCK and the default identity files.
type Config struct {
	User string
	Port int
	// Password is sent as-is; nothing ever prompts for it.
	Password string
	// PrivateKey holds PEM key material.
	PrivateKey string
	// KeyFiles are read in addition to IdentityFile entries of the ssh config.
	KeyFiles []string
	// AgentSocket is a socket path or "env:NAME". Empty means env:SSH_AUTH_SOCK when that is set.
	AgentSocket string
	KnownHosts  KnownHostsPolicy
	// KnownHostsFiles defaults to ~/.ssh/known_hosts.
	KnownHostsFiles []string
	// SSHConfigFile defaults to ~/.ssh/config. "none" disables ssh config lookups.
	SSHConfigFile string
	Timeout       time.Duration
	// KeepAlive is the interval of keepalive@openssh.com requests. 0 disables them.
	KeepAlive   time.Duration
	Bastion     string
	BastionPort int
	BastionUser string
}

const (
	socketEnvPrefix    = "env:"
	defaultAgentSocket = socketEnvPrefix + "SSH_AUTH_SOCK"
	noSSHConfig        = "none"
	defaultTimeout     = 30 * time.Second
)

var defaultIdentityFiles = []string{"~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa"}

// Target is a destination resolved against a Config and the ssh config file.
type Target struct {
	// Host is the host as written in the destination. It may be an ssh config alias.
	Host string
	// User and Port are the explicitly requested values, destination over Config.
	// They are empty when neither gave one.
	User string
	Port int

	DialHost      string
	DialUser      string
	DialPort      int
	IdentityFiles []string
}

// Address returns DialHost:DialPort.
func (t Target) Address() string {
	return joinAddr(t.DialHost, t.DialPort)
}

// Resolve merges destination with the Config. Precedence for every dial parameter is
// destination, then Config, then the ssh config file, then defaults.
func (c Config) Resolve(destination string) (Target, error) {
	d, err := ParseDestination(destination)
	if err != nil {
		return Target{}, err
	}
	if c.Port < 0 || c.Port > 65535 {
		return Target{}, errors.Errorf("invalid port %d", c.Port)
	}

	t := Target{
		Host: d.Host,
		User: util.FirstNonEmpty(d.User, c.User),
		Port: d.Port,
	}
	if t.Port == 0 {
		t.Port = c.Port
	}

	sc, err := c.loadSSHConfig()
	if err != nil {
		return Target{}, err
	}

	t.DialHost = util.FirstNonEmpty(sc.get(d.Host, "HostName"), d.Host)
	t.DialUser = util.FirstNonEmpty(t.User, sc.get(d.Host, "User"), util.CurrentUsername())
	t.DialPort = t.Port
	if t.DialPort == 0 {
		if p := sc.get(d.Host, "Port"); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil || port < 1 || port > 65535 {
				return Target{}, errors.Errorf("invalid Port %q in ssh config for %s", p, d.Host)
			}
			t.DialPort = port
		} else {
			t.DialPort = common.DefaultSSHPort
		}
	}

	identities := defaultIdentityFiles
	if id := sc.get(d.Host, "IdentityFile"); id != "" {
		identities = []string{id}
	}
	for _, id := range identities {
		expanded, err := util.ExpandHome(id)
		if err != nil {
			return Target{}, err
		}
		t.IdentityFiles = append(t.IdentityFiles, expanded)
	}
	return t, nil
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.AgentSocket == "" {
		c.AgentSocket = defaultAgentSocket
	}
	if c.Bastion != "" {
		if c.BastionPort <= 0 {
			c.BastionPort = common.DefaultSSHPort
		}
		if c.BastionUser == "" {
			c.BastionUser = c.User
		}
	}
	return c
}

type sshConfigFile struct {
	cfg *ssh_config.Config
}

func (c Config) loadSSHConfig() (sshConfigFile, error) {
	path := c.SSHConfigFile
	if path == noSSHConfig {
		return sshConfigFile{}, nil
	}
	explicit := path != ""
	if !explicit {
		path = "~/.ssh/config"
	}
	path, err := util.ExpandHome(path)
	if err != nil {
		return sshConfigFile{}, err
	}

	exists, err := file.PathExists(path)
	if err != nil {
		return sshConfigFile{}, errors.Wrapf(err, "failed to stat ssh config %s", path)
	}
	if !exists {
		if explicit {
			return sshConfigFile{}, errors.Errorf("ssh config %s does not exist", path)
		}
		return sshConfigFile{}, nil
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return sshConfigFile{}, errors.Wrapf(err, "failed to open ssh config %s", path)
	}
	defer f.Close()
	cfg, err := ssh_config.Decode(f)
	if err != nil {
		if explicit {
			return sshConfigFile{}, errors.Wrapf(err, "failed to parse ssh config %s", path)
		}
		logger.Log.Debugf("ignoring unparsable ssh config %s: %v", path, err)
		return sshConfigFile{}, nil
	}
	return sshConfigFile{cfg: cfg}, nil
}

func (s sshConfigFile) get(alias, key string) string {
	if s.cfg == nil {
		return ""
	}
	v, err := s.cfg.Get(alias, key)
	if err != nil {
		return ""
	}
	return v
}
