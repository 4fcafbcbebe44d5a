package connector

import (
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/mensylisir/xmwave/common"
	"github.com/mensylisir/xmwave/file"
	"github.com/mensylisir/xmwave/util"
)

// hostKeyPolicy bundles the callback with the key algorithms already known for a host,
// so the server is asked for a key type we can actually verify.
type hostKeyPolicy struct {
	callback ssh.HostKeyCallback
	lookup   ssh.HostKeyCallback
}

func newHostKeyPolicy(cfg Config, log *logrus.Entry) (*hostKeyPolicy, error) {
	if cfg.KnownHosts == KnownHostsOff {
		log.Warn("host key checking is disabled")
		return &hostKeyPolicy{callback: ssh.InsecureIgnoreHostKey()}, nil
	}

	files := cfg.KnownHostsFiles
	if len(files) == 0 {
		files = []string{"~/.ssh/known_hosts"}
	}
	var existing []string
	for _, f := range files {
		path, err := util.ExpandHome(f)
		if err != nil {
			return nil, err
		}
		if cfg.KnownHosts == KnownHostsAcceptNew && len(existing) == 0 {
			if err := file.EnsureFile(path, common.FileMode0600); err != nil {
				return nil, err
			}
		}
		ok, err := file.PathExists(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stat known hosts file %s", path)
		}
		if ok {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil, errors.Errorf("no known hosts file found in %v, strict host key checking cannot verify any host", files)
	}

	cb, err := knownhosts.New(existing...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load known hosts")
	}
	policy := &hostKeyPolicy{callback: cb, lookup: cb}
	if cfg.KnownHosts == KnownHostsAcceptNew {
		policy.callback = acceptNew(cb, existing[0], log)
	}
	return policy, nil
}

func acceptNew(cb ssh.HostKeyCallback, path string, log *logrus.Entry) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := cb(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}
		if err := file.AppendLine(path, knownhosts.Line([]string{hostname}, key)); err != nil {
			return errors.Wrapf(err, "failed to record host key of %s", hostname)
		}
		log.Warnf("permanently added %s (%s) to %s", hostname, key.Type(), path)
		return nil
	}
}

// algorithms returns the host key algorithms recorded for address, or nil to let the
// server choose.
func (p *hostKeyPolicy) algorithms(address string) []string {
	if p.lookup == nil {
		return nil
	}
	err := p.lookup(address, &net.TCPAddr{IP: net.IPv4zero}, probeKey{})
	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) {
		return nil
	}
	seen := map[string]bool{}
	var algos []string
	add := func(a string) {
		if !seen[a] {
			seen[a] = true
			algos = append(algos, a)
		}
	}
	for _, known := range keyErr.Want {
		switch t := known.Key.Type(); t {
		case ssh.KeyAlgoRSA:
			add(ssh.KeyAlgoRSASHA512)
			add(ssh.KeyAlgoRSASHA256)
			add(t)
		default:
			add(t)
		}
	}
	return algos
}

// probeKey never matches a known_hosts entry, which makes the callback report
// every key it knows for the host.
type probeKey struct{}

func (probeKey) Type() string                        { return "xmwave-probe" }
func (probeKey) Marshal() []byte                     { return []byte("xmwave-probe") }
func (probeKey) Verify([]byte, *ssh.Signature) error { return errors.New("probe key cannot verify") }
