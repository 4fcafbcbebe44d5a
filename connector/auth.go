package connector

import (
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// ErrNoAuthMethod is returned when no key, agent identity or password is available.
var ErrNoAuthMethod = errors.New("no non-interactive authentication method available")

type authenticator struct {
	methods   []ssh.AuthMethod
	agentConn net.Conn
}

func (a *authenticator) close() error {
	if a.agentConn == nil {
		return nil
	}
	err := a.agentConn.Close()
	a.agentConn = nil
	return err
}

// newAuthenticator collects every usable signer into one publickey method, since the
// client only tries each method name once. Passphrase-protected key files are skipped.
func newAuthenticator(cfg Config, t Target, log *logrus.Entry) (*authenticator, error) {
	a := &authenticator{}
	var signers []ssh.Signer

	if cfg.AgentSocket != "" {
		addr, explicit := agentAddress(cfg.AgentSocket)
		if addr != "" {
			conn, err := net.Dial("unix", addr)
			switch {
			case err != nil && explicit:
				return nil, errors.Wrapf(err, "could not open SSH agent socket %q", addr)
			case err != nil:
				log.Debugf("ssh agent at %s is unavailable: %v", addr, err)
			default:
				agentSigners, err := agent.NewClient(conn).Signers()
				if err != nil {
					_ = conn.Close()
					return nil, errors.Wrap(err, "error when creating signer for SSH agent")
				}
				a.agentConn = conn
				signers = append(signers, agentSigners...)
			}
		}
	}

	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey([]byte(cfg.PrivateKey))
		if err != nil {
			_ = a.close()
			return nil, errors.Wrap(err, "the given SSH key could not be parsed")
		}
		signers = append(signers, signer)
	}

	for _, path := range cfg.KeyFiles {
		signer, err := readKeyFile(path, log)
		if err != nil {
			_ = a.close()
			return nil, err
		}
		if signer != nil {
			signers = append(signers, signer)
		}
	}

	for _, path := range t.IdentityFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		signer, err := readKeyFile(path, log)
		if err != nil {
			log.Debugf("skipping identity %s: %v", path, err)
			continue
		}
		if signer != nil {
			signers = append(signers, signer)
		}
	}

	if len(signers) > 0 {
		a.methods = append(a.methods, ssh.PublicKeys(signers...))
	}
	if len(cfg.Password) > 0 {
		a.methods = append(a.methods, ssh.Password(cfg.Password))
	}
	if len(a.methods) == 0 {
		_ = a.close()
		return nil, ErrNoAuthMethod
	}
	return a, nil
}

// agentAddress resolves the "env:NAME" form. explicit is false for the implicit
// default, whose absence is not an error.
func agentAddress(socket string) (addr string, explicit bool) {
	if socket == defaultAgentSocket {
		return os.Getenv(strings.TrimPrefix(socket, socketEnvPrefix)), false
	}
	if strings.HasPrefix(socket, socketEnvPrefix) {
		return os.Getenv(strings.TrimPrefix(socket, socketEnvPrefix)), true
	}
	return socket, true
}

func readKeyFile(path string, log *logrus.Entry) (ssh.Signer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read keyfile %q", path)
	}
	signer, err := ssh.ParsePrivateKey(content)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			log.Debugf("skipping passphrase protected key %s", path)
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to parse keyfile %q", path)
	}
	return signer, nil
}
