package connector

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/mensylisir/xmwave/runner"
)

var _ runner.Process = (*RemoteProcess)(nil)

// RemoteProcess is a command running on its own SSH channel.
type RemoteProcess struct {
	sess   *ssh.Session
	stdout io.Reader
	stderr io.Reader

	closeOnce sync.Once
	closeErr  error
}

func (p *RemoteProcess) Stdout() io.Reader { return p.stdout }
func (p *RemoteProcess) Stderr() io.Reader { return p.stderr }

// Wait returns the remote exit status. A command killed by a signal, or a channel
// closed without any status, has no exit code and yields runner.ErrMissingExitCode.
func (p *RemoteProcess) Wait() (int, error) {
	err := p.sess.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Signal() != "" {
			return -1, errors.Wrapf(runner.ErrMissingExitCode, "terminated by signal %s", exitErr.Signal())
		}
		return exitErr.ExitStatus(), nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return -1, errors.Wrap(runner.ErrMissingExitCode, "channel closed without exit status")
	}
	return -1, err
}

// Kill asks the server to deliver SIGKILL and closes the channel, which unblocks Wait
// and both readers even when the server ignores signal requests.
func (p *RemoteProcess) Kill() error {
	_ = p.sess.Signal(ssh.SIGKILL)
	return p.Close()
}

func (p *RemoteProcess) Close() error {
	p.closeOnce.Do(func() {
		err := p.sess.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			p.closeErr = err
		}
	})
	return p.closeErr
}
