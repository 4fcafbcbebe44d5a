package connector

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/mensylisir/xmwave/common"
	"github.com/mensylisir/xmwave/logger"
	"github.com/mensylisir/xmwave/runner"
	"github.com/mensylisir/xmwave/util"
)

// ErrConnectionClosed is returned when a channel is requested on a closed Connection.
var ErrConnectionClosed = errors.New("ssh connection is closed")

var _ runner.Starter = (*Connection)(nil)

// Connection is one authenticated SSH client. Every command and subsystem opens its
// own channel on it.
type Connection struct {
	mu     sync.Mutex
	client *ssh.Client
	// bastion is the outer client when the target is reached through a jump host.
	bastion *ssh.Client
	auth    *authenticator
	target  Target
	log     *logrus.Entry

	stopKeepAlive chan struct{}
	keepAliveDone chan struct{}
}

func joinAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Dial connects and authenticates to t. Anything opened before a failing stage is
// closed again.
func Dial(ctx context.Context, cfg Config, t Target) (*Connection, error) {
	cfg = cfg.withDefaults()
	log := logger.Log.WithField(common.HostName, t.Host)

	hostKeys, err := newHostKeyPolicy(cfg, log)
	if err != nil {
		return nil, err
	}
	auth, err := newAuthenticator(cfg, t, log)
	if err != nil {
		return nil, err
	}
	c := &Connection{auth: auth, target: t, log: log}

	clientConfig := func(user, address string) *ssh.ClientConfig {
		return &ssh.ClientConfig{
			User:              user,
			Auth:              auth.methods,
			HostKeyCallback:   hostKeys.callback,
			HostKeyAlgorithms: hostKeys.algorithms(address),
			Timeout:           cfg.Timeout,
		}
	}

	endpoint := t.Address()
	if cfg.Bastion != "" {
		bastionAddr := joinAddr(cfg.Bastion, cfg.BastionPort)
		bastionUser := util.FirstNonEmpty(cfg.BastionUser, t.DialUser)
		conn, err := dialTCP(ctx, bastionAddr, cfg.Timeout)
		if err != nil {
			_ = auth.close()
			return nil, errors.Wrapf(err, "could not establish connection to %s", bastionAddr)
		}
		c.bastion, err = handshake(ctx, conn, bastionAddr, clientConfig(bastionUser, bastionAddr), cfg.Timeout)
		if err != nil {
			_ = auth.close()
			return nil, err
		}
		inner, err := c.bastion.Dial("tcp", endpoint)
		if err != nil {
			_ = c.Close()
			return nil, errors.Wrapf(err, "could not establish connection to target %s via bastion", endpoint)
		}
		c.client, err = handshake(ctx, inner, endpoint, clientConfig(t.DialUser, endpoint), cfg.Timeout)
		if err != nil {
			_ = c.Close()
			return nil, errors.Wrapf(err, "via bastion %s", bastionAddr)
		}
	} else {
		conn, err := dialTCP(ctx, endpoint, cfg.Timeout)
		if err != nil {
			_ = auth.close()
			return nil, errors.Wrapf(err, "could not establish connection to %s", endpoint)
		}
		c.client, err = handshake(ctx, conn, endpoint, clientConfig(t.DialUser, endpoint), cfg.Timeout)
		if err != nil {
			_ = auth.close()
			return nil, err
		}
	}

	if cfg.KeepAlive > 0 {
		c.startKeepAlive(cfg.KeepAlive)
	}
	log.Debugf("connected to %s as %s", endpoint, t.DialUser)
	return c, nil
}

func dialTCP(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return d.DialContext(ctx, "tcp", address)
}

// handshake runs the SSH handshake on conn under the timeout and ctx deadline.
// conn is closed on failure.
func handshake(ctx context.Context, conn net.Conn, address string, cfg *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })

	ncc, chans, reqs, err := ssh.NewClientConn(conn, address, cfg)
	// A false stop means the cancel hook has run or is running, so the deadline
	// may already be in the past.
	cancelled := !stop()
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "ssh handshake with %s", address)
		}
		return nil, errors.Wrapf(err, "ssh handshake with %s failed", address)
	}
	if cancelled {
		_ = ncc.Close()
		return nil, errors.Wrapf(ctx.Err(), "ssh handshake with %s", address)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(ncc, chans, reqs), nil
}

func (c *Connection) startKeepAlive(interval time.Duration) {
	stop, done := make(chan struct{}), make(chan struct{})
	c.stopKeepAlive, c.keepAliveDone = stop, done
	client := c.client
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
					c.log.Debugf("keepalive failed: %v", err)
					return
				}
			}
		}
	}()
}

// Target returns the resolved target this connection was dialed with.
func (c *Connection) Target() Target {
	return c.target
}

func (c *Connection) sshClient() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, ErrConnectionClosed
	}
	return c.client, nil
}

// newChannel opens a session channel, giving up when ctx is done first.
func (c *Connection) newChannel(ctx context.Context) (*ssh.Session, error) {
	client, err := c.sshClient()
	if err != nil {
		return nil, err
	}

	type result struct {
		sess *ssh.Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s, err := client.NewSession()
		done <- result{s, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.sess != nil {
				_ = r.sess.Close()
			}
		}()
		return nil, errors.Wrap(ctx.Err(), "failed to create ssh session")
	case r := <-done:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "failed to create ssh session")
		}
		return r.sess, nil
	}
}

// Start runs cmdline through the remote user's shell. Stdin is closed; no PTY is requested.
func (c *Connection) Start(ctx context.Context, cmdline string) (runner.Process, error) {
	sess, err := c.newChannel(ctx)
	if err != nil {
		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return nil, errors.Wrap(err, "failed to get stdout pipe")
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		_ = sess.Close()
		return nil, errors.Wrap(err, "failed to get stderr pipe")
	}
	if err := sess.Start(cmdline); err != nil {
		_ = sess.Close()
		return nil, errors.Wrap(err, "failed to start command")
	}
	return &RemoteProcess{sess: sess, stdout: stdout, stderr: stderr}, nil
}

// SFTP starts the sftp subsystem on a new channel and binds a client to its stdio.
// The returned session must be closed after the client.
func (c *Connection) SFTP(ctx context.Context) (*sftp.Client, *ssh.Session, error) {
	sess, r, w, err := c.Subsystem(ctx, "sftp")
	if err != nil {
		return nil, nil, err
	}
	client, err := sftp.NewClientPipe(r, w)
	if err != nil {
		_ = sess.Close()
		return nil, nil, errors.Wrap(err, "failed to create SFTP client")
	}
	return client, sess, nil
}

// Subsystem requests the named subsystem on a new channel.
func (c *Connection) Subsystem(ctx context.Context, name string) (*ssh.Session, io.Reader, io.WriteCloser, error) {
	sess, err := c.newChannel(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	w, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		return nil, nil, nil, errors.Wrap(err, "failed to get stdin pipe")
	}
	r, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return nil, nil, nil, errors.Wrap(err, "failed to get stdout pipe")
	}
	if err := sess.RequestSubsystem(name); err != nil {
		_ = sess.Close()
		return nil, nil, nil, errors.Wrapf(err, "failed to request %s subsystem", name)
	}
	return sess, r, w, nil
}

// Close stops the keepalive and closes the client, the bastion and the agent socket.
// It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A keepalive blocked on an unresponsive peer only returns once the client is
	// closed, so the goroutine is joined last.
	keepAliveDone := c.keepAliveDone
	if c.stopKeepAlive != nil {
		close(c.stopKeepAlive)
		c.stopKeepAlive, c.keepAliveDone = nil, nil
	}

	var errs []error
	if c.client != nil {
		if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, errors.Wrap(err, "ssh close error"))
		}
		c.client = nil
	}
	if c.bastion != nil {
		if err := c.bastion.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, errors.Wrap(err, "bastion close error"))
		}
		c.bastion = nil
	}
	if c.auth != nil {
		if err := c.auth.close(); err != nil {
			errs = append(errs, errors.Wrap(err, "agent socket close error"))
		}
		c.auth = nil
	}
	if keepAliveDone != nil {
		<-keepAliveDone
	}
	return util.CombineErrors(errs...)
}
