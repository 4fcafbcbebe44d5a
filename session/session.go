package session

import (
	"context"
	"io"
	"io/fs"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmwave/cache"
	"github.com/mensylisir/xmwave/connector"
	"github.com/mensylisir/xmwave/logger"
	"github.com/mensylisir/xmwave/runner"
	"github.com/mensylisir/xmwave/util"
)

// ErrUnsafeIdentifier is wrapped by errors for user, role and database names that
// would not survive interpolation into a remote command.
var ErrUnsafeIdentifier = errors.New("unsafe identifier")

// Session is one SSH connection to a destination, with an SFTP client on its own
// channel and a per-session cache for recipes.
//
// A Session is not meant to be shared between goroutines without external locking.
type Session struct {
	id          string
	destination string
	user        string
	port        int

	starter   runner.Starter
	conn      io.Closer
	sftpChild io.Closer
	sftp      *sftp.Client
	fs        *FS
	cache     *cache.TypeMap
	log       *logrus.Entry

	closeOnce sync.Once
	closeErr  error
}

// Connect opens a session with default settings, which include strict host key checking.
func Connect(ctx context.Context, destination string) (*Session, error) {
	return FromConfig(ctx, connector.Config{}, destination)
}

// FromConfig opens a session using cfg. User and port given in destination take
// precedence over cfg.
func FromConfig(ctx context.Context, cfg connector.Config, destination string) (*Session, error) {
	target, err := cfg.Resolve(destination)
	if err != nil {
		return nil, err
	}
	conn, err := connector.Dial(ctx, cfg, target)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", destination)
	}
	client, child, err := conn.SFTP(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to open sftp on %s", destination)
	}

	s := newSession(target.Host, target.User, target.Port, conn, client)
	s.conn = conn
	s.sftpChild = child
	s.log.Debugf("session established to %s", target.Address())
	return s, nil
}

func newSession(host, user string, port int, starter runner.Starter, client *sftp.Client) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		destination: host,
		user:        user,
		port:        port,
		starter:     starter,
		sftp:        client,
		fs:          &FS{client: client},
		cache:       cache.NewTypeMap(),
		log:         logger.Log.ForSession(host, id),
	}
}

// ID identifies the session in log records.
func (s *Session) ID() string { return s.id }

// Destination returns the host as written in the destination, possibly an ssh config alias.
func (s *Session) Destination() string { return s.destination }

// User returns the explicitly requested login user, or "".
func (s *Session) User() string { return s.user }

// Port returns the explicitly requested port, or 0.
func (s *Session) Port() int { return s.port }

// Logger returns the entry all commands of this session log through.
func (s *Session) Logger() *logrus.Entry { return s.log }

// Command builds a remote command whose arguments are all shell-escaped.
func (s *Session) Command(args ...string) runner.Command {
	return runner.NewCommand(s.starter).Args(args...).WithLogger(s.log)
}

// RawCommand builds a remote command whose arguments reach the remote shell verbatim.
func (s *Session) RawCommand(args ...string) runner.Command {
	return runner.NewCommand(s.starter).RawArgs(args...).WithLogger(s.log)
}

// LocalCommand builds a command that runs on this machine and logs with the session fields.
func (s *Session) LocalCommand(args ...string) runner.LocalCommand {
	return runner.NewLocalCommand(args...).WithLogger(s.log)
}

func (s *Session) SFTP() *sftp.Client { return s.sftp }

func (s *Session) FS() *FS { return s.fs }

func (s *Session) Cache() *cache.TypeMap { return s.cache }

// PathExists reports whether p exists on the remote host. Only a missing file maps to
// false; every other SFTP failure is returned.
func (s *Session) PathExists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := s.fs.Metadata(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Close shuts down the SFTP client, then its channel, then the connection.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.sftp != nil {
			if err := s.sftp.Close(); err != nil && !errors.Is(err, io.EOF) {
				errs = append(errs, errors.Wrap(err, "sftp close error"))
			}
		}
		if s.sftpChild != nil {
			if err := s.sftpChild.Close(); err != nil && !errors.Is(err, io.EOF) {
				errs = append(errs, errors.Wrap(err, "sftp channel close error"))
			}
		}
		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = util.CombineErrors(errs...)
		s.log.Debug("session closed")
	})
	return s.closeErr
}
