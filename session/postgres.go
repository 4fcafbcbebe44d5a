package session

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmwave/common"
	"github.com/mensylisir/xmwave/logger"
	"github.com/mensylisir/xmwave/runner"
)

// Postgres administers a local PostgreSQL server through psql as the postgres system user.
type Postgres struct {
	s   *Session
	log *logrus.Entry
}

func (s *Session) Postgres() *Postgres {
	return &Postgres{s: s, log: logger.ForRecipe(s.log, "postgres")}
}

func checkRoleName(user string) error {
	if !common.PostgresUserPattern.MatchString(user) {
		return errors.Wrapf(ErrUnsafeIdentifier, "invalid postgres user name %q", user)
	}
	return nil
}

func checkDatabaseName(name string) error {
	if !common.PostgresDatabasePattern.MatchString(name) {
		return errors.Wrapf(ErrUnsafeIdentifier, "invalid postgres database name %q", name)
	}
	return nil
}

func (p *Postgres) psql(args ...string) runner.Command {
	return p.s.Command("psql").
		Args(args...).
		PrependArgs("sudo", "--user", "postgres", "--login").
		WithLogger(p.log)
}

func (p *Postgres) exists(ctx context.Context, query string) (bool, error) {
	out, err := p.psql("--tuples-only", "--command", query).HideCommand().HideStdout().Run(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(out.Stdout, "1"), nil
}

// UserExists reports whether the role exists.
func (p *Postgres) UserExists(ctx context.Context, user string) (bool, error) {
	if err := checkRoleName(user); err != nil {
		return false, err
	}
	return p.exists(ctx, "SELECT 1 FROM pg_roles WHERE rolname = "+pq.QuoteLiteral(user))
}

// DatabaseExists reports whether the database exists.
func (p *Postgres) DatabaseExists(ctx context.Context, name string) (bool, error) {
	if err := checkDatabaseName(name); err != nil {
		return false, err
	}
	return p.exists(ctx, "SELECT 1 FROM pg_database WHERE datname = "+pq.QuoteLiteral(name))
}

// CreateUserWithPassword creates the role unless it exists. The password never
// appears in logs.
func (p *Postgres) CreateUserWithPassword(ctx context.Context, user, password string) error {
	exists, err := p.UserExists(ctx, user)
	if err != nil || exists {
		return err
	}
	stmt := "CREATE USER " + user + " WITH PASSWORD "
	_, err = p.psql("--command").
		RedactedArg(stmt+pq.QuoteLiteral(password), stmt+pq.QuoteLiteral("<redacted>")).
		Run(ctx)
	return err
}

// CreateDatabase creates the database unless it exists.
func (p *Postgres) CreateDatabase(ctx context.Context, name string) error {
	exists, err := p.DatabaseExists(ctx, name)
	if err != nil || exists {
		return err
	}
	_, err = p.psql("--command", "CREATE DATABASE "+name).Run(ctx)
	return err
}

func (p *Postgres) GrantAllPrivileges(ctx context.Context, database, user string) error {
	if err := checkRoleName(user); err != nil {
		return err
	}
	if err := checkDatabaseName(database); err != nil {
		return err
	}
	_, err := p.psql("--command", "GRANT ALL PRIVILEGES ON DATABASE "+database+" TO "+user).Run(ctx)
	return err
}
