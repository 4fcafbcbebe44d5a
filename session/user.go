package session

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmwave/logger"
)

// UserExists runs `id --user name`: 0 means the user exists, 1 that it does not.
func (s *Session) UserExists(ctx context.Context, name string) (bool, error) {
	code, err := s.Command("id", "--user", name).
		WithLogger(logger.ForRecipe(s.log, "user")).
		HideCommand().
		HideAllOutput().
		ExitCode(ctx)
	if err != nil {
		return false, err
	}
	switch code {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, errors.Errorf("id --user %s: unexpected exit code %d", name, code)
	}
}

// CreateUser adds name with a home directory unless it already exists.
func (s *Session) CreateUser(ctx context.Context, name string) error {
	log := logger.ForRecipe(s.log, "user")
	exists, err := s.UserExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		log.Debugf("user %q already exists", name)
		return nil
	}
	if _, err := s.Command("useradd", "--create-home", name).WithLogger(log).Run(ctx); err != nil {
		return err
	}
	log.Infof("created user %q", name)
	return nil
}

func (s *Session) UserID(ctx context.Context, name string) (uint32, error) {
	out, err := s.Command("id", "--user", name).
		WithLogger(logger.ForRecipe(s.log, "user")).
		HideCommand().
		HideStdout().
		Run(ctx)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(strings.TrimSpace(out.Stdout), 10, 32)
	if err != nil {
		return 0, errors.Wrap(err, "failed to parse user id")
	}
	return uint32(id), nil
}
