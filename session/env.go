package session

import (
	"context"
	"maps"
	"strings"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmwave/cache"
	"github.com/mensylisir/xmwave/logger"
)

type envCache struct {
	current map[string]string
	others  map[string]map[string]string
}

func (c *envCache) lookup(user string) (map[string]string, bool) {
	if user == "" {
		return c.current, c.current != nil
	}
	env, ok := c.others[user]
	return env, ok
}

func (c *envCache) store(user string, env map[string]string) {
	if user == "" {
		c.current = env
		return
	}
	if c.others == nil {
		c.others = map[string]map[string]string{}
	}
	c.others[user] = env
}

func (c *envCache) forget(user string) {
	if user == "" {
		c.current = nil
		return
	}
	delete(c.others, user)
}

// Env reads the environment of user, or of the login user when user is "".
// Results are cached per user for the session. The returned map is a copy.
func (s *Session) Env(ctx context.Context, user string) (map[string]string, error) {
	ec := cache.Entry[*envCache](s.cache).OrInsertWith(func() *envCache { return &envCache{} })
	if env, ok := ec.lookup(user); ok {
		return maps.Clone(env), nil
	}

	out, err := s.Command("env").
		User(user).
		WithLogger(logger.ForRecipe(s.log, "env")).
		HideCommand().
		HideStdout().
		Run(ctx)
	if err != nil {
		return nil, err
	}
	env, err := parseEnv(out.Stdout)
	if err != nil {
		return nil, err
	}
	ec.store(user, env)
	return maps.Clone(env), nil
}

func parseEnv(stdout string) (map[string]string, error) {
	env := map[string]string{}
	for _, line := range strings.Split(stdout, "\n") {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.Errorf("missing '=' in env output line %q", line)
		}
		env[name] = value
	}
	return env, nil
}

func (s *Session) envVar(ctx context.Context, user, name string) (string, error) {
	env, err := s.Env(ctx, user)
	if err != nil {
		return "", err
	}
	v, ok := env[name]
	if !ok {
		return "", errors.Errorf("missing remote env var %q", name)
	}
	return v, nil
}

// HomeDir returns $HOME of user, or of the login user when user is "".
func (s *Session) HomeDir(ctx context.Context, user string) (string, error) {
	return s.envVar(ctx, user, "HOME")
}

// CurrentUser returns $USER of the login user.
func (s *Session) CurrentUser(ctx context.Context) (string, error) {
	return s.envVar(ctx, "", "USER")
}

// Shell returns $SHELL of user, or of the login user when user is "".
func (s *Session) Shell(ctx context.Context, user string) (string, error) {
	return s.envVar(ctx, user, "SHELL")
}

// SetShell changes the login shell with chsh when it differs from shell.
func (s *Session) SetShell(ctx context.Context, shell, user string) error {
	current, err := s.Shell(ctx, user)
	if err != nil {
		return err
	}
	if current == shell {
		return nil
	}
	cmd := s.Command("chsh", "-s", shell).WithLogger(logger.ForRecipe(s.log, "env"))
	if user != "" {
		cmd = cmd.Arg(user)
	}
	if _, err := cmd.Run(ctx); err != nil {
		return err
	}
	cache.Entry[*envCache](s.cache).OrInsertWith(func() *envCache { return &envCache{} }).forget(user)
	return nil
}
