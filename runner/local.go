package runner

import (
	"context"
	"os/exec"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mensylisir/xmwave/common"
	"github.com/mensylisir/xmwave/logger"
)

// LocalCommand is a builder for a subprocess on this machine.
// Arguments go to the OS as an argv array and are never shell-quoted.
type LocalCommand struct {
	log          *logrus.Entry
	args         []string
	dir          string
	commandLevel logrus.Level
	stdoutLevel  logrus.Level
	stderrLevel  logrus.Level
	allowFailure bool
}

// NewLocalCommand creates a local command; args[0] is the program.
func NewLocalCommand(args ...string) LocalCommand {
	return LocalCommand{
		log:          logger.Log.ForLocal(),
		args:         slices.Clone(args),
		commandLevel: logrus.InfoLevel,
		stdoutLevel:  logrus.InfoLevel,
		stderrLevel:  logrus.ErrorLevel,
	}
}

func (c LocalCommand) Arg(value string) LocalCommand {
	c.args = append(slices.Clip(c.args), value)
	return c
}

func (c LocalCommand) Args(values ...string) LocalCommand {
	c.args = append(slices.Clip(c.args), values...)
	return c
}

func (c LocalCommand) PrependArgs(values ...string) LocalCommand {
	c.args = append(slices.Clone(values), c.args...)
	return c
}

// Dir sets the working directory of the child.
func (c LocalCommand) Dir(dir string) LocalCommand {
	c.dir = dir
	return c
}

func (c LocalCommand) AllowFailure() LocalCommand {
	c.allowFailure = true
	return c
}

func (c LocalCommand) CommandLogLevel(level logrus.Level) LocalCommand {
	c.commandLevel = level
	return c
}

func (c LocalCommand) StdoutLogLevel(level logrus.Level) LocalCommand {
	c.stdoutLevel = level
	return c
}

func (c LocalCommand) StderrLogLevel(level logrus.Level) LocalCommand {
	c.stderrLevel = level
	return c
}

func (c LocalCommand) HideCommand() LocalCommand {
	return c.CommandLogLevel(logrus.TraceLevel)
}

func (c LocalCommand) HideStdout() LocalCommand {
	return c.StdoutLogLevel(logrus.TraceLevel)
}

func (c LocalCommand) HideStderr() LocalCommand {
	return c.StderrLogLevel(logrus.TraceLevel)
}

func (c LocalCommand) HideAllOutput() LocalCommand {
	return c.HideStdout().HideStderr()
}

func (c LocalCommand) WithLogger(entry *logrus.Entry) LocalCommand {
	c.log = entry
	return c
}

// Argv returns a copy of the arguments.
func (c LocalCommand) Argv() []string {
	return slices.Clone(c.args)
}

// Run starts the subprocess, drains stdout and stderr concurrently and waits for it.
// Cancelling ctx kills the child.
func (c LocalCommand) Run(ctx context.Context) (Output, error) {
	if len(c.args) == 0 {
		return Output{}, ErrEmptyCommand
	}
	c.log.Logf(c.commandLevel, "running %q", c.args)

	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	cmd.Dir = c.dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Output{}, errors.Wrap(err, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Output{}, errors.Wrap(err, "failed to open stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return Output{}, errors.Wrapf(err, "failed to spawn %s", c.args[0])
	}

	var out Output
	var g errgroup.Group
	g.Go(func() (err error) {
		out.Stdout, err = Pump(stdout, c.log, c.stdoutLevel, common.StdoutPrefix)
		return err
	})
	g.Go(func() (err error) {
		out.Stderr, err = Pump(stderr, c.log, c.stderrLevel, common.StderrPrefix)
		return err
	})
	// os/exec closes the pipes in Wait, so the pumps must reach EOF first.
	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return Output{}, errors.Wrapf(ctx.Err(), "%s cancelled", c.args[0])
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return Output{}, errors.Wrapf(waitErr, "failed to wait for %s", c.args[0])
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		return Output{}, errors.Wrapf(ErrMissingExitCode, "%s: %s", c.args[0], cmd.ProcessState)
	}
	out.ExitCode = code
	if !c.allowFailure && code != 0 {
		return Output{}, errors.WithStack(&ExitError{Code: code, Local: true})
	}
	if pumpErr != nil {
		return Output{}, pumpErr
	}
	return out, nil
}

// ExitCode runs the command with AllowFailure and returns only its exit code.
func (c LocalCommand) ExitCode(ctx context.Context) (int, error) {
	out, err := c.AllowFailure().Run(ctx)
	if err != nil {
		return 0, err
	}
	return out.ExitCode, nil
}
