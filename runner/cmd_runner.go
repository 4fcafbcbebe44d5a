package runner

import (
	"context"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mensylisir/xmwave/common"
	"github.com/mensylisir/xmwave/logger"
)

// Command is a remote command builder. Builder methods return a modified copy.
type Command struct {
	starter      Starter
	log          *logrus.Entry
	args         []Arg
	commandLevel logrus.Level
	stdoutLevel  logrus.Level
	stderrLevel  logrus.Level
	allowFailure bool
}

// NewCommand creates a command that runs args through starter.
func NewCommand(starter Starter, args ...Arg) Command {
	return Command{
		starter:      starter,
		log:          logger.Log.WithFields(logrus.Fields{}),
		args:         slices.Clone(args),
		commandLevel: logrus.InfoLevel,
		stdoutLevel:  logrus.InfoLevel,
		stderrLevel:  logrus.ErrorLevel,
	}
}

func (c Command) with(args ...Arg) Command {
	c.args = append(slices.Clip(c.args), args...)
	return c
}

// Arg appends an escaped argument.
func (c Command) Arg(value string) Command {
	return c.with(Escaped(value))
}

// RawArg appends an argument that is not shell-quoted.
func (c Command) RawArg(value string) Command {
	return c.with(Raw(value))
}

// RedactedArg appends an escaped argument that logs as placeholder.
func (c Command) RedactedArg(value, placeholder string) Command {
	return c.with(Redacted(value, placeholder))
}

// Args appends escaped arguments.
func (c Command) Args(values ...string) Command {
	args := make([]Arg, len(values))
	for i, v := range values {
		args[i] = Escaped(v)
	}
	return c.with(args...)
}

// RawArgs appends arguments that are not shell-quoted.
func (c Command) RawArgs(values ...string) Command {
	args := make([]Arg, len(values))
	for i, v := range values {
		args[i] = Raw(v)
	}
	return c.with(args...)
}

// PrependArgs inserts escaped arguments before the current argv.
func (c Command) PrependArgs(values ...string) Command {
	args := make([]Arg, 0, len(values)+len(c.args))
	for _, v := range values {
		args = append(args, Escaped(v))
	}
	c.args = append(args, c.args...)
	return c
}

// User wraps the command in `sudo --login --user user`. An empty user leaves it unchanged.
func (c Command) User(user string) Command {
	if user == "" {
		return c
	}
	return c.PrependArgs("sudo", "--login", "--user", user)
}

// AllowFailure makes Run return non-zero exit codes instead of failing.
func (c Command) AllowFailure() Command {
	c.allowFailure = true
	return c
}

func (c Command) CommandLogLevel(level logrus.Level) Command {
	c.commandLevel = level
	return c
}

func (c Command) StdoutLogLevel(level logrus.Level) Command {
	c.stdoutLevel = level
	return c
}

func (c Command) StderrLogLevel(level logrus.Level) Command {
	c.stderrLevel = level
	return c
}

func (c Command) HideCommand() Command {
	return c.CommandLogLevel(logrus.TraceLevel)
}

func (c Command) HideStdout() Command {
	return c.StdoutLogLevel(logrus.TraceLevel)
}

func (c Command) HideStderr() Command {
	return c.StderrLogLevel(logrus.TraceLevel)
}

func (c Command) HideAllOutput() Command {
	return c.HideStdout().HideStderr()
}

// WithLogger sets the entry that command, stdout and stderr lines are logged through.
func (c Command) WithLogger(entry *logrus.Entry) Command {
	c.log = entry
	return c
}

// Argv returns a copy of the arguments.
func (c Command) Argv() []Arg {
	return slices.Clone(c.args)
}

// String renders the command as it is logged.
func (c Command) String() string {
	return FormatArgs(c.args)
}

// Run executes the command and waits for it. Both output pumps are drained before Run
// returns on every path. Cancelling ctx kills the remote child.
func (c Command) Run(ctx context.Context) (Output, error) {
	if len(c.args) == 0 {
		return Output{}, ErrEmptyCommand
	}
	c.log.Logf(c.commandLevel, "running %s", FormatArgs(c.args))

	proc, err := c.starter.Start(ctx, CommandLine(c.args))
	if err != nil {
		return Output{}, errors.Wrapf(err, "failed to spawn %s", c.args[0])
	}
	defer func() { _ = proc.Close() }()

	var out Output
	var g errgroup.Group
	g.Go(func() (err error) {
		out.Stdout, err = Pump(proc.Stdout(), c.log, c.stdoutLevel, common.StdoutPrefix)
		return err
	})
	g.Go(func() (err error) {
		out.Stderr, err = Pump(proc.Stderr(), c.log, c.stderrLevel, common.StderrPrefix)
		return err
	})

	type waitResult struct {
		code int
		err  error
	}
	waitDone := make(chan waitResult, 1)
	go func() {
		code, err := proc.Wait()
		waitDone <- waitResult{code, err}
	}()

	var res waitResult
	select {
	case <-ctx.Done():
		_ = proc.Kill()
		<-waitDone
		_ = g.Wait()
		return Output{}, errors.Wrapf(ctx.Err(), "%s cancelled", c.args[0])
	case res = <-waitDone:
	}

	pumpErr := g.Wait()
	if res.err != nil {
		return Output{}, errors.Wrapf(res.err, "failed to wait for %s", c.args[0])
	}
	out.ExitCode = res.code
	if !c.allowFailure && res.code != 0 {
		return Output{}, errors.WithStack(&ExitError{Code: res.code})
	}
	if pumpErr != nil {
		return Output{}, pumpErr
	}
	return out, nil
}

// ExitCode runs the command with AllowFailure and returns only its exit code.
func (c Command) ExitCode(ctx context.Context) (int, error) {
	out, err := c.AllowFailure().Run(ctx)
	if err != nil {
		return 0, err
	}
	return out.ExitCode, nil
}
