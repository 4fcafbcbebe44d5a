package runner_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmwave/runner"
	"github.com/mensylisir/xmwave/runner/runnertest"
)

func newLogger() (*logrus.Entry, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.TraceLevel)
	return logrus.NewEntry(l), hook
}

func catStarter() *runnertest.Starter {
	return runnertest.New(runnertest.Script(map[string]runnertest.Result{
		"cat /tmp/1":  {Stdout: "OK\n"},
		"cat /tmp/10": {ExitCode: 1, Stderr: "cat: /tmp/10: No such file or directory\n"},
	}))
}

func TestCommand_RunSuccess(t *testing.T) {
	entry, hook := newLogger()
	starter := catStarter()

	out, err := runner.NewCommand(starter, runner.Escaped("cat")).Arg("/tmp/1").WithLogger(entry).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runner.Output{ExitCode: 0, Stdout: "OK\n"}, out)
	assert.True(t, out.Success())

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, `running ["cat", "/tmp/1"]`, entries[0].Message)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "stdout: OK", entries[1].Message)

	procs := starter.Processes()
	require.Len(t, procs, 1)
	assert.True(t, procs[0].Closed())
}

func TestCommand_NonZeroExit(t *testing.T) {
	ctx := context.Background()
	entry, hook := newLogger()
	cmd := runner.NewCommand(catStarter()).Args("cat", "/tmp/10").WithLogger(entry)

	code, err := cmd.ExitCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	_, err = cmd.Run(ctx)
	require.Error(t, err)
	var exitErr *runner.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Equal(t, "failed with exit code 1", err.Error())
	assert.True(t, runner.IsExitCode(err, 1))

	out, err := cmd.AllowFailure().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, runner.Output{
		ExitCode: 1,
		Stdout:   "",
		Stderr:   "cat: /tmp/10: No such file or directory\n",
	}, out)

	var stderrLogged bool
	for _, e := range hook.AllEntries() {
		if e.Message == "stderr: cat: /tmp/10: No such file or directory" {
			stderrLogged = true
			assert.Equal(t, logrus.ErrorLevel, e.Level)
		}
	}
	assert.True(t, stderrLogged, "stderr must be logged even when the run fails")
}

func TestCommand_ExitCodeEqualsAllowFailureRun(t *testing.T) {
	ctx := context.Background()
	for _, code := range []int{0, 1, 2, 127, 255} {
		starter := runnertest.New(func(string) (runnertest.Result, error) {
			return runnertest.Result{ExitCode: code, Stdout: "x\n"}, nil
		})
		cmd := runner.NewCommand(starter).Arg("prog")

		got, err := cmd.ExitCode(ctx)
		require.NoError(t, err)
		out, err := cmd.AllowFailure().Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, out.ExitCode, got)
	}
}

func TestCommand_EmptyArgvSpawnsNothing(t *testing.T) {
	starter := catStarter()

	_, err := runner.NewCommand(starter).Run(context.Background())
	assert.True(t, errors.Is(err, runner.ErrEmptyCommand))
	assert.Empty(t, starter.Lines())
}

func TestCommand_MissingExitCode(t *testing.T) {
	starter := runnertest.New(func(string) (runnertest.Result, error) {
		return runnertest.Result{Stdout: "partial\n", WaitErr: runner.ErrMissingExitCode}, nil
	})

	_, err := runner.NewCommand(starter).Arg("sleep").AllowFailure().Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, runner.ErrMissingExitCode))
}

func TestCommand_SpawnFailure(t *testing.T) {
	starter := runnertest.New(func(string) (runnertest.Result, error) {
		return runnertest.Result{}, errors.New("channel open failed")
	})

	_, err := runner.NewCommand(starter).Arg("true").Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel open failed")
}

func TestCommand_InvalidUTF8(t *testing.T) {
	starter := runnertest.New(func(string) (runnertest.Result, error) {
		return runnertest.Result{Stdout: "\xff\n"}, nil
	})

	_, err := runner.NewCommand(starter).Arg("head").Run(context.Background())
	assert.True(t, errors.Is(err, runner.ErrInvalidUTF8))
}

func TestCommand_CancelKillsChild(t *testing.T) {
	starter := runnertest.New(func(string) (runnertest.Result, error) {
		return runnertest.Result{Stdout: "started\n", Block: true}, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := runner.NewCommand(starter).Args("sleep", "1000").Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	procs := starter.Processes()
	require.Len(t, procs, 1)
	assert.True(t, procs[0].Killed())
	assert.True(t, procs[0].Closed())
}

func TestCommand_RedactedArgNeverLogged(t *testing.T) {
	entry, hook := newLogger()
	starter := runnertest.New(func(string) (runnertest.Result, error) {
		return runnertest.Result{}, nil
	})

	_, err := runner.NewCommand(starter).
		Args("psql", "--command").
		RedactedArg("CREATE USER app WITH PASSWORD 'hunter2'", "CREATE USER app WITH PASSWORD '<redacted>'").
		WithLogger(entry).
		Run(context.Background())
	require.NoError(t, err)

	require.Len(t, starter.Lines(), 1)
	assert.Contains(t, starter.Lines()[0], "hunter2", "the real value is transmitted")

	require.NotEmpty(t, hook.AllEntries())
	for _, e := range hook.AllEntries() {
		assert.NotContains(t, e.Message, "hunter2")
	}
	assert.Contains(t, hook.AllEntries()[0].Message, "'<redacted>'")
}

func TestCommand_HiddenLevels(t *testing.T) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	starter := runnertest.New(func(string) (runnertest.Result, error) {
		return runnertest.Result{Stdout: "out\n", Stderr: "err\n"}, nil
	})

	out, err := runner.NewCommand(starter).Arg("env").HideCommand().HideAllOutput().WithLogger(logrus.NewEntry(l)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "out\n", out.Stdout)
	assert.Equal(t, "err\n", out.Stderr)
	assert.Empty(t, hook.AllEntries())

	_, err = runner.NewCommand(starter).Arg("env").StdoutLogLevel(logrus.WarnLevel).WithLogger(logrus.NewEntry(l)).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, hook.AllEntries(), 3)
	assert.Equal(t, []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}, levelsByKind(hook))
}

// levelsByKind returns levels for the command, stdout and stderr lines in that order.
func levelsByKind(hook *test.Hook) []logrus.Level {
	var cmd, out, errl logrus.Level
	for _, e := range hook.AllEntries() {
		switch {
		case strings.HasPrefix(e.Message, "running"):
			cmd = e.Level
		case strings.HasPrefix(e.Message, "stdout: "):
			out = e.Level
		case strings.HasPrefix(e.Message, "stderr: "):
			errl = e.Level
		}
	}
	return []logrus.Level{cmd, out, errl}
}

func TestCommand_PrependArgsAndUser(t *testing.T) {
	starter := runnertest.New(func(line string) (runnertest.Result, error) {
		return runnertest.Result{Stdout: line + "\n"}, nil
	})
	ctx := context.Background()

	out, err := runner.NewCommand(starter).Arg("test2").PrependArgs("echo", "test1").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "echo test1 test2\n", out.Stdout)

	out, err = runner.NewCommand(starter).Arg("whoami").User("user1").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sudo --login --user user1 whoami\n", out.Stdout)

	out, err = runner.NewCommand(starter).Arg("whoami").User("").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "whoami\n", out.Stdout)
}

func TestCommand_RawArgs(t *testing.T) {
	starter := runnertest.New(func(line string) (runnertest.Result, error) {
		return runnertest.Result{Stdout: line + "\n"}, nil
	})

	out, err := runner.NewCommand(starter).RawArgs("DEBIAN_FRONTEND=noninteractive", "apt-get").RawArg("dist-upgrade").Arg("--yes").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DEBIAN_FRONTEND=noninteractive apt-get dist-upgrade --yes\n", out.Stdout)
}

func TestCommand_BuilderDoesNotAlias(t *testing.T) {
	base := runner.NewCommand(nil).Args("a", "b", "c")
	left := base.Arg("left")
	right := base.Arg("right")

	assert.Equal(t, `["a", "b", "c"]`, base.String())
	assert.Equal(t, `["a", "b", "c", "left"]`, left.String())
	assert.Equal(t, `["a", "b", "c", "right"]`, right.String())

	argv := left.Argv()
	argv[0] = runner.Escaped("mutated")
	assert.Equal(t, `["a", "b", "c", "left"]`, left.String())
}
