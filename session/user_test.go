package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmwave/runner/runnertest"
)

// fakeUsers emulates id and useradd against an in-memory user table.
func fakeUsers(users map[string]int) runnertest.Handler {
	var mu sync.Mutex
	return func(cmdline string) (runnertest.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if name, ok := strings.CutPrefix(cmdline, "id --user "); ok {
			uid, known := users[name]
			if !known {
				return runnertest.Result{ExitCode: 1, Stderr: "id: '" + name + "': no such user\n"}, nil
			}
			return runnertest.Result{Stdout: strconv.Itoa(uid) + "\n"}, nil
		}
		if name, ok := strings.CutPrefix(cmdline, "useradd --create-home "); ok {
			users[name] = 1000 + len(users)
			return runnertest.Result{}, nil
		}
		return runnertest.Result{ExitCode: 127}, nil
	}
}

func TestCreateUser_IsIdempotent(t *testing.T) {
	s, starter, _ := newTestSession(t, fakeUsers(map[string]int{"root": 0}))
	ctx := context.Background()

	exists, err := s.UserExists(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreateUser(ctx, "user1"))
	require.NoError(t, s.CreateUser(ctx, "user1"))
	assert.Equal(t, 1, starter.Count("useradd"))

	exists, err = s.UserExists(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, exists)

	uid, err := s.UserID(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, uint32(1001), uid)

	uid, err = s.UserID(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), uid)
}

func TestUserExists_UnexpectedExitCode(t *testing.T) {
	s, _, _ := newTestSession(t, runnertest.Script(map[string]runnertest.Result{
		"id --user x": {ExitCode: 2},
	}))
	_, err := s.UserExists(context.Background(), "x")
	assert.Error(t, err)
}

func TestUserID_Errors(t *testing.T) {
	s, _, _ := newTestSession(t, runnertest.Script(map[string]runnertest.Result{
		"id --user ghost": {ExitCode: 1},
		"id --user weird": {Stdout: "not-a-number\n"},
	}))
	ctx := context.Background()

	_, err := s.UserID(ctx, "ghost")
	assert.Error(t, err)

	_, err = s.UserID(ctx, "weird")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse user id")
}
