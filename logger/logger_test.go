// logger_test.go
package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmwave/common"
)

// Hook to capture log entries for testing
type testHook struct {
	mu      sync.Mutex
	Entries []*logrus.Entry
}

func (h *testHook) Levels() []logrus.Level { return logrus.AllLevels }
func (h *testHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Entries = append(h.Entries, entry)
	return nil
}
func (h *testHook) LastEntry() *logrus.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Entries) == 0 {
		return nil
	}
	return h.Entries[len(h.Entries)-1]
}

func TestDefaultLogIsUsableBeforeInit(t *testing.T) {
	require.NotNil(t, Log)
	require.NotNil(t, Log.Logger)
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
}

func TestInitGlobalLogger_File(t *testing.T) {
	originalLog := Log
	defer func() { Log = originalLog }()

	dir := t.TempDir()
	require.NoError(t, InitGlobalLogger(dir, false, logrus.InfoLevel))

	Log.ForSession("web-1", "abc").Info("hello from the file logger")
	Log.Debug("debug is below the configured level")

	matches, err := filepath.Glob(filepath.Join(dir, common.AppName+".log.*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	content, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "hello from the file logger")
	assert.Contains(t, text, "[INFO]")
	assert.Contains(t, text, "session:abc | host:web-1")
	assert.NotContains(t, text, "debug is below")
}

func TestInitGlobalLogger_Verbose(t *testing.T) {
	originalLog := Log
	defer func() { Log = originalLog }()

	require.NoError(t, InitGlobalLogger("", true, logrus.InfoLevel))
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())

	require.NoError(t, InitGlobalLogger("", true, logrus.TraceLevel))
	assert.Equal(t, logrus.TraceLevel, Log.GetLevel(), "verbose must not raise an already lower level")
}

func TestInitGlobalLogger_BadDirectory(t *testing.T) {
	originalLog := Log
	defer func() { Log = originalLog }()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := InitGlobalLogger(filepath.Join(blocker, "logs"), false, logrus.InfoLevel)
	require.Error(t, err)
	assert.Same(t, originalLog, Log)
}

func TestForSessionAndRecipe(t *testing.T) {
	l := newConsoleLog(logrus.TraceLevel, false)
	l.SetOutput(&strings.Builder{})
	hook := &testHook{}
	l.AddHook(hook)

	ForRecipe(l.ForSession("db-1", "id-1"), "apt").Info("installing")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "installing", entry.Message)
	assert.Equal(t, "id-1", entry.Data[common.SessionName])
	assert.Equal(t, "db-1", entry.Data[common.HostName])
	assert.Equal(t, "apt", entry.Data[common.RecipeName])

	l.ForLocal().Warn("local")
	assert.Equal(t, common.LocalHost, hook.LastEntry().Data[common.HostName])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logrus.Level
		wantErr bool
	}{
		{in: "hide", want: logrus.TraceLevel},
		{in: "info", want: logrus.InfoLevel},
		{in: "error", want: logrus.ErrorLevel},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatter_Format(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)

	tests := []struct {
		name      string
		formatter *Formatter
		entry     *logrus.Entry
		want      string
	}{
		{
			name:      "ordered fields then alphabetical",
			formatter: &Formatter{TimestampFormat: "15:04:05", NoColors: true, FieldsDisplayWithOrder: defaultFieldsOrder, DisableCaller: true},
			entry: &logrus.Entry{
				Time:    ts,
				Level:   logrus.InfoLevel,
				Message: "running [echo]",
				Data: logrus.Fields{
					"zeta":             1,
					common.HostName:    "h",
					"alpha":            2,
					common.SessionName: "s",
				},
			},
			want: "10:20:30 [INFO] [session:s | host:h | alpha:2 | zeta:1] running [echo]\n",
		},
		{
			name:      "level hidden below warn",
			formatter: &Formatter{DisableTimestamp: true, NoColors: true, DisplayLevelName: ShowAboveWarn, DisableCaller: true},
			entry:     &logrus.Entry{Level: logrus.InfoLevel, Message: "quiet"},
			want:      "quiet\n",
		},
		{
			name:      "warn shown, keys hidden, value truncated",
			formatter: &Formatter{DisableTimestamp: true, NoColors: true, DisplayLevelName: ShowAboveWarn, HideKeys: true, MaxFieldValueLength: 3, DisableCaller: true},
			entry:     &logrus.Entry{Level: logrus.WarnLevel, Message: "m", Data: logrus.Fields{"k": "abcdef"}},
			want:      "[WARN] [abc...] m\n",
		},
		{
			name:      "error with colors",
			formatter: &Formatter{DisableTimestamp: true, DisplayLevelName: ShowAboveError, DisableCaller: true},
			entry:     &logrus.Entry{Level: logrus.ErrorLevel, Message: "boom"},
			want:      "\x1b[31m[ERRO]\x1b[0m boom\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.formatter.Format(tt.entry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}
