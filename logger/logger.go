// logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmwave/common"
)

// Log is the global logger instance of XMLog.
// It writes to the console until InitGlobalLogger replaces it.
var Log = newConsoleLog(logrus.InfoLevel, false)

// XMLog wraps *logrus.Logger with session-aware helpers.
type XMLog struct {
	*logrus.Logger
}

var defaultFieldsOrder = []string{
	common.SessionName, common.HostName, common.RecipeName,
}

func newConsoleLog(level logrus.Level, verbose bool) *XMLog {
	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(os.Stdout)
	l.SetFormatter(consoleFormatter(verbose))
	return &XMLog{Logger: l}
}

func consoleFormatter(verbose bool) *Formatter {
	display := ShowAboveWarn
	if verbose {
		display = ShowAll
	}
	return &Formatter{
		TimestampFormat:        "15:04:05",
		DisplayLevelName:       display,
		DisableCaller:          true,
		FieldsDisplayWithOrder: defaultFieldsOrder,
	}
}

// InitGlobalLogger initializes the global Log variable.
// With a non-empty outputPath, entries go to a daily rotated app.log through an lfshook hook;
// otherwise they go to stdout.
func InitGlobalLogger(outputPath string, verbose bool, defaultLevel logrus.Level) error {
	l, err := NewXMLog(outputPath, verbose, defaultLevel)
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// NewXMLog creates a new instance of XMLog.
func NewXMLog(outputPath string, verbose bool, defaultLevel logrus.Level) (*XMLog, error) {
	level := defaultLevel
	if verbose && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	if outputPath == "" {
		return newConsoleLog(level, verbose), nil
	}

	if err := os.MkdirAll(outputPath, common.FileMode0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create log output directory %s", outputPath)
	}
	logFilePath := filepath.Join(outputPath, common.AppName+".log")
	writer, err := rotatelogs.New(
		logFilePath+".%Y%m%d",
		rotatelogs.WithLinkName(logFilePath),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize rotatelogs for %s", logFilePath)
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetReportCaller(true)
	fileFormatter := &Formatter{
		TimestampFormat:        "2006-01-02 15:04:05.000 MST",
		NoColors:               true,
		DisplayLevelName:       ShowAll,
		FieldsDisplayWithOrder: defaultFieldsOrder,
		CustomCallerFormatter: func(frame *runtime.Frame) string {
			return fmt.Sprintf("[%s:%d]", filepath.Base(frame.File), frame.Line)
		},
	}
	l.SetFormatter(fileFormatter)

	writers := lfshook.WriterMap{}
	for _, lv := range logrus.AllLevels {
		if l.IsLevelEnabled(lv) {
			writers[lv] = writer
		}
	}
	l.Hooks.Add(lfshook.NewHook(writers, fileFormatter))
	// the hook owns the file; the default writer would duplicate every line
	l.SetOutput(io.Discard)
	return &XMLog{Logger: l}, nil
}

// ForSession returns the entry every command and recipe of one session logs through.
func (xl *XMLog) ForSession(host, id string) *logrus.Entry {
	return xl.WithFields(logrus.Fields{
		common.SessionName: id,
		common.HostName:    host,
	})
}

// ForLocal returns the entry local commands log through when no session is involved.
func (xl *XMLog) ForLocal() *logrus.Entry {
	return xl.WithField(common.HostName, common.LocalHost)
}

// ForRecipe tags an existing entry with the recipe name.
func ForRecipe(entry *logrus.Entry, recipe string) *logrus.Entry {
	return entry.WithField(common.RecipeName, recipe)
}

// ParseLevel accepts logrus level names plus "hide", which maps to trace.
func ParseLevel(s string) (logrus.Level, error) {
	if s == "hide" {
		return logrus.TraceLevel, nil
	}
	lv, err := logrus.ParseLevel(s)
	if err != nil {
		return lv, errors.Wrapf(err, "invalid log level %q", s)
	}
	return lv, nil
}
