package runner

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyCommand is returned by Run when the argv is empty; nothing is spawned.
	ErrEmptyCommand = errors.New("empty command")
	// ErrMissingExitCode is returned when a child ends without an exit status, e.g. killed by a signal.
	ErrMissingExitCode = errors.New("missing exit code")
	// ErrInvalidUTF8 is returned when captured output is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("output is not valid utf-8")
)

// Output is the result of a finished command.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with code 0.
func (o Output) Success() bool {
	return o.ExitCode == 0
}

// ExitError reports a non-zero exit of a command run without AllowFailure.
type ExitError struct {
	Code  int
	Local bool
}

func (e *ExitError) Error() string {
	if e.Local {
		return fmt.Sprintf("local command failed with exit code %d", e.Code)
	}
	return fmt.Sprintf("failed with exit code %d", e.Code)
}

// IsExitCode reports whether err is an *ExitError carrying code.
func IsExitCode(err error, code int) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Code == code
}
