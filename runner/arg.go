package runner

import (
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
)

// Arg is one argv element of a remote command.
//
// Escaped args are shell-quoted before they reach the remote shell, so the shell sees
// exactly one token. Raw args are passed verbatim and may carry redirections, pipes or
// VAR=value assignments. Either kind may have a placeholder that replaces it in logs.
type Arg struct {
	value       string
	raw         bool
	placeholder string
	redacted    bool
}

// Escaped returns an argument that will be shell-quoted.
func Escaped(value string) Arg {
	return Arg{value: value}
}

// Raw returns an argument that is passed to the remote shell verbatim.
func Raw(value string) Arg {
	return Arg{value: value, raw: true}
}

// Redacted returns an escaped argument shown as placeholder in logs.
func Redacted(value, placeholder string) Arg {
	return Arg{value: value, placeholder: placeholder, redacted: true}
}

// IsRaw reports whether the argument bypasses shell quoting.
func (a Arg) IsRaw() bool {
	return a.raw
}

// Value returns the transmitted value.
func (a Arg) Value() string {
	return a.value
}

// String renders the argument the way it appears in logs.
// Redacted arguments render as their placeholder only.
func (a Arg) String() string {
	switch {
	case a.redacted:
		return a.placeholder
	case a.raw:
		return "raw(" + strconv.Quote(a.value) + ")"
	default:
		return strconv.Quote(a.value)
	}
}

// quoted returns the argument as it is written into the remote command line.
func (a Arg) quoted() string {
	if a.raw {
		return a.value
	}
	return shellescape.Quote(a.value)
}

// CommandLine joins args into the single string handed to the remote shell.
func CommandLine(args []Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.quoted()
	}
	return strings.Join(parts, " ")
}

// FormatArgs renders args for the "running ..." log line.
func FormatArgs(args []Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
