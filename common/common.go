package common

import (
	"io/fs"
	"regexp"
)

const (
	AppName = "xmwave"
)

// Structured log field names.
const (
	SessionName = "session"
	HostName    = "host"
	RecipeName  = "recipe"
	LocalHost   = "localhost"
)

const (
	// FileMode0755 represents rwxr-xr-x
	FileMode0755 fs.FileMode = 0755
	// FileMode0644 represents rw-r--r--
	FileMode0644 fs.FileMode = 0644
	// FileMode0600 represents rw-------
	FileMode0600 fs.FileMode = 0600
	// FileMode0700 represents rwx------
	FileMode0700 fs.FileMode = 0700
)

const (
	DefaultSSHPort = 22
	// StdoutPrefix and StderrPrefix are prepended to every captured line that is logged.
	StdoutPrefix = "stdout: "
	StderrPrefix = "stderr: "
	// EOFMarker is appended to the log line of an unterminated final chunk.
	EOFMarker = "[eof]"
)

var (
	// SafeUserPattern matches system user names that may be interpolated into sudo/rsync arguments.
	SafeUserPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	// PostgresUserPattern matches role names accepted by the postgres recipe.
	PostgresUserPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	// PostgresDatabasePattern matches database names accepted by the postgres recipe.
	PostgresDatabasePattern = regexp.MustCompile(`^[A-Za-z0-9_$]+$`)
)
