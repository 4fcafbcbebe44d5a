package runner

import (
	"context"
	"io"
)

// Starter launches a command line on some transport, typically one SSH connection.
// The command line is already quoted; the transport must hand it to the remote shell verbatim.
type Starter interface {
	Start(ctx context.Context, cmdline string) (Process, error)
}

// Process is a started child with closed stdin and piped stdout/stderr.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the child exits and returns its exit code.
	// A child terminated without an exit status yields an error.
	Wait() (int, error)
	// Kill terminates the child and unblocks Wait and both readers.
	Kill() error
	// Close releases the transport resources. Called once the pumps have drained.
	Close() error
}
