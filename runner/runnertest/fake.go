// Package runnertest provides an in-memory runner.Starter for tests.
package runnertest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmwave/runner"
)

// Result scripts the outcome of one started command line.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// WaitErr is returned from Wait instead of the exit code, e.g. runner.ErrMissingExitCode.
	WaitErr error
	// Block keeps the process running until it is killed.
	Block bool
}

// Handler decides the result for a command line.
type Handler func(cmdline string) (Result, error)

// Starter records every command line it starts and answers through Handler.
type Starter struct {
	Handler Handler

	mu    sync.Mutex
	lines []string
	procs []*Process
}

// New returns a Starter that answers through h.
func New(h Handler) *Starter {
	return &Starter{Handler: h}
}

// Script returns a Handler that matches command lines exactly and fails on anything unknown.
func Script(results map[string]Result) Handler {
	return func(cmdline string) (Result, error) {
		r, ok := results[cmdline]
		if !ok {
			return Result{}, errors.Errorf("unexpected command line %q", cmdline)
		}
		return r, nil
	}
}

func (s *Starter) Start(ctx context.Context, cmdline string) (runner.Process, error) {
	s.mu.Lock()
	s.lines = append(s.lines, cmdline)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.Handler(cmdline)
	if err != nil {
		return nil, err
	}
	p := newProcess(res)
	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()
	return p, nil
}

// Lines returns the command lines started so far.
func (s *Starter) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Count returns how many started command lines contain substr.
func (s *Starter) Count(substr string) int {
	n := 0
	for _, l := range s.Lines() {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

// Processes returns the processes started so far.
func (s *Starter) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.procs...)
}

// Process is a scripted runner.Process.
type Process struct {
	res    Result
	stdout io.Reader
	stderr io.Reader

	blockOut *io.PipeWriter
	killed   chan struct{}
	once     sync.Once

	mu     sync.Mutex
	closed bool
}

func newProcess(res Result) *Process {
	p := &Process{res: res, killed: make(chan struct{})}
	p.stderr = strings.NewReader(res.Stderr)
	if res.Block {
		pr, pw := io.Pipe()
		p.blockOut = pw
		p.stdout = pr
		go func() { _, _ = io.WriteString(pw, res.Stdout) }()
	} else {
		p.stdout = strings.NewReader(res.Stdout)
	}
	return p
}

func (p *Process) Stdout() io.Reader { return p.stdout }
func (p *Process) Stderr() io.Reader { return p.stderr }

func (p *Process) Wait() (int, error) {
	if p.res.Block {
		<-p.killed
		return 0, errors.Wrap(runner.ErrMissingExitCode, "killed")
	}
	if p.res.WaitErr != nil {
		return 0, p.res.WaitErr
	}
	return p.res.ExitCode, nil
}

func (p *Process) Kill() error {
	p.once.Do(func() {
		close(p.killed)
		if p.blockOut != nil {
			_ = p.blockOut.Close()
		}
	})
	return nil
}

func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Killed reports whether Kill was called.
func (p *Process) Killed() bool {
	select {
	case <-p.killed:
		return true
	default:
		return false
	}
}

// Closed reports whether Close was called.
func (p *Process) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
