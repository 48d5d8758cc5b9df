// Package transport spawns stdio server processes and owns their lifecycle:
// pipe plumbing, serialized writes, stderr draining, and termination. It
// carries raw bytes only; framing and correlation live above it.
package transport

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ferrule-dev/ferrule/errors"
)

// stopTimeout bounds how long Stop waits for a server to exit on its own
// after stdin closes before killing it.
const stopTimeout = 5 * time.Second

// Config describes how to launch one server process
type Config struct {
	// Command is the executable to run
	Command string

	// Args are command-line arguments
	Args []string

	// Dir is the working directory; empty means inherit
	Dir string

	// Env are additional environment variables layered over os.Environ()
	Env map[string]string
}

// Transport owns a single child process and its stdio pipes.
//
// Write is serialized by an internal mutex: an interleaved partial frame
// would corrupt the stream for every request that follows, so frame writers
// above must emit whole frames per Write call.
type Transport struct {
	cfg Config
	log *zap.SugaredLogger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	started bool
	waitErr error

	writeMu sync.Mutex
	stopped atomic.Bool

	// done closes once the child has been reaped
	done chan struct{}
}

// New prepares a transport for the given command. Nothing is spawned until
// Start.
func New(cfg Config, log *zap.SugaredLogger) *Transport {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Transport{
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
	}
}

// Start spawns the configured command with piped stdin/stdout/stderr. The
// process lifetime is owned by Stop, not by ctx; ctx only aborts a spawn
// that has not happened yet.
func (t *Transport) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransport(err, "failed to start "+t.cfg.Command)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return errors.New("transport already started")
	}
	if t.stopped.Load() {
		return errors.Wrap(errors.ErrConnectionClosed, "transport stopped")
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	if t.cfg.Dir != "" {
		cmd.Dir = t.cfg.Dir
	}
	if len(t.cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range t.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.WrapTransport(err, "failed to create stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return errors.WrapTransport(err, "failed to create stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return errors.WrapTransport(err, "failed to create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return errors.WrapTransport(err, "failed to start "+t.cfg.Command)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.started = true

	go t.drainStderr(stderr)
	go t.wait()

	t.log.Debugw("started server process",
		"command", t.cfg.Command,
		"args", t.cfg.Args,
		"pid", cmd.Process.Pid)
	return nil
}

// Write sends raw bytes to the server's stdin. Concurrent writers are
// serialized; each call lands as one contiguous run of bytes.
func (t *Transport) Write(p []byte) (int, error) {
	if t.stopped.Load() {
		return 0, errors.Wrap(errors.ErrConnectionClosed, "transport stopped")
	}

	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return 0, errors.New("transport not started")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := stdin.Write(p)
	if err != nil {
		if t.stopped.Load() {
			return n, errors.Wrap(errors.ErrConnectionClosed, "transport stopped")
		}
		return n, errors.WrapTransport(err, "failed to write to server stdin")
	}
	return n, nil
}

// Reader exposes the server's stdout stream. It returns EOF once the
// process exits and its pipe drains.
func (t *Transport) Reader() io.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stdout
}

// Stop terminates the child and waits for it to be reaped. Closing stdin
// first gives a well-behaved server the chance to exit on its own; the kill
// lands only if it does not, or if ctx runs out first. Safe to call more
// than once; later calls wait for the first to finish.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.stopped.Store(true)
		t.mu.Unlock()
		return nil
	}
	first := !t.stopped.Swap(true)
	stdin := t.stdin
	cmd := t.cmd
	t.mu.Unlock()

	if !first {
		<-t.done
		return nil
	}

	if stdin != nil {
		_ = stdin.Close()
	}

	select {
	case <-t.done:
	case <-time.After(stopTimeout):
		t.log.Warnw("server did not exit, killing",
			"command", t.cfg.Command,
			"pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-t.done
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-t.done
	}

	t.log.Debugw("stopped server process", "command", t.cfg.Command)
	return nil
}

// Done is closed once the child process has exited and been reaped
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Pid returns the child's process id, or 0 before Start
func (t *Transport) Pid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Command returns the configured executable name
func (t *Transport) Command() string {
	return t.cfg.Command
}

// wait reaps the child. It is the only caller of cmd.Wait; Stop waits on
// the done channel instead.
func (t *Transport) wait() {
	err := t.cmd.Wait()

	t.mu.Lock()
	t.waitErr = err
	t.mu.Unlock()

	if err != nil && !t.stopped.Load() {
		t.log.Warnw("server process exited unexpectedly",
			"command", t.cfg.Command,
			"error", err)
	} else {
		t.log.Debugw("server process exited", "command", t.cfg.Command)
	}
	close(t.done)
}

// drainStderr logs the server's stderr line by line. Language servers chat
// on stderr constantly; leaving the pipe undrained would eventually block
// the child.
func (t *Transport) drainStderr(stderr io.Reader) {
	r := bufio.NewReader(stderr)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			t.log.Debugw("server stderr",
				"command", t.cfg.Command,
				"line", strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}
