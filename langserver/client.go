package langserver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/jsonrpc"
	"github.com/ferrule-dev/ferrule/transport"
)

// ErrNotConnected is returned for document operations on a client that has
// no live connection.
var ErrNotConnected = errors.New("language server not connected")

// Reconnect policy defaults. Config zero values resolve to these.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// State is the connection lifecycle of a client
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config describes one language server and its reconnect policy
type Config struct {
	// Language is the LSP language id this server handles, e.g. "go"
	Language string

	// Command is the server executable; Args its flags
	Command string
	Args    []string

	// RootDir is the workspace root sent in the initialize handshake.
	// Empty means the current directory.
	RootDir string

	// Env are extra environment variables for the server process
	Env map[string]string

	// MaxRetries is how many reconnect attempts follow a failed first
	// attempt. Zero means DefaultMaxRetries; negative disables retries.
	MaxRetries int

	// InitialBackoff seeds the exponential backoff between attempts;
	// MaxBackoff caps it. Zero values take the defaults.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.RootDir == "" {
		cfg.RootDir = "."
	}
	if abs, err := filepath.Abs(cfg.RootDir); err == nil {
		cfg.RootDir = abs
	}
	return cfg
}

// Client is a reconnecting language server connection. State transitions
// are serialized under the client mutex; document operations live in
// ops.go.
type Client struct {
	cfg Config
	log *zap.SugaredLogger

	mu    sync.Mutex
	state State
	tr    *transport.Transport
	conn  *Conn
	docs  map[string]struct{}

	// dial and sleep are swapped by tests to script connection attempts
	// and observe backoff delays
	dial  func(ctx context.Context) (*transport.Transport, *Conn, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client for the given server. Nothing is spawned until
// Connect.
func NewClient(cfg Config, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Client{
		cfg:  cfg.withDefaults(),
		log:  log,
		docs: make(map[string]struct{}),
	}
	c.dial = c.dialServer
	c.sleep = sleepCtx
	return c
}

// Connect establishes the connection, retrying with exponential backoff
// per the configured policy. If a connect is already in flight the call
// returns immediately; an already-connected client is left alone. Exhausted
// retries leave the client Failed and surface ErrConnectionFailed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	tr, conn := c.tr, c.conn
	c.tr, c.conn = nil, nil
	c.docs = make(map[string]struct{})
	c.mu.Unlock()

	// Drop whatever is left of a previous life before spawning anew
	c.shutdownPair(ctx, tr, conn)

	attempts := 0
	for {
		tr, conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.tr, c.conn = tr, conn
			c.state = StateConnected
			c.mu.Unlock()
			go c.watch(conn)
			c.log.Infow("language server connected",
				"language", c.cfg.Language,
				"command", c.cfg.Command,
				"attempts", attempts+1)
			return nil
		}

		if attempts >= c.cfg.MaxRetries {
			c.setState(StateFailed)
			return errors.Wrapf(errors.ErrConnectionFailed,
				"giving up on %s after %d attempts: %v", c.cfg.Command, attempts+1, err)
		}

		delay := backoffDelay(attempts, c.cfg.InitialBackoff, c.cfg.MaxBackoff)
		c.log.Warnw("language server connect failed, retrying",
			"language", c.cfg.Language,
			"command", c.cfg.Command,
			"attempt", attempts+1,
			"backoff", delay,
			"error", err)

		if serr := c.sleep(ctx, delay); serr != nil {
			c.setState(StateFailed)
			return errors.Wrapf(errors.ErrConnectionFailed,
				"connect to %s aborted: %v", c.cfg.Command, serr)
		}
		attempts++
	}
}

// Stop tears the connection down from any state: polite LSP goodbye,
// process termination, read goroutine joined, pending requests rejected.
// The client ends Disconnected and may Connect again later.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	tr, conn := c.tr, c.conn
	c.tr, c.conn = nil, nil
	c.docs = make(map[string]struct{})
	c.state = StateDisconnected
	c.mu.Unlock()

	return c.shutdownPair(ctx, tr, conn)
}

// IsAlive probes the server with a benign request. A JSON-RPC error
// response still proves the server is reading and answering; only a dead
// connection flips the client to Failed. Never returns an error.
func (c *Client) IsAlive(ctx context.Context) bool {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return false
	}

	_, err := conn.Call(ctx, "$/ping", nil)
	if err == nil {
		return true
	}
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return true
	}

	c.mu.Lock()
	if c.conn == conn {
		c.state = StateFailed
	}
	c.mu.Unlock()
	c.log.Warnw("language server liveness probe failed",
		"language", c.cfg.Language,
		"error", err)
	return false
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Language returns the language id this client serves
func (c *Client) Language() string {
	return c.cfg.Language
}

// Pid returns the server's process id, or 0 when not running
func (c *Client) Pid() int {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return 0
	}
	return tr.Pid()
}

// PendingCount reports requests awaiting responses on the live connection
func (c *Client) PendingCount() int {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0
	}
	return conn.PendingCount()
}

// dialServer spawns the process, wires the connection, and runs the LSP
// initialize handshake. A handshake failure tears the process back down;
// callers never see a half-initialized connection.
func (c *Client) dialServer(ctx context.Context) (*transport.Transport, *Conn, error) {
	tr := transport.New(transport.Config{
		Command: c.cfg.Command,
		Args:    c.cfg.Args,
		Dir:     c.cfg.RootDir,
		Env:     c.cfg.Env,
	}, c.log)

	if err := tr.Start(ctx); err != nil {
		return nil, nil, err
	}

	conn := NewConn(tr.Reader(), tr, c.serverMessage, c.log)
	if err := c.handshake(ctx, conn); err != nil {
		_ = tr.Stop(ctx)
		conn.Close()
		return nil, nil, err
	}
	return tr, conn, nil
}

func (c *Client) handshake(ctx context.Context, conn *Conn) error {
	params := map[string]interface{}{
		"processId": os.Getpid(),
		"rootUri":   "file://" + c.cfg.RootDir,
		"capabilities": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"definition": map[string]interface{}{
					"linkSupport": true,
				},
				"references": map[string]interface{}{},
				"hover": map[string]interface{}{
					"contentFormat": []string{"markdown", "plaintext"},
				},
			},
		},
	}

	if _, err := conn.Call(ctx, "initialize", params); err != nil {
		return errors.Wrapf(err, "initialize failed for %s", c.cfg.Command)
	}
	if err := conn.Notify("initialized", struct{}{}); err != nil {
		return errors.Wrapf(err, "initialized notification failed for %s", c.cfg.Command)
	}
	return nil
}

// shutdownPair closes one transport/conn pair: polite shutdown call, exit
// notification, process stop, read goroutine join. Tolerates nil halves and
// dead servers.
func (c *Client) shutdownPair(ctx context.Context, tr *transport.Transport, conn *Conn) error {
	if conn != nil {
		goodbyeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, _ = conn.Call(goodbyeCtx, "shutdown", nil)
		_ = conn.Notify("exit", nil)
		cancel()
	}

	var err error
	if tr != nil {
		err = tr.Stop(ctx)
	}
	if conn != nil {
		conn.Close()
	}
	return err
}

// watch flips a connected client to Disconnected when its connection dies
// underneath it. A stale watcher from a replaced connection does nothing.
func (c *Client) watch(conn *Conn) {
	<-conn.Done()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn && c.state == StateConnected {
		c.state = StateDisconnected
		c.log.Warnw("language server connection lost",
			"language", c.cfg.Language,
			"command", c.cfg.Command)
	}
}

// serverMessage is the sink for server-initiated traffic. Language servers
// publish diagnostics and log chatter we have no use for yet.
func (c *Client) serverMessage(msg *jsonrpc.Message) {
	c.log.Debugw("server message",
		"language", c.cfg.Language,
		"method", msg.Method)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// connected returns the live connection or ErrNotConnected
func (c *Client) connected() (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return nil, errors.Wrapf(ErrNotConnected, "%s server is %s", c.cfg.Language, c.state)
	}
	return c.conn, nil
}

// backoffDelay is the sleep before retry number attempt+1: the initial
// backoff doubled per attempt, capped at max.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	d := initial << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
