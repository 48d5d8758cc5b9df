// Package toolserver manages stdio MCP tool server processes: spawning,
// the initialize handshake, tool calls with reconnect-and-retry, and
// teardown. It is the MCP sibling of the langserver package.
package toolserver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/version"
)

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

// Config describes one MCP tool server and its reconnect policy
type Config struct {
	// Name identifies the server in logs, CLI output, and tool routing
	Name string

	// Command is the server executable; Args its flags
	Command string
	Args    []string

	// Env are extra environment variables for the server process
	Env map[string]string

	// Enabled servers are started by Manager.StartAll. Disabled ones stay
	// configured but dormant.
	Enabled bool

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
	return cfg
}

// session is the live MCP connection surface the client drives. The real
// implementation is an mcp-go stdio client; tests substitute scripted ones.
type session interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	Ping(ctx context.Context) error
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context, req mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	ReadResource(ctx context.Context, req mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
	OnNotification(handler func(notification mcp.JSONRPCNotification))
	Close() error
}

// Client is a reconnecting connection to one MCP tool server
type Client struct {
	cfg Config
	log *zap.SugaredLogger

	mu    sync.Mutex
	state State
	sess  session

	notifyMu sync.Mutex
	notify   func(mcp.JSONRPCNotification)

	// dial and sleep are swapped by tests to script connection attempts
	// and observe backoff delays
	dial  func(ctx context.Context) (session, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client for the given server. Nothing is spawned until
// Connect.
func NewClient(cfg Config, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Client{
		cfg: cfg.withDefaults(),
		log: log,
	}
	c.dial = c.dialServer
	c.sleep = sleepCtx
	return c
}

// Connect establishes the session, retrying with exponential backoff per
// the configured policy. If a connect is already in flight the call returns
// immediately; an already-connected client is left alone. Exhausted retries
// leave the client Failed and surface ErrConnectionFailed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	old := c.sess
	c.sess = nil
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	attempts := 0
	for {
		sess, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.sess = sess
			c.state = StateConnected
			c.mu.Unlock()
			c.log.Infow("tool server connected",
				"server", c.cfg.Name,
				"command", c.cfg.Command,
				"attempts", attempts+1)
			return nil
		}

		if attempts >= c.cfg.MaxRetries {
			c.setState(StateFailed)
			return errors.Wrapf(errors.ErrConnectionFailed,
				"giving up on %s after %d attempts: %v", c.cfg.Name, attempts+1, err)
		}

		delay := backoffDelay(attempts, c.cfg.InitialBackoff, c.cfg.MaxBackoff)
		c.log.Warnw("tool server connect failed, retrying",
			"server", c.cfg.Name,
			"command", c.cfg.Command,
			"attempt", attempts+1,
			"backoff", delay,
			"error", err)

		if serr := c.sleep(ctx, delay); serr != nil {
			c.setState(StateFailed)
			return errors.Wrapf(errors.ErrConnectionFailed,
				"connect to %s aborted: %v", c.cfg.Name, serr)
		}
		attempts++
	}
}

// Stop closes the session and terminates the server process. The client
// ends Disconnected and may Connect again later.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := sess.Close(); err != nil {
		return errors.Wrapf(err, "failed to stop %s", c.cfg.Name)
	}
	return nil
}

// CallTool invokes a tool by name, connecting first if the client is not
// yet connected. A transport failure triggers exactly one reconnect and one
// retry; a second failure marks the client Failed and surfaces the error.
// Tool-level failures come back as results with IsError set and are not
// retried.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := sess.CallTool(ctx, req)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, errors.Wrapf(err, "tool %s on %s", name, c.cfg.Name)
	}

	// The server may have died underneath us; heal the session once
	c.log.Warnw("tool call failed, reconnecting",
		"server", c.cfg.Name,
		"tool", name,
		"error", err)
	if rerr := c.reconnect(ctx); rerr != nil {
		return nil, rerr
	}
	sess, err = c.session()
	if err != nil {
		return nil, err
	}

	res, err = sess.CallTool(ctx, req)
	if err != nil {
		c.setState(StateFailed)
		return nil, errors.Wrapf(err, "tool %s on %s failed after reconnect", name, c.cfg.Name)
	}
	return res, nil
}

// ListTools returns every tool the server advertises, following cursor
// pagination to the end.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}

	var all []mcp.Tool
	var cursor mcp.Cursor
	for {
		req := mcp.ListToolsRequest{}
		req.Params.Cursor = cursor
		res, err := sess.ListTools(ctx, req)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools on %s", c.cfg.Name)
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return all, nil
}

// ListResources returns every resource the server advertises, following
// cursor pagination to the end.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}

	var all []mcp.Resource
	var cursor mcp.Cursor
	for {
		req := mcp.ListResourcesRequest{}
		req.Params.Cursor = cursor
		res, err := sess.ListResources(ctx, req)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list resources on %s", c.cfg.Name)
		}
		all = append(all, res.Resources...)
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return all, nil
}

// ReadResource fetches one resource by URI
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}

	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	res, err := sess.ReadResource(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s on %s", uri, c.cfg.Name)
	}
	return res, nil
}

// IsAlive pings the server. A failed ping flips the client to Failed.
// Never returns an error.
func (c *Client) IsAlive(ctx context.Context) bool {
	c.mu.Lock()
	sess := c.sess
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || sess == nil {
		return false
	}
	if err := sess.Ping(ctx); err != nil {
		c.mu.Lock()
		if c.sess == sess {
			c.state = StateFailed
		}
		c.mu.Unlock()
		c.log.Warnw("tool server ping failed",
			"server", c.cfg.Name,
			"error", err)
		return false
	}
	return true
}

// OnNotification registers a handler for server-initiated notifications.
// Notifications arriving before registration are only logged.
func (c *Client) OnNotification(handler func(mcp.JSONRPCNotification)) {
	c.notifyMu.Lock()
	c.notify = handler
	c.notifyMu.Unlock()
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Name returns the configured server name
func (c *Client) Name() string {
	return c.cfg.Name
}

// reconnect forces a fresh session regardless of the current state
func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	if c.state == StateConnected {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
	return c.Connect(ctx)
}

// dialServer spawns the process and runs the MCP initialize handshake. A
// handshake failure tears the process back down.
func (c *Client) dialServer(ctx context.Context) (session, error) {
	env := make([]string, 0, len(c.cfg.Env))
	for k, v := range c.cfg.Env {
		env = append(env, k+"="+v)
	}

	sess, err := client.NewStdioMCPClient(c.cfg.Command, env, c.cfg.Args...)
	if err != nil {
		return nil, errors.WrapTransport(err, "failed to start "+c.cfg.Command)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "ferrule",
		Version: version.Version,
	}
	if _, err := sess.Initialize(ctx, req); err != nil {
		_ = sess.Close()
		return nil, errors.Wrapf(err, "initialize failed for %s", c.cfg.Name)
	}

	sess.OnNotification(c.notification)
	return sess, nil
}

// notification is the sink for server-initiated traffic
func (c *Client) notification(n mcp.JSONRPCNotification) {
	c.log.Debugw("tool server notification",
		"server", c.cfg.Name,
		"method", n.Method)

	c.notifyMu.Lock()
	handler := c.notify
	c.notifyMu.Unlock()
	if handler != nil {
		handler(n)
	}
}

// session returns the live session or ErrConnectionClosed
func (c *Client) session() (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.sess == nil {
		return nil, errors.Wrapf(errors.ErrConnectionClosed,
			"%s tool server is %s", c.cfg.Name, c.state)
	}
	return c.sess, nil
}

// ensureSession returns the live session, connecting first when there is
// none. A connect already in flight on another goroutine is not waited for;
// the caller sees ErrConnectionClosed and may try again.
func (c *Client) ensureSession(ctx context.Context) (session, error) {
	sess, err := c.session()
	if err == nil {
		return sess, nil
	}
	if cerr := c.Connect(ctx); cerr != nil {
		return nil, cerr
	}
	return c.session()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ResultText flattens a tool result's text content into one string
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
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
