package toolserver

import (
	"context"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ferrule-dev/ferrule/errors"
)

// Manager keeps at most one live client per configured tool server.
// Clients are created lazily on first request; StartAll warms the enabled
// ones up front.
type Manager struct {
	log  *zap.SugaredLogger
	cfgs map[string]Config

	mu      sync.RWMutex
	clients map[string]*Client

	// newClient is swapped by tests to hand out scripted clients
	newClient func(cfg Config, log *zap.SugaredLogger) *Client
}

// NewManager builds a manager over the configured servers, keyed by name
func NewManager(cfgs map[string]Config, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		log:       log,
		cfgs:      cfgs,
		clients:   make(map[string]*Client),
		newClient: NewClient,
	}
}

// StartAll connects every enabled server concurrently. A server that fails
// to come up is logged and skipped; the rest keep going. Disabled servers
// are never touched.
func (m *Manager) StartAll(ctx context.Context) {
	var wg sync.WaitGroup
	for name, cfg := range m.cfgs {
		if !cfg.Enabled {
			m.log.Debugw("tool server disabled", "server", name)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.GetClient(ctx, name); err != nil {
				m.log.Warnw("tool server unavailable",
					"server", name,
					"error", err)
			}
		}()
	}
	wg.Wait()
}

// GetClient returns the connected client for a server, spawning and
// handshaking it on first use. A client that fails to connect is not
// stored; the next caller starts from scratch.
func (m *Manager) GetClient(ctx context.Context, name string) (*Client, error) {
	m.mu.RLock()
	client, ok := m.clients[name]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Someone else may have won the race while we waited for the lock
	if client, ok := m.clients[name]; ok {
		return client, nil
	}

	cfg, ok := m.cfgs[name]
	if !ok {
		return nil, errors.NewNotFoundf("no tool server configured as %q", name)
	}

	client = m.newClient(cfg, m.log)
	if err := client.Connect(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s tool server", name)
	}

	m.clients[name] = client
	return client, nil
}

// Get returns an already-running client without spawning anything
func (m *Manager) Get(name string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[name]
	if !ok {
		return nil, errors.NewNotFoundf("tool server %q is not running", name)
	}
	return client, nil
}

// CallTool routes a tool call to the named server, starting it on demand
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	client, err := m.GetClient(ctx, server)
	if err != nil {
		return nil, err
	}
	return client.CallTool(ctx, tool, args)
}

// Names lists the configured server names, sorted
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.cfgs))
	for name := range m.cfgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clients snapshots the live clients by server name
func (m *Manager) Clients() map[string]*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Client, len(m.clients))
	for name, client := range m.clients {
		out[name] = client
	}
	return out
}

// StopAll stops every live client concurrently and clears the registry.
// The first stop error is returned; the rest still run to completion.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	var g errgroup.Group
	for name, client := range clients {
		g.Go(func() error {
			if err := client.Stop(ctx); err != nil {
				return errors.Wrapf(err, "failed to stop %s tool server", name)
			}
			m.log.Debugw("tool server stopped", "server", name)
			return nil
		})
	}
	return g.Wait()
}
