package langserver

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ferrule-dev/ferrule/errors"
)

// Manager keeps at most one live client per language. Clients are created
// lazily on first request; concurrent requests for the same language share
// a single spawn and handshake.
type Manager struct {
	log  *zap.SugaredLogger
	cfgs map[string]Config

	mu      sync.RWMutex
	clients map[string]*Client

	// newClient is swapped by tests to hand out scripted clients
	newClient func(cfg Config, log *zap.SugaredLogger) *Client
}

// NewManager builds a manager over the configured servers, keyed by
// language id.
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

// GetClient returns the connected client for a language, spawning and
// handshaking it on first use. A client that fails to connect is not
// stored; the next caller starts from scratch.
func (m *Manager) GetClient(ctx context.Context, language string) (*Client, error) {
	m.mu.RLock()
	client, ok := m.clients[language]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Someone else may have won the race while we waited for the lock
	if client, ok := m.clients[language]; ok {
		return client, nil
	}

	cfg, ok := m.cfgs[language]
	if !ok {
		return nil, errors.NewNotFoundf("no language server configured for %q", language)
	}

	client = m.newClient(cfg, m.log)
	if err := client.Connect(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s language server", language)
	}

	m.clients[language] = client
	return client, nil
}

// GetClientForPath routes a file to its language's client
func (m *Manager) GetClientForPath(ctx context.Context, path string) (*Client, error) {
	language, err := LanguageForPath(path)
	if err != nil {
		return nil, err
	}
	return m.GetClient(ctx, language)
}

// Hover routes a hover request to the client responsible for path
func (m *Manager) Hover(ctx context.Context, path string, line, character int) (*Hover, error) {
	client, err := m.GetClientForPath(ctx, path)
	if err != nil {
		return nil, err
	}
	return client.Hover(ctx, path, line, character)
}

// Definition routes a definition request to the client responsible for path
func (m *Manager) Definition(ctx context.Context, path string, line, character int) ([]Location, error) {
	client, err := m.GetClientForPath(ctx, path)
	if err != nil {
		return nil, err
	}
	return client.Definition(ctx, path, line, character)
}

// References routes a references request to the client responsible for path
func (m *Manager) References(ctx context.Context, path string, line, character int, includeDeclaration bool) ([]Location, error) {
	client, err := m.GetClientForPath(ctx, path)
	if err != nil {
		return nil, err
	}
	return client.References(ctx, path, line, character, includeDeclaration)
}

// Languages lists the configured language ids
func (m *Manager) Languages() []string {
	langs := make([]string, 0, len(m.cfgs))
	for lang := range m.cfgs {
		langs = append(langs, lang)
	}
	return langs
}

// Clients snapshots the live clients by language
func (m *Manager) Clients() map[string]*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Client, len(m.clients))
	for lang, client := range m.clients {
		out[lang] = client
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
	for language, client := range clients {
		g.Go(func() error {
			if err := client.Stop(ctx); err != nil {
				return errors.Wrapf(err, "failed to stop %s language server", language)
			}
			m.log.Debugw("language server stopped", "language", language)
			return nil
		})
	}
	return g.Wait()
}
