package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain/identity"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/roles"
	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/observability/metrics"
	"github.com/FACorreiaa/go-loanhub/internal/app/services/backend"
)

// ClientFactory builds the backend client of a new browser client.
type ClientFactory func(clientID string) (*backend.Client, error)

// Manager owns the Source of every browser client. Sources idle for longer
// than the configured TTL are closed.
type Manager struct {
	provider  identity.Provider
	resolver  *roles.Resolver
	newClient ClientFactory
	logger    *zap.Logger

	mu      sync.Mutex
	sources *cache.Cache
	unsub   func()
}

func NewManager(provider identity.Provider, resolver *roles.Resolver, newClient ClientFactory, idleTTL time.Duration, logger *zap.Logger) *Manager {
	cleanup := idleTTL / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	m := &Manager{
		provider:  provider,
		resolver:  resolver,
		newClient: newClient,
		logger:    logger.With(zap.String("component", "session.Manager")),
		sources:   cache.New(idleTTL, cleanup),
	}
	m.sources.OnEvicted(func(id string, v any) {
		v.(*Source).Close()
		metrics.Get().ActiveSessions.Add(context.Background(), -1)
		m.logger.Debug("Session closed", zap.String("client_id", id))
	})
	m.unsub = provider.Subscribe(m.dispatch)
	return m
}

func (m *Manager) dispatch(clientID string, id *models.Identity) {
	v, ok := m.sources.Get(clientID)
	if !ok {
		return
	}
	v.(*Source).handleIdentity(id)
}

// Source returns the Source for clientID, creating it on first use. Every
// call extends the idle TTL.
func (m *Manager) Source(clientID string) (*Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.sources.Get(clientID); ok {
		s := v.(*Source)
		m.sources.SetDefault(clientID, s)
		return s, nil
	}
	// An expired entry the janitor has not swept yet is closed here.
	m.sources.Delete(clientID)

	api, err := m.newClient(clientID)
	if err != nil {
		return nil, fmt.Errorf("session: backend client for %s: %w", clientID, err)
	}
	s := newSource(clientID, m.provider, api, roles.NewBinding(m.resolver, api, clientID, m.logger), m.logger)
	m.sources.SetDefault(clientID, s)
	metrics.Get().ActiveSessions.Add(context.Background(), 1)

	s.handleIdentity(m.provider.Current(clientID))
	return s, nil
}

// Lookup returns an existing Source without creating one.
func (m *Manager) Lookup(clientID string) (*Source, bool) {
	v, ok := m.sources.Get(clientID)
	if !ok {
		return nil, false
	}
	return v.(*Source), true
}

func (m *Manager) Resolver() *roles.Resolver { return m.resolver }

// Close stops listening to the provider and closes every Source.
func (m *Manager) Close() {
	m.unsub()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources.DeleteExpired()
	for id := range m.sources.Items() {
		m.sources.Delete(id)
	}
}
