// Package session keeps the signed-in state of every browser client and
// keeps the backend session cookie in step with it.
//
// Each client has one Source. The identity provider notifies the Source of
// every identity change; the Source then establishes (POST /jwt) or tears
// down (POST /logout) the backend session and only settles once that call
// has completed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain/identity"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/roles"
	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/observability/metrics"
	"github.com/FACorreiaa/go-loanhub/internal/app/services/backend"
)

// LoginPath is where a client lands after the backend rejects its credentials.
const LoginPath = "/login"

var ErrSessionNotEstablished = errors.New("backend session could not be established")

type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseEstablishing
	PhaseTearingDown
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseEstablishing:
		return "ESTABLISHING_SESSION"
	case PhaseTearingDown:
		return "TEARING_DOWN"
	case PhaseSettled:
		return "SETTLED"
	default:
		return "UNKNOWN"
	}
}

// AuthProviderError is returned by the mutators when the identity provider
// rejects the call.
type AuthProviderError struct {
	Op  string
	Err error
}

func (e *AuthProviderError) Error() string {
	return fmt.Sprintf("identity provider %s: %v", e.Op, e.Err)
}

func (e *AuthProviderError) Unwrap() error { return e.Err }

// State is a point-in-time view of a Source.
type State struct {
	Identity *models.Identity
	Loading  bool
	Phase    Phase
	// Err is the last establishment failure. It survives the sign-out that
	// follows it and is cleared by the next successful establishment.
	Err error
}

type Source struct {
	id       string
	provider identity.Provider
	api      *backend.Client
	roles    *roles.Binding
	logger   *zap.Logger

	mu       sync.Mutex
	identity *models.Identity
	phase    Phase
	busy     int
	err      error
	gen      uint64
	cancel   context.CancelFunc
	changed  chan struct{}
	closed   bool
	unhook   func()
}

func newSource(id string, provider identity.Provider, api *backend.Client, binding *roles.Binding, logger *zap.Logger) *Source {
	s := &Source{
		id:       id,
		provider: provider,
		api:      api,
		roles:    binding,
		logger:   logger.With(zap.String("component", "session.Source"), zap.String("client_id", id)),
		changed:  make(chan struct{}),
	}
	s.unhook = api.OnAuthFailure(s.handleAuthFailure)
	return s
}

func (s *Source) ID() string { return s.id }

// API is the credentialed backend client of this browser client.
func (s *Source) API() *backend.Client { return s.api }

// Roles is the role binding of this browser client.
func (s *Source) Roles() *roles.Binding { return s.roles }

func (s *Source) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Identity: s.identity.Clone(),
		Loading:  s.loadingLocked(),
		Phase:    s.phase,
		Err:      s.err,
	}
}

func (s *Source) loadingLocked() bool {
	return s.phase != PhaseSettled || s.busy > 0
}

// Wait blocks until the Source is no longer loading or ctx ends.
func (s *Source) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.loadingLocked() || s.closed {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleIdentity starts the transition task for a new identity notification,
// cancelling whichever task is still running.
func (s *Source) handleIdentity(id *models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	previous := s.identity
	s.identity = id.Clone()
	if id == nil || previous == nil || previous.Email != id.Email {
		s.roles.Bind("")
	}

	switch {
	case id != nil:
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.phase = PhaseEstablishing
		go s.establish(ctx, gen, id.Email)
	case s.api.HasSession():
		s.startTeardownLocked(gen)
	default:
		s.phase = PhaseSettled
	}
	s.logger.Debug("Identity changed", zap.Bool("signed_in", id != nil), zap.Stringer("phase", s.phase))
	s.notifyLocked()
}

func (s *Source) establish(ctx context.Context, gen uint64, email string) {
	l := s.logger.With(zap.String("method", "establish"), zap.String("email", email))
	err := s.api.EstablishSession(ctx, email)

	s.mu.Lock()
	if s.closed || gen != s.gen {
		// A late /jwt response can leave a cookie behind after sign-out.
		if !s.closed && s.identity == nil && s.phase == PhaseSettled && s.api.HasSession() {
			s.gen++
			s.startTeardownLocked(s.gen)
			s.notifyLocked()
		}
		s.mu.Unlock()
		l.Debug("Discarding superseded establish result")
		return
	}
	if err == nil {
		s.phase = PhaseSettled
		s.err = nil
		s.roles.Bind(email)
		s.notifyLocked()
		s.mu.Unlock()
		metrics.Get().SessionTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", "establish")))
		l.Info("Backend session established")
		return
	}
	s.err = fmt.Errorf("%w: %w", ErrSessionNotEstablished, err)
	s.mu.Unlock()

	l.Error("Failed to establish backend session, signing out", zap.Error(err))
	metrics.Get().SessionTransitions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("transition", "establish_failed")))
	if err := s.provider.SignOut(context.Background(), s.id); err != nil {
		l.Warn("Sign-out after failed establishment was rejected", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	// The provider had nothing to publish; clear the identity ourselves.
	s.identity = nil
	s.phase = PhaseSettled
	s.roles.Bind("")
	s.notifyLocked()
}

func (s *Source) startTeardownLocked(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.phase = PhaseTearingDown
	go s.teardown(ctx, gen)
}

func (s *Source) teardown(ctx context.Context, gen uint64) {
	l := s.logger.With(zap.String("method", "teardown"))
	if err := s.api.EndSession(ctx); err != nil {
		l.Warn("Backend logout failed", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		l.Debug("Discarding superseded teardown result")
		return
	}
	s.phase = PhaseSettled
	s.notifyLocked()
	metrics.Get().SessionTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", "teardown")))
}

// run wraps one mutator call so that Loading is reported for its whole
// duration and provider failures come back as *AuthProviderError.
func (s *Source) run(op string, fn func() error) error {
	s.mu.Lock()
	s.busy++
	s.notifyLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy--
		s.notifyLocked()
		s.mu.Unlock()
	}()

	if err := fn(); err != nil {
		s.logger.Debug("Identity provider rejected call", zap.String("op", op), zap.Error(err))
		return &AuthProviderError{Op: op, Err: err}
	}
	return nil
}

func (s *Source) clearErr() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

func (s *Source) CreateAccount(ctx context.Context, email, password string) (*models.Identity, error) {
	s.clearErr()
	var id *models.Identity
	err := s.run("createAccount", func() error {
		var err error
		id, err = s.provider.CreateAccount(ctx, s.id, email, password)
		return err
	})
	return id, err
}

func (s *Source) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	s.clearErr()
	var id *models.Identity
	err := s.run("signIn", func() error {
		var err error
		id, err = s.provider.SignIn(ctx, s.id, email, password)
		return err
	})
	return id, err
}

func (s *Source) SignInFederated(ctx context.Context, cred models.FederatedCredential) (*models.Identity, error) {
	s.clearErr()
	var id *models.Identity
	err := s.run("signInFederated", func() error {
		var err error
		id, err = s.provider.SignInFederated(ctx, s.id, cred)
		return err
	})
	return id, err
}

// SignOut signs the client out. Signing out while signed out succeeds, and a
// rejected sign-out leaves the local state untouched.
func (s *Source) SignOut(ctx context.Context) error {
	if err := s.run("signOut", func() error { return s.provider.SignOut(ctx, s.id) }); err != nil {
		return err
	}

	s.mu.Lock()
	stale := s.identity != nil && !s.closed
	s.mu.Unlock()
	if stale {
		s.handleIdentity(nil)
	}
	return nil
}

// UpdateProfile changes display name and photo. The provider does not
// publish profile edits, so the Source updates its own identity.
func (s *Source) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.Identity, error) {
	var id *models.Identity
	err := s.run("updateProfile", func() error {
		var err error
		id, err = s.provider.UpdateProfile(ctx, s.id, upd)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.identity != nil && s.identity.UID == id.UID {
		s.identity = id.Clone()
		s.notifyLocked()
	}
	s.mu.Unlock()
	return id, nil
}

// handleAuthFailure is the backend client's 401/403 hook: send the browser to
// the login page, then sign out. A failing sign-out is logged and the local
// identity is dropped anyway.
func (s *Source) handleAuthFailure(ctx context.Context, f backend.AuthFailure) {
	l := s.logger.With(zap.String("method", "handleAuthFailure"), zap.String("path", f.Path), zap.Int("status", f.StatusCode))
	l.Warn("Backend rejected credentials, forcing sign-out")
	metrics.Get().ForcedSignOuts.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", f.StatusCode)))

	NavigatorFrom(ctx).Navigate(LoginPath)

	if err := s.SignOut(backend.WithoutInterception(ctx)); err != nil {
		l.Warn("Forced sign-out failed", zap.Error(err))
		s.handleIdentity(nil)
	}
}

func (s *Source) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Close stops the running task and releases the client. The Source ignores
// every later notification.
func (s *Source) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.unhook()
	s.roles.Close()
	s.provider.Release(s.id)
}
