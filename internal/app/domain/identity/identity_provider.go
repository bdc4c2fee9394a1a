// Package identity is the identity provider: password and federated sign-in,
// profile updates, and a subscription that reports every identity change per
// browser client.
package identity

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/mail"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailInUse         = errors.New("email already in use")
	ErrNotSignedIn        = errors.New("not signed in")
	ErrFederationDisabled = errors.New("federated sign-in is not configured")
)

// Listener receives the new identity of a client, nil after sign-out.
type Listener func(clientID string, id *models.Identity)

// Provider implementations publish to listeners before the mutating call
// returns, so a caller that waits on its own state sees the transition.
type Provider interface {
	CreateAccount(ctx context.Context, clientID, email, password string) (*models.Identity, error)
	SignIn(ctx context.Context, clientID, email, password string) (*models.Identity, error)
	SignInFederated(ctx context.Context, clientID string, cred models.FederatedCredential) (*models.Identity, error)
	SignOut(ctx context.Context, clientID string) error
	UpdateProfile(ctx context.Context, clientID string, upd models.ProfileUpdate) (*models.Identity, error)
	Current(clientID string) *models.Identity
	// Release forgets a client without publishing.
	Release(clientID string)
	Subscribe(fn Listener) (unsubscribe func())
}

var _ Provider = (*LocalProvider)(nil)

type hub struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]Listener
}

func (h *hub) subscribe(fn Listener) func() {
	h.mu.Lock()
	if h.listeners == nil {
		h.listeners = make(map[uint64]Listener)
	}
	id := h.next
	h.next++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *hub) publish(clientID string, id *models.Identity) {
	h.mu.RLock()
	fns := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(clientID, id.Clone())
	}
}

// LocalProvider keeps accounts in a Repository and the signed-in identity of
// each browser client in memory.
type LocalProvider struct {
	repo     Repository
	verifier TokenVerifier
	logger   *zap.Logger
	hashCost int

	mu      sync.RWMutex
	clients map[string]*models.Identity
	hub     hub

	// order serialises the client table update and its publish per client,
	// so listeners see notifications in the order the table changed.
	order [orderStripes]sync.Mutex
}

const orderStripes = 64

func (p *LocalProvider) orderLock(clientID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return &p.order[h.Sum32()%orderStripes]
}

type ProviderOption func(*LocalProvider)

func WithHashCost(cost int) ProviderOption {
	return func(p *LocalProvider) { p.hashCost = cost }
}

// NewLocalProvider builds a provider. verifier may be nil, which disables
// federated sign-in.
func NewLocalProvider(repo Repository, verifier TokenVerifier, logger *zap.Logger, opts ...ProviderOption) *LocalProvider {
	p := &LocalProvider{
		repo:     repo,
		verifier: verifier,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
		clients:  make(map[string]*models.Identity),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *LocalProvider) CreateAccount(ctx context.Context, clientID, email, password string) (*models.Identity, error) {
	l := p.logger.With(zap.String("method", "CreateAccount"), zap.String("email", email))

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.hashCost)
	if err != nil {
		l.Error("Failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acct, err := p.repo.CreateAccount(ctx, email, string(hash))
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}

	l.Info("Account created", zap.String("uid", acct.ID))
	return p.signedIn(clientID, acct.Identity()), nil
}

func (p *LocalProvider) SignIn(ctx context.Context, clientID, email, password string) (*models.Identity, error) {
	l := p.logger.With(zap.String("method", "SignIn"), zap.String("email", email))

	acct, err := p.repo.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if acct.PasswordHash == "" {
		l.Debug("Password sign-in attempted on federated account")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if at, err := p.repo.TouchLogin(ctx, acct.ID); err != nil {
		l.Warn("Failed to record last login", zap.Error(err))
	} else {
		acct.LastLoginAt = at
	}

	return p.signedIn(clientID, acct.Identity()), nil
}

func (p *LocalProvider) SignInFederated(ctx context.Context, clientID string, cred models.FederatedCredential) (*models.Identity, error) {
	if p.verifier == nil {
		return nil, ErrFederationDisabled
	}
	profile, err := p.verifier.Verify(ctx, cred.IDToken)
	if err != nil {
		p.logger.Warn("Rejected federated token", zap.String("method", "SignInFederated"), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	acct, err := p.repo.UpsertFederated(ctx, *profile)
	if err != nil {
		return nil, err
	}
	return p.signedIn(clientID, acct.Identity()), nil
}

func (p *LocalProvider) SignOut(_ context.Context, clientID string) error {
	lock := p.orderLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	_, had := p.clients[clientID]
	delete(p.clients, clientID)
	p.mu.Unlock()

	if had {
		p.hub.publish(clientID, nil)
	}
	return nil
}

func (p *LocalProvider) UpdateProfile(ctx context.Context, clientID string, upd models.ProfileUpdate) (*models.Identity, error) {
	current := p.Current(clientID)
	if current == nil {
		return nil, ErrNotSignedIn
	}
	if err := p.repo.UpdateProfile(ctx, current.UID, upd); err != nil {
		return nil, err
	}
	if upd.DisplayName != nil {
		current.DisplayName = *upd.DisplayName
	}
	if upd.PhotoURL != nil {
		current.PhotoURL = *upd.PhotoURL
	}

	p.mu.Lock()
	if existing, ok := p.clients[clientID]; ok && existing.UID == current.UID {
		p.clients[clientID] = current.Clone()
	}
	p.mu.Unlock()
	return current, nil
}

func (p *LocalProvider) Current(clientID string) *models.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[clientID].Clone()
}

func (p *LocalProvider) Release(clientID string) {
	p.mu.Lock()
	delete(p.clients, clientID)
	p.mu.Unlock()
}

func (p *LocalProvider) Subscribe(fn Listener) func() {
	return p.hub.subscribe(fn)
}

func (p *LocalProvider) signedIn(clientID string, id *models.Identity) *models.Identity {
	lock := p.orderLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	p.clients[clientID] = id.Clone()
	p.mu.Unlock()

	p.hub.publish(clientID, id)
	return id
}
