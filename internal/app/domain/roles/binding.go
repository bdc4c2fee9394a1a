package roles

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

// State is a point-in-time view of a Binding.
type State struct {
	Email   string
	Loading bool
	Record  *models.RoleRecord
	Err     error
}

// Binding tracks the role record of one client's current email. Results of a
// lookup started for an earlier email or generation are dropped.
type Binding struct {
	resolver *Resolver
	fetcher  Fetcher
	owner    string
	logger   *zap.Logger

	mu      sync.Mutex
	email   string
	gen     uint64
	loading bool
	record  *models.RoleRecord
	err     error
	cancel  context.CancelFunc
	unsub   func()
	changed chan struct{}
	closed  bool
}

func NewBinding(resolver *Resolver, fetcher Fetcher, owner string, logger *zap.Logger) *Binding {
	return &Binding{
		resolver: resolver,
		fetcher:  fetcher,
		owner:    owner,
		logger:   logger.With(zap.String("component", "roles.Binding"), zap.String("owner", owner)),
		changed:  make(chan struct{}),
	}
}

// Bind points the binding at email. An empty email settles immediately with
// no record and no lookup. Binding the current email again is a no-op.
func (b *Binding) Bind(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || (email == b.email && (b.loading || b.record != nil || email == "")) {
		return
	}

	b.stopLocked()
	b.email = email
	b.record = nil
	b.err = nil

	if email == "" {
		b.loading = false
		b.notifyLocked()
		return
	}

	b.unsub = b.resolver.Subscribe(email, func() { b.refresh(email) })
	b.startLocked(email)
}

// refresh re-resolves after an invalidation, keeping the previous record if
// the new lookup fails.
func (b *Binding) refresh(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.email != email {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.startLocked(email)
}

func (b *Binding) startLocked(email string) {
	b.gen++
	gen := b.gen
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.loading = true
	b.notifyLocked()

	go b.fetch(ctx, gen, email)
}

func (b *Binding) fetch(ctx context.Context, gen uint64, email string) {
	rec, err := b.resolver.Resolve(ctx, b.owner, b.fetcher, email)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || gen != b.gen {
		b.logger.Debug("Discarding superseded role lookup", zap.String("email", email))
		return
	}
	b.loading = false
	if err != nil {
		b.logger.Warn("Role lookup failed", zap.String("email", email), zap.Error(err))
		b.err = err
	} else {
		b.record = rec
		b.err = nil
	}
	b.notifyLocked()
}

func (b *Binding) stopLocked() {
	b.gen++
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
}

func (b *Binding) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Binding) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{Email: b.email, Loading: b.loading, Record: b.record.Clone(), Err: b.err}
}

// Wait blocks until no lookup is in flight or ctx ends.
func (b *Binding) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		if !b.loading || b.closed {
			b.mu.Unlock()
			return nil
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.stopLocked()
	b.closed = true
	b.loading = false
	b.notifyLocked()
}
