// Package roles resolves the backend role record for a signed-in email.
//
// A single Resolver caches records by email for every browser client and
// notifies subscribers when an entry is invalidated. Each client holds one
// Binding that tracks the record for its current email; the route guards and
// the dashboard shell both read that Binding.
package roles

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/observability/metrics"
	"github.com/FACorreiaa/go-loanhub/internal/app/services/backend"
)

// Fetcher performs one role lookup with the caller's credentials.
type Fetcher interface {
	UserRole(ctx context.Context, email string) (*models.RoleRecord, error)
}

type Policy struct {
	Attempts   int
	Timeout    time.Duration
	RetryDelay time.Duration
}

type Resolver struct {
	cache  *cache.Cache
	group  singleflight.Group
	policy Policy
	logger *zap.Logger

	mu       sync.Mutex
	versions map[string]uint64
	subs     map[string]map[uint64]func()
	nextSub  uint64
}

func NewResolver(ttl time.Duration, policy Policy, logger *zap.Logger) *Resolver {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Resolver{
		cache:    cache.New(ttl, 2*ttl),
		policy:   policy,
		logger:   logger,
		versions: make(map[string]uint64),
		subs:     make(map[string]map[uint64]func()),
	}
}

// Resolve returns the cached record for email or fetches it with f.
// Concurrent calls from the same owner for the same email and cache version
// share one fetch. The shared fetch outlives a cancelled caller, which stops
// waiting and returns ctx.Err().
func (r *Resolver) Resolve(ctx context.Context, owner string, f Fetcher, email string) (*models.RoleRecord, error) {
	m := metrics.Get()
	if v, ok := r.cache.Get(email); ok {
		m.RoleResolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "cache")))
		return v.(*models.RoleRecord).Clone(), nil
	}

	version := r.version(email)
	key := fmt.Sprintf("%s|%s|%d", owner, email, version)
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		start := time.Now()

		var rec *models.RoleRecord
		err := backend.DoWithTries(flightCtx, r.policy.Attempts, r.policy.RetryDelay, func(ctx context.Context) error {
			attemptCtx, cancel := r.attemptContext(ctx)
			defer cancel()
			var err error
			rec, err = f.UserRole(attemptCtx, email)
			return err
		})
		m.RoleFetchDuration.Record(flightCtx, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.versions[email] == version {
			r.cache.SetDefault(email, rec.Clone())
		}
		r.mu.Unlock()
		return rec, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("roles: resolve %s: %w", email, ctx.Err())
	}
	if res.Err != nil {
		m.RoleResolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "error")))
		return nil, fmt.Errorf("roles: resolve %s: %w", email, res.Err)
	}
	m.RoleResolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "backend")))
	return res.Val.(*models.RoleRecord).Clone(), nil
}

func (r *Resolver) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.policy.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.policy.Timeout)
}

func (r *Resolver) version(email string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.versions[email]
}

// Invalidate drops the cached record for email and tells every subscriber
// bound to it to resolve again.
func (r *Resolver) Invalidate(email string) {
	r.mu.Lock()
	r.versions[email]++
	r.cache.Delete(email)
	fns := make([]func(), 0, len(r.subs[email]))
	for _, fn := range r.subs[email] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	r.logger.Debug("Role cache invalidated", zap.String("email", email), zap.Int("subscribers", len(fns)))
	for _, fn := range fns {
		fn()
	}
}

func (r *Resolver) Subscribe(email string, fn func()) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	if r.subs[email] == nil {
		r.subs[email] = make(map[uint64]func())
	}
	r.subs[email][id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs[email], id)
		if len(r.subs[email]) == 0 {
			delete(r.subs, email)
		}
	}
}
