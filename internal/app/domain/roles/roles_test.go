package roles

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/services/backend"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	records  map[string]*models.RoleRecord
	errs     map[string][]error
	gates    map[string]chan struct{}
	returned map[string]chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:    make(map[string]int),
		records:  make(map[string]*models.RoleRecord),
		errs:     make(map[string][]error),
		gates:    make(map[string]chan struct{}),
		returned: make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) set(email string, role models.Role, status models.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[email] = &models.RoleRecord{Role: role, Status: status}
}

// hold makes lookups for email block until the returned func is called. The
// blocked lookup ignores cancellation so it can arrive late.
func (f *fakeFetcher) hold(email string) (release func(), returned <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	done := make(chan struct{})
	f.gates[email] = gate
	f.returned[email] = done
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }, done
}

func (f *fakeFetcher) UserRole(_ context.Context, email string) (*models.RoleRecord, error) {
	f.mu.Lock()
	f.calls[email]++
	gate, done := f.gates[email], f.returned[email]
	delete(f.gates, email)
	delete(f.returned, email)
	var err error
	if queue := f.errs[email]; len(queue) > 0 {
		err, f.errs[email] = queue[0], queue[1:]
	}
	rec := f.records[email].Clone()
	f.mu.Unlock()

	if gate != nil {
		<-gate
		defer close(done)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &backend.StatusError{Method: http.MethodGet, Path: "/users/" + email, StatusCode: http.StatusNotFound}
	}
	return rec, nil
}

func (f *fakeFetcher) count(email string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[email]
}

func newTestResolver() *Resolver {
	return NewResolver(time.Minute, Policy{Attempts: 3, Timeout: time.Second, RetryDelay: time.Millisecond}, zap.NewNop())
}

func waitSettled(t *testing.T, b *Binding) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
	return b.Snapshot()
}

func TestBindEmptyEmailMakesNoCall(t *testing.T) {
	f := newFakeFetcher()
	b := NewBinding(newTestResolver(), f, "c1", zap.NewNop())
	defer b.Close()

	b.Bind("")
	st := b.Snapshot()
	assert.False(t, st.Loading)
	assert.Nil(t, st.Record)
	assert.Empty(t, f.calls)
}

func TestBindResolvesRecord(t *testing.T) {
	f := newFakeFetcher()
	f.set("a@x.com", models.RoleAdmin, models.StatusActive)
	b := NewBinding(newTestResolver(), f, "c1", zap.NewNop())
	defer b.Close()

	b.Bind("a@x.com")
	assert.True(t, b.Snapshot().Loading, "loading must be visible as soon as Bind returns")

	st := waitSettled(t, b)
	require.NotNil(t, st.Record)
	assert.Equal(t, models.RoleAdmin, st.Record.Role)
	assert.NoError(t, st.Err)

	b.Bind("a@x.com")
	assert.Equal(t, 1, f.count("a@x.com"), "rebinding the same email is a no-op")
}

func TestBindFailureLeavesRecordUnset(t *testing.T) {
	f := newFakeFetcher()
	b := NewBinding(newTestResolver(), f, "c1", zap.NewNop())
	defer b.Close()

	b.Bind("ghost@x.com")
	st := waitSettled(t, b)
	assert.False(t, st.Loading)
	assert.Nil(t, st.Record)
	assert.Error(t, st.Err)
	assert.Equal(t, 1, f.count("ghost@x.com"), "404 is not retried")
}

func TestBindDiscardsSupersededLookup(t *testing.T) {
	f := newFakeFetcher()
	f.set("userA@x.com", models.RoleAdmin, models.StatusActive)
	f.set("userB@x.com", models.RoleBorrower, models.StatusActive)
	releaseA, returnedA := f.hold("userA@x.com")
	releaseB, _ := f.hold("userB@x.com")
	b := NewBinding(newTestResolver(), f, "c1", zap.NewNop())
	defer b.Close()

	b.Bind("userA@x.com")
	require.Eventually(t, func() bool { return f.count("userA@x.com") == 1 }, time.Second, time.Millisecond)
	b.Bind("userB@x.com")

	releaseB()
	st := waitSettled(t, b)
	require.NotNil(t, st.Record)
	assert.Equal(t, models.RoleBorrower, st.Record.Role)

	releaseA()
	<-returnedA
	assert.Never(t, func() bool {
		s := b.Snapshot()
		return s.Email != "userB@x.com" || s.Record == nil || s.Record.Role != models.RoleBorrower
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestInvalidateRefreshesBoundClients(t *testing.T) {
	f := newFakeFetcher()
	f.set("a@x.com", models.RoleBorrower, models.StatusActive)
	r := newTestResolver()
	b := NewBinding(r, f, "c1", zap.NewNop())
	defer b.Close()

	b.Bind("a@x.com")
	st := waitSettled(t, b)
	require.Equal(t, models.RoleBorrower, st.Record.Role)

	f.set("a@x.com", models.RoleManager, models.StatusSuspended)
	r.Invalidate("a@x.com")
	st = waitSettled(t, b)
	require.NotNil(t, st.Record)
	assert.Equal(t, models.RoleManager, st.Record.Role)
	assert.True(t, st.Record.Suspended())

	f.mu.Lock()
	f.errs["a@x.com"] = []error{errors.New("down"), errors.New("down"), errors.New("down")}
	f.mu.Unlock()
	r.Invalidate("a@x.com")
	st = waitSettled(t, b)
	require.NotNil(t, st.Record, "a failed refresh keeps the previous record")
	assert.Equal(t, models.RoleManager, st.Record.Role)
	assert.Error(t, st.Err)
}

func TestResolverSharesCacheAcrossClients(t *testing.T) {
	f1, f2 := newFakeFetcher(), newFakeFetcher()
	f1.set("a@x.com", models.RoleAdmin, models.StatusActive)
	r := newTestResolver()

	rec, err := r.Resolve(context.Background(), "c1", f1, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, rec.Role)

	rec, err = r.Resolve(context.Background(), "c2", f2, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, rec.Role)
	assert.Zero(t, f2.count("a@x.com"))
}

func TestResolverCoalescesConcurrentLookups(t *testing.T) {
	f := newFakeFetcher()
	f.set("a@x.com", models.RoleManager, models.StatusActive)
	release, _ := f.hold("a@x.com")
	r := newTestResolver()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := r.Resolve(context.Background(), "c1", f, "a@x.com")
			assert.NoError(t, err)
			assert.Equal(t, models.RoleManager, rec.Role)
		}()
	}
	require.Eventually(t, func() bool { return f.count("a@x.com") == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, 1, f.count("a@x.com"))
}

func TestResolverRetriesTransientFailures(t *testing.T) {
	f := newFakeFetcher()
	f.set("a@x.com", models.RoleBorrower, models.StatusActive)
	f.errs["a@x.com"] = []error{
		&backend.StatusError{StatusCode: http.StatusServiceUnavailable},
		errors.New("connection reset"),
	}
	r := newTestResolver()

	rec, err := r.Resolve(context.Background(), "c1", f, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBorrower, rec.Role)
	assert.Equal(t, 3, f.count("a@x.com"))
}

func TestInvalidateDuringLookupSkipsCaching(t *testing.T) {
	f := newFakeFetcher()
	f.set("a@x.com", models.RoleBorrower, models.StatusActive)
	release, returned := f.hold("a@x.com")
	r := newTestResolver()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Resolve(context.Background(), "c1", f, "a@x.com")
	}()
	require.Eventually(t, func() bool { return f.count("a@x.com") == 1 }, time.Second, time.Millisecond)
	r.Invalidate("a@x.com")
	release()
	<-returned
	<-done

	_, ok := r.cache.Get("a@x.com")
	assert.False(t, ok, "a lookup that started before Invalidate must not repopulate the cache")
}

func TestInvalidateDuringBoundLookupFetchesAgain(t *testing.T) {
	f := newFakeFetcher()
	f.set("a@x.com", models.RoleBorrower, models.StatusActive)
	release, returned := f.hold("a@x.com")
	r := newTestResolver()
	b := NewBinding(r, f, "c1", zap.NewNop())
	defer b.Close()

	b.Bind("a@x.com")
	require.Eventually(t, func() bool { return f.count("a@x.com") == 1 }, time.Second, time.Millisecond)

	f.set("a@x.com", models.RoleManager, models.StatusActive)
	r.Invalidate("a@x.com")
	st := waitSettled(t, b)
	assert.Equal(t, 2, f.count("a@x.com"), "the invalidated lookup must not be reused")
	require.NotNil(t, st.Record)
	assert.Equal(t, models.RoleManager, st.Record.Role)
	assert.NoError(t, st.Err)

	release()
	<-returned
	assert.Never(t, func() bool {
		s := b.Snapshot()
		return s.Record == nil || s.Record.Role != models.RoleManager
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestRebindSameEmailSurvivesCancelledLookup(t *testing.T) {
	f := newFakeFetcher()
	f.set("a@x.com", models.RoleAdmin, models.StatusActive)
	release, _ := f.hold("a@x.com")
	b := NewBinding(newTestResolver(), f, "c1", zap.NewNop())
	defer b.Close()

	b.Bind("a@x.com")
	require.Eventually(t, func() bool { return f.count("a@x.com") == 1 }, time.Second, time.Millisecond)
	b.Bind("")
	b.Bind("a@x.com")
	release()

	st := waitSettled(t, b)
	require.NotNil(t, st.Record)
	assert.Equal(t, models.RoleAdmin, st.Record.Role)
	assert.NoError(t, st.Err)
}

func TestResolveReturnsWhenCallerCancels(t *testing.T) {
	f := newFakeFetcher()
	f.set("a@x.com", models.RoleBorrower, models.StatusActive)
	release, _ := f.hold("a@x.com")
	defer release()
	r := newTestResolver()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, "c1", f, "a@x.com")
		errc <- err
	}()
	require.Eventually(t, func() bool { return f.count("a@x.com") == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Resolve kept waiting after its context was cancelled")
	}
}
