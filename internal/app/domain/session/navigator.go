package session

import (
	"context"
	"sync"
)

// Navigator moves the browser to another page.
type Navigator interface {
	Navigate(path string)
}

type navigatorKey struct{}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}

// RedirectRecorder remembers the last navigation requested while a request
// is being handled; the session middleware turns it into a redirect.
type RedirectRecorder struct {
	mu     sync.Mutex
	target string
}

func (r *RedirectRecorder) Navigate(path string) {
	r.mu.Lock()
	r.target = path
	r.mu.Unlock()
}

func (r *RedirectRecorder) Target() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

func WithNavigator(ctx context.Context, n Navigator) context.Context {
	return context.WithValue(ctx, navigatorKey{}, n)
}

// NavigatorFrom returns the navigator attached to ctx. Work running outside
// a request gets one that does nothing.
func NavigatorFrom(ctx context.Context) Navigator {
	if n, ok := ctx.Value(navigatorKey{}).(Navigator); ok {
		return n
	}
	return noopNavigator{}
}
