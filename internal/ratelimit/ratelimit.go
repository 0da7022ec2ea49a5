// Package ratelimit caps outbound request rate per provider, so the
// collector's bounded parallelism and the fan-out writer's back-to-back
// writes don't turn into a burst large enough to trip a provider's own
// throttling.
package ratelimit

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Limiters holds one token-bucket limiter per provider tag, created
// lazily with a shared default unless a per-provider override is set.
type Limiters struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRPS   float64
	defaultBurst int
}

// New returns a Limiters set defaulting every provider to rps requests
// per second with the given burst allowance.
func New(rps float64, burst int) *Limiters {
	return &Limiters{
		limiters:     make(map[string]*rate.Limiter),
		defaultRPS:   rps,
		defaultBurst: burst,
	}
}

// SetLimit overrides the rate for a specific provider tag, replacing any
// limiter already created for it.
func (l *Limiters) SetLimit(provider string, rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limiters[provider] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks until provider's bucket has a token available or ctx is
// done, matching rate.Limiter.Wait's semantics.
func (l *Limiters) Wait(ctx context.Context, provider string) error {
	return l.limiterFor(provider).Wait(ctx)
}

func (l *Limiters) limiterFor(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[provider]; ok {
		return lim
	}

	lim := rate.NewLimiter(rate.Limit(l.defaultRPS), l.defaultBurst)
	l.limiters[provider] = lim

	return lim
}

// Transport wraps next (http.DefaultTransport if nil) so every request
// through the returned RoundTripper waits on provider's bucket first.
// cmd/tasksync installs this as the Transport of each provider's
// http.Client before handing that client to the adapter.
func (l *Limiters) Transport(provider string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	return &roundTripper{limiters: l, provider: provider, next: next}
}

type roundTripper struct {
	limiters *Limiters
	provider string
	next     http.RoundTripper
}

func (t *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiters.Wait(req.Context(), t.provider); err != nil {
		return nil, err
	}

	return t.next.RoundTrip(req)
}
