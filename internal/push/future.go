package push

import (
	"context"
	"sync"
)

// TokenFuture is the result of a registration whose token is delivered by a
// callback. It resolves exactly once; later Resolve/Reject calls are ignored.
type TokenFuture struct {
	done  chan struct{}
	once  sync.Once
	token string
	err   error
}

// NewTokenFuture creates an unresolved future
func NewTokenFuture() *TokenFuture {
	return &TokenFuture{done: make(chan struct{})}
}

// Resolve completes the future with a token
func (f *TokenFuture) Resolve(token string) bool {
	return f.complete(token, nil)
}

// Reject completes the future with an error
func (f *TokenFuture) Reject(err error) bool {
	return f.complete("", err)
}

func (f *TokenFuture) complete(token string, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.token = token
		f.err = err
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the future is resolved
func (f *TokenFuture) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends. When ctx ends first it
// returns ErrTokenPending; the future may still resolve later.
func (f *TokenFuture) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.token, f.err
	case <-ctx.Done():
		return "", ErrTokenPending
	}
}

// Result returns the outcome without blocking; ok is false while unresolved
func (f *TokenFuture) Result() (token string, err error, ok bool) {
	select {
	case <-f.done:
		return f.token, f.err, true
	default:
		return "", nil, false
	}
}
