package cloakkit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CallbackChangeToken is a ChangeToken that invokes callbacks once.
// Used by drivers that have native change events (local, memory).
type CallbackChangeToken struct {
	mu        sync.RWMutex
	changed   atomic.Bool
	callbacks []func()
}

// NewCallbackChangeToken creates a new ChangeToken that supports active callbacks.
func NewCallbackChangeToken() *CallbackChangeToken {
	return &CallbackChangeToken{}
}

func (t *CallbackChangeToken) HasChanged() bool {
	return t.changed.Load()
}

// RegisterChangeCallback registers callback. If the token already fired the
// callback runs immediately.
func (t *CallbackChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	t.mu.Lock()
	if t.changed.Load() {
		t.mu.Unlock()
		callback()
		return func() {}
	}
	t.callbacks = append(t.callbacks, callback)
	index := len(t.callbacks) - 1
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if index < len(t.callbacks) {
			// Set to nil instead of removing to avoid index shifting
			t.callbacks[index] = nil
		}
	}
}

// SignalChange marks the token as changed and invokes all callbacks.
// This should be called by the driver when a change is detected.
func (t *CallbackChangeToken) SignalChange() {
	t.mu.Lock()
	if t.changed.Swap(true) {
		t.mu.Unlock()
		return
	}
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb()
		}
	}
}

// DefaultPollInterval is used by NewPollingChangeToken when interval is zero.
const DefaultPollInterval = 5 * time.Second

// NewPollingChangeToken returns a token for backends without native events.
// check runs every interval until it reports a change or ctx is done; the
// polling goroutine exits with ctx, so callers must cancel it.
func NewPollingChangeToken(ctx context.Context, interval time.Duration, check func() bool) *CallbackChangeToken {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	token := NewCallbackChangeToken()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if check() {
					token.SignalChange()
					return
				}
			}
		}
	}()

	return token
}

// NeverChangeToken is a ChangeToken that never changes.
// Returned by decorators whose backend cannot watch.
type NeverChangeToken struct{}

func (NeverChangeToken) HasChanged() bool {
	return false
}

func (NeverChangeToken) RegisterChangeCallback(callback func()) func() {
	return func() {}
}

// OnChange calls changeAction every time a token from tokenProducer fires,
// requesting a fresh token after each change. It blocks until ctx is done or
// tokenProducer fails, and returns the producer error if any.
//
// Example:
//
//	err := cloakkit.OnChange(ctx,
//	    func() (cloakkit.ChangeToken, error) {
//	        return fs.(cloakkit.CanWatch).Watch(ctx, "**")
//	    },
//	    func() { rerun() },
//	)
func OnChange(ctx context.Context, tokenProducer func() (ChangeToken, error), changeAction func()) error {
	for {
		token, err := tokenProducer()
		if err != nil {
			return err
		}

		done := make(chan struct{})
		var once sync.Once
		unregister := token.RegisterChangeCallback(func() {
			once.Do(func() { close(done) })
		})

		select {
		case <-ctx.Done():
			unregister()
			return nil
		case <-done:
			unregister()
			changeAction()
		}
	}
}
