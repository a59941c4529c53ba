// Package network defines how device events reach the token registry.
package network

import "context"

// A TokenHandler reacts to token insertion and removal. Both calls are
// idempotent.
type TokenHandler interface {
	AddToken(id string)
	RemoveToken(id string)
}

// A Watcher delivers device events to a TokenHandler until stopped.
type Watcher interface {
	// Start begins delivering events in the background. It returns once
	// the watcher is listening.
	Start(ctx context.Context) error

	// Stop finishes the operation of the watcher and waits for its
	// goroutine. If it's already stopped, it does nothing.
	Stop() error
}

// Nop is a watcher without events.
type Nop struct{}

func (Nop) Start(context.Context) error { return nil }
func (Nop) Stop() error                 { return nil }
