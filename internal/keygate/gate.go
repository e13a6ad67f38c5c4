// Package keygate tracks whether a usable Gemini credential has been selected.
// The selection itself is delegated to a Host.
package keygate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/contactcopilof/APPLI-VIDEO/internal/logger"
)

// Host is the capability that knows about the credential and can ask the
// user to pick one.
type Host interface {
	HasSelectedAPIKey(ctx context.Context) (bool, error)
	OpenSelectKey(ctx context.Context) error
}

var ErrHostUnavailable = errors.New("key selection is not available on this host")

// KeySelectionError reports that the host selection flow could not run.
type KeySelectionError struct {
	Err error
}

func (e *KeySelectionError) Error() string {
	return fmt.Sprintf("key selection failed: %v", e.Err)
}

func (e *KeySelectionError) Unwrap() error { return e.Err }

// Gate caches the last known key presence.
type Gate struct {
	host Host

	mu      sync.RWMutex
	present bool
}

func New(host Host) *Gate {
	return &Gate{host: host}
}

// HasKey asks the host whether a key is selected and caches the answer.
// A missing or failing host counts as "no key".
func (g *Gate) HasKey(ctx context.Context) bool {
	present := false
	if g.host != nil {
		ok, err := g.host.HasSelectedAPIKey(ctx)
		if err != nil {
			logger.Named("keygate").Warn().Err(err).Msg("key presence query failed")
		} else {
			present = ok
		}
	}

	g.mu.Lock()
	g.present = present
	g.mu.Unlock()
	return present
}

// RequestKey runs the host selection flow, then re-queries presence. The
// cached flag is left untouched when the flow itself fails.
func (g *Gate) RequestKey(ctx context.Context) (bool, error) {
	if g.host == nil {
		return g.Present(), &KeySelectionError{Err: ErrHostUnavailable}
	}
	if err := g.host.OpenSelectKey(ctx); err != nil {
		return g.Present(), &KeySelectionError{Err: err}
	}
	return g.HasKey(ctx), nil
}

// Present returns the cached presence without asking the host.
func (g *Gate) Present() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.present
}

// Reset forgets the key, forcing the user through selection again.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.present = false
	g.mu.Unlock()
	logger.Named("keygate").Info().Msg("key presence reset")
}
