package queueaccess

import (
	"context"
	"fmt"

	"murmur/internal/api"
	"murmur/internal/queue"
)

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	// Remote reports whether a running daemon serves the session.
	Remote bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries the daemon API first, then falls back to direct
// store access. dial must fail when no daemon answers.
func OpenWithFallback(
	ctx context.Context,
	dial func(ctx context.Context) (*api.Client, error),
	openStore func() (*queue.Store, error),
	validator Validator,
) (Session, error) {
	if dial != nil {
		if client, err := dial(ctx); err == nil {
			return Session{Access: NewAPIAccess(client), Remote: true}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store, validator),
		close:  store.Close,
	}, nil
}
