// Package session persists the per-session cart in an opaque key-value
// store. The core only needs get and put; a put both saves and marks the
// session dirty, so callers must Put after every cart mutation.
package session

import (
	"context"
	"time"

	"github.com/tiendaverde/catalogo/internal/domain"
)

const cartTTL = 7 * 24 * time.Hour

// Store holds one cart per session ID. Get returns an empty cart for an
// unknown session, never nil.
type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Put(ctx context.Context, sessionID string, cart *domain.Cart) error
	Delete(ctx context.Context, sessionID string) error
}
