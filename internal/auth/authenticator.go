package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tyrowin/gochat-rooms/internal/model"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

// ErrAuthenticationFailed is returned for every rejected connection attempt.
// The wrapped cause is for logs only and is never sent to the client.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Verifier checks a credential token and returns the subject user id.
type Verifier interface {
	Verify(token string) (string, error)
}

// UserFinder resolves a user id to the stored user record.
type UserFinder interface {
	FindUser(ctx context.Context, userID string) (model.User, error)
}

// Authenticator gates new connections: it runs once per connection, before
// the connection is handed to the chat engine.
type Authenticator struct {
	verifier Verifier
	users    UserFinder
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(verifier Verifier, users UserFinder) *Authenticator {
	return &Authenticator{verifier: verifier, users: users}
}

// Authenticate validates token and resolves it to an Identity.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	userID, err := a.verifier.Verify(token)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	user, err := a.users.FindUser(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return model.Identity{}, fmt.Errorf("%w: user %s not found", ErrAuthenticationFailed, userID)
		}
		return model.Identity{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	return user.Identity(), nil
}
