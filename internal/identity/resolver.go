package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jindalchat/internal/auth"
	"jindalchat/internal/models"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUserNotFound     = errors.New("user not found")
)

// UserFinder is the email index lookup the resolver needs.
type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Resolver maps a verified identity to its user record. The lookup goes
// through the email index; the token subject is not consulted.
type Resolver struct {
	users UserFinder
}

func NewResolver(users UserFinder) *Resolver {
	return &Resolver{users: users}
}

// Resolve is the strict variant used by the write path.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity) (*models.User, error) {
	if identity == nil || identity.Email == "" {
		return nil, ErrNotAuthenticated
	}
	user, err := r.users.FindUserByEmail(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return user, nil
}

// ResolveLenient is the read-path variant: a missing identity or user yields
// (nil, nil). Only storage failures are returned.
func (r *Resolver) ResolveLenient(ctx context.Context, identity *auth.Identity) (*models.User, error) {
	user, err := r.Resolve(ctx, identity)
	if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}
