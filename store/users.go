package store

import (
	"context"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/types"
)

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, u *types.User) error {
	u.CreatedAt, u.UpdatedAt = timestamps()
	if err := s.conn(ctx).Create(u).Error; err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.create_user", err, "create user")
	}
	return nil
}

// GetUserByUsername loads a user by username. No caller in this module uses
// it; the API resolves the actor through the ResolveActor hook it is given.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	var u types.User
	if err := s.conn(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFoundOr(err, "user", username)
	}
	return &u, nil
}

// ListUsers returns every user.
func (s *Store) ListUsers(ctx context.Context) ([]types.User, error) {
	var us []types.User
	if err := s.conn(ctx).Order("username").Find(&us).Error; err != nil {
		return nil, ggerr.Wrap(ggerr.KindTransient, "store.list_users", err, "list users")
	}
	return us, nil
}
