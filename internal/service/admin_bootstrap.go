package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

// AccountStore is the subset of *repository.UserRepo EnsureAdmin needs.
type AccountStore interface {
	Create(ctx context.Context, u *model.User, password string, cost int) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// EnsureAdmin creates the admin account named by email unless an account
// with that email exists already.  Registration only creates customers,
// so this is how the first admin appears.
func EnsureAdmin(ctx context.Context, users AccountStore, email, password string, cost int, log logrus.FieldLogger) error {
	if email == "" || password == "" {
		return nil
	}
	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != model.RoleAdmin {
			log.WithField("email", existing.Email).Warn("bootstrap admin email belongs to a non-admin account")
		}
		return nil
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}
	u := &model.User{Email: email, Role: model.RoleAdmin, Name: "Administrator"}
	if err := users.Create(ctx, u, password, cost); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil
		}
		return err
	}
	log.WithField("email", u.Email).Info("bootstrap admin created")
	return nil
}
