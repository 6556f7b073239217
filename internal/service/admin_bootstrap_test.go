package service

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

type fakeAccounts struct {
	byEmail map[string]*model.User
	created int
}

func (f *fakeAccounts) Create(_ context.Context, u *model.User, _ string, _ int) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return repository.ErrEmailExists
	}
	f.created++
	u.ID = uint64(f.created)
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func TestEnsureAdminCreatesOnce(t *testing.T) {
	log, _ := test.NewNullLogger()
	users := &fakeAccounts{byEmail: map[string]*model.User{}}

	require.NoError(t, EnsureAdmin(context.Background(), users, "boss@school.test", "s3cret-pass", 4, log))
	require.NoError(t, EnsureAdmin(context.Background(), users, "boss@school.test", "s3cret-pass", 4, log))
	assert.Equal(t, 1, users.created)
	assert.Equal(t, model.RoleAdmin, users.byEmail["boss@school.test"].Role)
}

func TestEnsureAdminSkipsWithoutCredentials(t *testing.T) {
	log, _ := test.NewNullLogger()
	users := &fakeAccounts{byEmail: map[string]*model.User{}}
	require.NoError(t, EnsureAdmin(context.Background(), users, "", "", 4, log))
	assert.Zero(t, users.created)
}

func TestEnsureAdminWarnsOnCustomerEmail(t *testing.T) {
	log, hook := test.NewNullLogger()
	users := &fakeAccounts{byEmail: map[string]*model.User{
		"kid@school.test": {Email: "kid@school.test", Role: model.RoleCustomer},
	}}
	require.NoError(t, EnsureAdmin(context.Background(), users, "kid@school.test", "pw-12345678", 4, log))
	assert.Zero(t, users.created)
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "non-admin")
}
