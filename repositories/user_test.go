package repositories

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"client-portal/auth"
	"client-portal/domain"
	"client-portal/errors"
)

func TestUserRepository_Email_Is_Unique_And_Normalized(t *testing.T) {
	req := require.New(t)
	repo := NewStore(openDB(t), testLog, nil, nil).Users

	created, err := repo.CreateUser(system(), domain.User{Email: " Alice@Example.com ", Name: "Alice", Role: domain.RoleClient})
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Equal("alice@example.com", created.Email)

	_, err = repo.CreateUser(system(), domain.User{Email: "ALICE@example.com", Role: domain.RoleClient})
	req.ErrorIs(err, errors.ErrConstraint)

	found, err := repo.GetUserByEmail(system(), "alice@EXAMPLE.com")
	req.NoError(err)
	req.Equal(created.ID, found.ID)
}

func TestUserRepository_Feed_Never_Carries_Password_Hash(t *testing.T) {
	req := require.New(t)
	feed := newFeedRecorder()
	repo := NewStore(openDB(t), testLog, feed, nil).Users

	_, err := repo.CreateUser(system(), domain.User{Email: "a@example.com", Role: domain.RoleClient, PasswordHash: "secret"})
	req.NoError(err)

	events := feed.on(domain.TableUsers)
	req.Len(events, 1)
	var published domain.User
	req.NoError(json.Unmarshal(events[0].New, &published))
	req.Empty(published.PasswordHash)
	req.NotContains(string(events[0].New), "secret")
}

func TestUserRepository_ListUsers_By_Role(t *testing.T) {
	req := require.New(t)
	repo := NewStore(openDB(t), testLog, nil, nil).Users

	for _, u := range []domain.User{
		{Email: "admin@example.com", Role: domain.RoleAdmin},
		{Email: "c1@example.com", Role: domain.RoleClient},
		{Email: "c2@example.com", Role: domain.RoleClient},
	} {
		_, err := repo.CreateUser(system(), u)
		req.NoError(err)
	}

	clients, err := repo.ListUsers(system(), domain.RoleClient)
	req.NoError(err)
	req.Len(clients, 2)
	all, err := repo.ListUsers(system(), "")
	req.NoError(err)
	req.Len(all, 3)
}

func TestUserRepository_Lockout_Cycle(t *testing.T) {
	req := require.New(t)
	repo := NewStore(openDB(t), testLog, nil, nil).Users
	lockout := auth.Lockout{MaxAttempts: 2, Window: 15 * time.Minute}
	user, err := repo.CreateUser(system(), domain.User{Email: "a@example.com", Role: domain.RoleClient})
	req.NoError(err)

	_, locked, err := repo.RecordFailedLogin(system(), user.ID, lockout, origin)
	req.NoError(err)
	req.False(locked)

	updated, locked, err := repo.RecordFailedLogin(system(), user.ID, lockout, origin.Add(time.Second))
	req.NoError(err)
	req.True(locked)
	req.True(updated.IsLocked(origin.Add(time.Minute)))

	req.NoError(repo.RecordSuccessfulLogin(system(), user.ID, lockout, origin.Add(time.Hour)))
	reset, err := repo.GetUser(system(), user.ID)
	req.NoError(err)
	req.Zero(reset.FailedAttempts)
	req.Nil(reset.LockedUntil)
	req.NotNil(reset.LastLoginAt)
}

func TestUserRepository_Client_Cannot_Promote_Itself(t *testing.T) {
	req := require.New(t)
	repo := NewStore(openDB(t), testLog, nil, nil).Users
	user, err := repo.CreateUser(system(), domain.User{Email: "a@example.com", Role: domain.RoleClient})
	req.NoError(err)

	_, err = repo.table.Update(as(user), user.ID, func(u *domain.User) bool {
		u.Role = domain.RoleAdmin
		return true
	})
	req.ErrorIs(err, errors.ErrPermissionDenied)
}
