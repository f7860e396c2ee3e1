//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"client-portal/auth"
	"client-portal/contract"
	"client-portal/domain"
)

type IUserRepository interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error)
	RecordFailedLogin(ctx context.Context, id string, lockout auth.Lockout, now time.Time) (domain.User, bool, error)
	RecordSuccessfulLogin(ctx context.Context, id string, lockout auth.Lockout, now time.Time) error
}

type UserRepository struct {
	table *Table[domain.User]
}

func NewUserRepository(db *badger.DB, log *slog.Logger, feed contract.Publisher) *UserRepository {
	return &UserRepository{table: NewTable[domain.User](db, log, domain.TableUsers, UserPolicy, feed,
		WithUnique("email", func(u domain.User) string { return normalizeEmail(u.Email) }),
		WithRedaction(func(u domain.User) domain.User { return u.Public() }),
	)}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser assigns id and creation time when missing. The password must
// already be hashed, the repository never sees plain passwords.
func (u *UserRepository) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = normalizeEmail(user.Email)
	return u.table.Insert(ctx, user)
}

func (u *UserRepository) GetUser(ctx context.Context, id string) (domain.User, error) {
	return u.table.Get(ctx, id)
}

func (u *UserRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return u.table.GetUnique(ctx, "email", normalizeEmail(email))
}

// ListUsers returns every visible user, filtered on role when not empty.
func (u *UserRepository) ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error) {
	q := NewQuery().OrderByCreated(false)
	if role != "" {
		q = q.Eq("role", role)
	}
	return u.table.Select(ctx, q)
}

// RecordFailedLogin increments the failure counter and reports whether
// this attempt locked the account.
func (u *UserRepository) RecordFailedLogin(ctx context.Context, id string, lockout auth.Lockout,
	now time.Time) (domain.User, bool, error) {
	locked := false
	user, err := u.table.Update(ctx, id, func(row *domain.User) bool {
		locked = lockout.Fail(row, now)
		return true
	})
	return user, locked, err
}

func (u *UserRepository) RecordSuccessfulLogin(ctx context.Context, id string, lockout auth.Lockout,
	now time.Time) error {
	_, err := u.table.Update(ctx, id, func(row *domain.User) bool {
		lockout.Succeed(row, now)
		return true
	})
	return err
}
