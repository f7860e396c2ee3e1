// Package domain contains core concepts of the client portal.
// This file defines users and the actor identity carried through calls.
package domain

import (
	"context"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
	// RoleSystem is the service identity used for internal bookkeeping
	// (session checks, lockout counters). It bypasses row-level policies.
	RoleSystem Role = "system"
)

type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	CompanyName    string     `json:"company_name,omitempty"`
	Role           Role       `json:"role"`
	PasswordHash   string     `json:"password_hash,omitempty"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (u User) RowID() string { return u.ID }

func (u User) RowCreatedAt() time.Time { return u.CreatedAt }

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsLocked reports whether the lockout window is still running at now.
func (u User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Public strips the credential material before a user leaves the store.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Actor is the identity a durable-store call is evaluated against.
type Actor struct {
	UserID string
	Role   Role
}

var SystemActor = Actor{UserID: "system", Role: RoleSystem}

func ActorOf(u User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the zero Actor (anonymous) when none is set.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}
