// Package identity resolves login credentials to a stable account. The
// wallet ledger never authenticates anyone; it consumes the listener id
// this package produces.
package identity

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"artistsfirst/core/auth"
	"artistsfirst/model"
	"artistsfirst/repository"
)

// Resolution statuses. The caller handles all three in one switch; there
// is no behavior hidden behind error-shape sniffing.
const (
	StatusAuthenticated = "Authenticated"
	StatusNeedsFallback = "NeedsFallback"
	StatusFailed        = "Failed"
)

// Outcome is the tagged result of a resolution attempt.
type Outcome struct {
	Status string
	User   *model.User
	Reason string // Set when Status is Failed
}

// Resolver resolves credentials to an account.
type Resolver interface {
	Resolve(ctx context.Context, usernameOrEmail, password string) Outcome
}

// accountResolver authenticates against the user repository.
type accountResolver struct {
	users repository.UserRepository
}

// NewAccountResolver creates the primary, repository-backed resolver.
func NewAccountResolver(users repository.UserRepository) Resolver {
	return &accountResolver{users: users}
}

// Resolve looks the account up by username or email and verifies the
// password. A store error is reported as NeedsFallback so the caller can
// decide to degrade; it is never conflated with bad credentials.
func (r *accountResolver) Resolve(_ context.Context, usernameOrEmail, password string) Outcome {
	var user *model.User
	var err error
	if strings.Contains(usernameOrEmail, "@") {
		user, err = r.users.GetUserByEmail(usernameOrEmail)
	} else {
		user, err = r.users.GetUserByUsername(usernameOrEmail)
	}
	if err != nil {
		return Outcome{Status: StatusNeedsFallback, Reason: err.Error()}
	}
	if user == nil || !auth.VerifyPassword(password, user.PasswordHash) {
		return Outcome{Status: StatusFailed, Reason: "invalid username/email or password"}
	}
	return Outcome{Status: StatusAuthenticated, User: user}
}

// guestResolver hands out ephemeral guest accounts. It backs the
// NeedsFallback path when the account store is unreachable; guests get a
// fresh listener identity and therefore a fresh starting-credit wallet.
type guestResolver struct {
	nextID atomic.Int64
}

// NewGuestResolver creates the local fallback resolver. Guest ids are
// negative so they can never collide with repository account ids.
func NewGuestResolver() Resolver {
	return &guestResolver{}
}

func (r *guestResolver) Resolve(_ context.Context, usernameOrEmail, _ string) Outcome {
	id := -r.nextID.Add(1)
	name := usernameOrEmail
	if i := strings.Index(name, "@"); i > 0 {
		name = name[:i]
	}
	if name == "" {
		name = "guest"
	}
	now := time.Now()
	return Outcome{
		Status: StatusAuthenticated,
		User: &model.User{
			ID:        id,
			Username:  name,
			Email:     usernameOrEmail,
			Role:      model.RoleListener,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
