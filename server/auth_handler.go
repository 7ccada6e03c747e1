package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"artistsfirst/core/auth"
	"artistsfirst/identity"
	"artistsfirst/logger"
	"artistsfirst/model"
)

type contextKey string

const (
	ctxUserID   contextKey = "userID"
	ctxUsername contextKey = "username"
	ctxRole     contextKey = "role"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// RegisterHandler creates an account and provisions its wallet with the
// starting credit. Emails on the configured artist list get the artist
// role.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" || !strings.Contains(req.Email, "@") {
		http.Error(w, "Username, password and a valid email are required", http.StatusBadRequest)
		return
	}

	if existing, err := h.userRepo.GetUserByUsername(req.Username); err != nil {
		writeError(w, err)
		return
	} else if existing != nil {
		http.Error(w, "Username already taken", http.StatusConflict)
		return
	}
	if existing, err := h.userRepo.GetUserByEmail(req.Email); err != nil {
		writeError(w, err)
		return
	} else if existing != nil {
		http.Error(w, "Email already registered", http.StatusConflict)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	role := model.RoleListener
	if h.cfg.IsArtistEmail(req.Email) {
		role = model.RoleArtist
	}
	user := &model.User{
		Username:     req.Username,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         role,
	}
	id, err := h.userRepo.CreateUser(user)
	if err != nil {
		writeError(w, err)
		return
	}
	user.ID = id

	// One wallet per account, seeded exactly once.
	ledger, err := h.wallets.Create(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.Info("Account registered",
		logger.Int64("userId", user.ID),
		logger.String("role", user.Role))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":  token,
		"user":   user,
		"wallet": ledger.Wallet(),
	})
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"` // Username or email
	Password string `json:"password"`
}

// LoginHandler resolves credentials through the identity provider. The
// three outcomes are handled in one switch: authenticated, fall back to a
// guest identity when the account store is unreachable, or fail.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username/email and password are required", http.StatusBadRequest)
		return
	}

	outcome := h.resolver.Resolve(r.Context(), req.Username, req.Password)
	switch outcome.Status {
	case identity.StatusAuthenticated:
		// Proceed below.
	case identity.StatusNeedsFallback:
		logger.Warn("Account store unreachable, using guest identity",
			logger.String("reason", outcome.Reason))
		outcome = h.fallback.Resolve(r.Context(), req.Username, req.Password)
		if outcome.Status != identity.StatusAuthenticated {
			http.Error(w, "Login unavailable", http.StatusServiceUnavailable)
			return
		}
	case identity.StatusFailed:
		http.Error(w, outcome.Reason, http.StatusUnauthorized)
		return
	default:
		http.Error(w, "Login unavailable", http.StatusServiceUnavailable)
		return
	}
	user := outcome.User

	// Wallets are created at account creation; a guest identity is a new
	// account and gets seeded here.
	ledger, err := h.wallets.Create(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.Info("Login succeeded", logger.String("username", user.Username))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":  token,
		"user":   user,
		"wallet": ledger.Wallet(),
	})
}

// AuthMiddleware checks for a valid JWT token and adds the identity to the
// request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// ArtistOnly wraps a handler so only artist accounts may call it.
func (h *APIHandler) ArtistOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := GetRoleFromContext(r.Context())
		if err != nil || role != model.RoleArtist {
			http.Error(w, "Artist account required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(ctxUserID).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetRoleFromContext extracts the account role from the request context.
func GetRoleFromContext(ctx context.Context) (string, error) {
	role, ok := ctx.Value(ctxRole).(string)
	if !ok {
		return "", fmt.Errorf("role not found in context")
	}
	return role, nil
}
