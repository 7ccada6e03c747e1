package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"artistsfirst/catalog"
	"artistsfirst/config"
	"artistsfirst/identity"
	"artistsfirst/logger"
	"artistsfirst/playback"
	"artistsfirst/repository"
	"artistsfirst/wallet"
)

// APIHandler handles all API requests.
type APIHandler struct {
	userRepo repository.UserRepository
	entRepo  repository.EntitlementRepository
	wallets  *wallet.Service
	catalog  *catalog.Store
	gate     *playback.Gate
	resolver identity.Resolver
	fallback identity.Resolver
	cfg      *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	userRepo repository.UserRepository,
	entRepo repository.EntitlementRepository,
	wallets *wallet.Service,
	cat *catalog.Store,
	gate *playback.Gate,
	resolver identity.Resolver,
	fallback identity.Resolver,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo: userRepo,
		entRepo:  entRepo,
		wallets:  wallets,
		catalog:  cat,
		gate:     gate,
		resolver: resolver,
		fallback: fallback,
		cfg:      cfg,
	}
}

// writeJSON writes a success envelope.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	}); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}

// writeError maps a domain error onto an HTTP status and writes an error
// envelope. Financial-integrity failures keep their message; unexpected
// errors are logged and masked.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, wallet.ErrBelowMinimum),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, catalog.ErrInvalidTrack):
		status = http.StatusBadRequest
	case errors.Is(err, wallet.ErrExceedsAvailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrTrackNotFound),
		errors.Is(err, wallet.ErrWalletNotFound),
		errors.Is(err, playback.ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrTrackNotActive),
		errors.Is(err, catalog.ErrConcurrentModification),
		errors.Is(err, playback.ErrInvalidTransition):
		status = http.StatusConflict
	default:
		logger.Error("Request failed", logger.ErrorField(err))
		msg = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   msg,
	}); encErr != nil {
		logger.Error("Failed to encode error response", logger.ErrorField(encErr))
	}
}
