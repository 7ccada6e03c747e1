package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"artistsfirst/logger"
	"artistsfirst/model"

	"github.com/gorilla/mux"
)

// GetWalletHandler returns the caller's wallet. Artist accounts also get
// their lifetime revenue and available (withdrawable) balance.
func (h *APIHandler) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	ledger, err := h.wallets.Ledger(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"wallet": ledger.Wallet(),
	}
	if role, _ := GetRoleFromContext(r.Context()); role == model.RoleArtist {
		lifetime := h.catalog.LifetimeRevenue(userID)
		resp["lifetimeRevenue"] = lifetime
		resp["availableBalance"] = ledger.Available(lifetime)
	}
	writeJSON(w, http.StatusOK, resp)
}

type amountRequest struct {
	Amount model.AF `json:"amount"` // AF minor units
}

// TopUpHandler buys Artist Funds for the caller's wallet.
func (h *APIHandler) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	ledger, err := h.wallets.Ledger(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := ledger.TopUp(r.Context(), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("Wallet topped up",
		logger.Int64("listenerId", userID),
		logger.String("amount", req.Amount.String()))
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
}

// TipHandler sends a one-off tip: a plain debit on the listener's wallet
// with no stream attribution. A recurring tip applies only its first debit
// here; scheduling later ones belongs to an external scheduler.
func (h *APIHandler) TipHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	artistID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid artist id", http.StatusBadRequest)
		return
	}
	var req struct {
		Amount    model.AF `json:"amount"`
		Recurring bool     `json:"recurring"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	artist, err := h.userRepo.GetUserByID(artistID)
	if err != nil {
		writeError(w, err)
		return
	}
	if artist == nil || artist.Role != model.RoleArtist {
		http.Error(w, "Artist not found", http.StatusNotFound)
		return
	}
	ledger, err := h.wallets.Ledger(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := ledger.Debit(r.Context(), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("Tip sent",
		logger.Int64("listenerId", userID),
		logger.Int64("artistId", artistID),
		logger.String("amount", req.Amount.String()),
		logger.Bool("recurring", req.Recurring))
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
}

// WithdrawHandler withdraws artist revenue. It advances the withdrawal
// counter only; the spendable listener balance is a different pot and is
// never touched here.
func (h *APIHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	ledger, err := h.wallets.Ledger(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	lifetime := h.catalog.LifetimeRevenue(userID)
	available := ledger.Available(lifetime)
	totalWithdrawn, err := ledger.Withdraw(r.Context(), req.Amount, available)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.entRepo != nil {
		audit := &model.Withdrawal{ArtistID: userID, Amount: int64(req.Amount)}
		if err := h.entRepo.CreateWithdrawal(r.Context(), audit); err != nil {
			logger.Warn("Withdrawal audit row not persisted",
				logger.Int64("artistId", userID),
				logger.ErrorField(err))
		}
	}

	logger.Info("Revenue withdrawn",
		logger.Int64("artistId", userID),
		logger.String("amount", req.Amount.String()))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalWithdrawn":   totalWithdrawn,
		"availableBalance": ledger.Available(lifetime),
	})
}

// GetWithdrawalsHandler lists the caller's withdrawal history.
func (h *APIHandler) GetWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := h.entRepo.ListWithdrawalsByArtist(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}
