package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/fxmarket/forex-marketplace/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WalletHandler struct {
	svc *service.WalletService
}

func NewWalletHandler(svc *service.WalletService) *WalletHandler {
	return &WalletHandler{svc: svc}
}

func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	wallet, err := h.svc.CreateWallet(r.Context(), actorID, req.Currency)
	if err != nil {
		if status, pType, msg, ok := mapServiceError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create wallet failed", zap.Error(err), zap.String("user_id", actorID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/create-failed", "Failed to create wallet")
		return
	}

	RespondJSON(w, http.StatusCreated, wallet)
}

func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	wallets, err := h.svc.ListWallets(r.Context(), actorID)
	if err != nil {
		zap.L().Error("list wallets failed", zap.Error(err), zap.String("user_id", actorID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/list-failed", "Failed to list wallets")
		return
	}
	if wallets == nil {
		wallets = []models.Wallet{}
	}

	RespondJSON(w, http.StatusOK, wallets)
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	walletID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-wallet-id", "Invalid wallet ID")
		return
	}

	wallet, err := h.svc.GetWallet(r.Context(), walletID)
	if err != nil {
		if status, pType, msg, ok := mapServiceError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("get wallet failed", zap.Error(err), zap.String("wallet_id", walletID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/read-failed", "Failed to get wallet")
		return
	}
	if wallet.UserID != actorID {
		RespondError(w, r, http.StatusNotFound, "wallet/not-found", "wallet not found")
		return
	}

	RespondJSON(w, http.StatusOK, wallet)
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	walletID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-wallet-id", "Invalid wallet ID")
		return
	}

	wallet, err := h.svc.GetWallet(r.Context(), walletID)
	if err != nil {
		if status, pType, msg, ok := mapServiceError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("wallet authorization lookup failed", zap.Error(err), zap.String("wallet_id", walletID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/read-failed", "Failed to get wallet")
		return
	}
	if wallet.UserID != actorID {
		RespondError(w, r, http.StatusNotFound, "wallet/not-found", "wallet not found")
		return
	}

	txns, err := h.svc.ListTransactions(r.Context(), walletID)
	if err != nil {
		zap.L().Error("list transactions failed", zap.Error(err), zap.String("wallet_id", walletID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/transactions-failed", "Failed to list transactions")
		return
	}
	if txns == nil {
		txns = []models.WalletTransaction{}
	}

	RespondJSON(w, http.StatusOK, txns)
}
