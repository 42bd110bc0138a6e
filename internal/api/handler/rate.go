package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/fxmarket/forex-marketplace/internal/rate"
	"go.uber.org/zap"
)

type RateHandler struct {
	provider rate.Provider
	store    *rate.Store
}

// NewRateHandler serves quotes from the provider; listing needs the store and
// is disabled when it is nil.
func NewRateHandler(provider rate.Provider, store *rate.Store) *RateHandler {
	return &RateHandler{provider: provider, store: store}
}

func (h *RateHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	base := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("from")))
	target := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("to")))
	if base == "" || target == "" {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-pair", "from and to query parameters are required")
		return
	}

	quote, err := h.provider.GetRate(r.Context(), base, target)
	if err != nil {
		if errors.Is(err, rate.ErrPairNotFound) {
			RespondError(w, r, http.StatusNotFound, "rate/pair-not-found", "no rate for this currency pair")
			return
		}
		zap.L().Error("get rate failed", zap.Error(err), zap.String("base", base), zap.String("target", target))
		RespondError(w, r, http.StatusInternalServerError, "rate/read-failed", "Failed to get rate")
		return
	}

	RespondJSON(w, http.StatusOK, quote)
}

func (h *RateHandler) ListRates(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		RespondJSON(w, http.StatusOK, []models.ForexRate{})
		return
	}

	rates, err := h.store.ListRates(r.Context())
	if err != nil {
		zap.L().Error("list rates failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "rate/list-failed", "Failed to list rates")
		return
	}
	if rates == nil {
		rates = []models.ForexRate{}
	}

	RespondJSON(w, http.StatusOK, rates)
}
