package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fxmarket/forex-marketplace/internal/api/middleware"
	"github.com/fxmarket/forex-marketplace/internal/api/problem"
	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, errors.New("invalid user_id in auth context")
	}

	return actorID, nil
}

// mapServiceError translates sentinel errors from the service layer into
// problem responses. Unmapped errors fall through to a 500 at the call site.
func mapServiceError(err error) (status int, problemType, message string, ok bool) {
	var conflict *models.OrderConflictError
	switch {
	case errors.Is(err, models.ErrInvalidAmount):
		return http.StatusBadRequest, "request/invalid-amount", "amount must be greater than zero", true
	case errors.Is(err, models.ErrInvalidCurrency):
		return http.StatusBadRequest, "request/invalid-currency", "currency code is required", true
	case errors.Is(err, models.ErrOrderNotFound):
		return http.StatusNotFound, "order/not-found", "order not found", true
	case errors.Is(err, models.ErrWalletNotFound):
		return http.StatusNotFound, "wallet/not-found", "wallet not found", true
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound, "user/not-found", "user not found", true
	case errors.Is(err, models.ErrWalletExists):
		return http.StatusConflict, "wallet/already-exists", "wallet already exists for this currency", true
	case errors.Is(err, models.ErrEmailTaken):
		return http.StatusConflict, "user/email-taken", "email is already registered", true
	case errors.As(err, &conflict):
		return http.StatusConflict, "order/already-settled", err.Error(), true
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "wallet/insufficient-funds", "insufficient funds", true
	case errors.Is(err, models.ErrPairNotTradeable):
		return http.StatusUnprocessableEntity, "order/pair-not-tradeable", "currency pair is not tradeable", true
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, "auth/invalid-credentials", "invalid email or password", true
	case errors.Is(err, models.ErrUpstreamUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "upstream/unavailable", "service unavailable, please retry later", true
	default:
		return 0, "", "", false
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
