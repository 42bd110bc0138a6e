package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/fxmarket/forex-marketplace/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Side         string `json:"side"`
		FromCurrency string `json:"from_currency"`
		ToCurrency   string `json:"to_currency"`
		FromAmount   string `json:"from_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.FromAmount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "from_amount must be a decimal number")
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), service.CreateOrderInput{
		UserID:       actorID,
		Side:         req.Side,
		FromCurrency: req.FromCurrency,
		ToCurrency:   req.ToCurrency,
		FromAmount:   amount,
	})
	if err != nil {
		if status, pType, msg, ok := mapServiceError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create order failed", zap.Error(err), zap.String("user_id", actorID.String()))
		RespondError(w, r, http.StatusInternalServerError, "order/create-failed", "Failed to create order")
		return
	}

	RespondJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	order, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		if status, pType, msg, ok := mapServiceError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("get order failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "order/read-failed", "Failed to get order")
		return
	}
	if order.UserID != actorID {
		RespondError(w, r, http.StatusNotFound, "order/not-found", "order not found")
		return
	}

	RespondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), actorID)
	if err != nil {
		zap.L().Error("list orders failed", zap.Error(err), zap.String("user_id", actorID.String()))
		RespondError(w, r, http.StatusInternalServerError, "order/list-failed", "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	RespondJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	order, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		if status, pType, msg, ok := mapServiceError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("order authorization lookup failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "order/read-failed", "Failed to get order")
		return
	}
	if order.UserID != actorID {
		RespondError(w, r, http.StatusNotFound, "order/not-found", "order not found")
		return
	}

	settlements, err := h.svc.GetOrderSettlements(r.Context(), orderID)
	if err != nil {
		zap.L().Error("list settlements failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "order/settlements-failed", "Failed to list settlements")
		return
	}
	if settlements == nil {
		settlements = []models.Settlement{}
	}

	RespondJSON(w, http.StatusOK, settlements)
}
