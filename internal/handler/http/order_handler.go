package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
)

type CreateOrderRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type ReorderResponse struct {
	Cart    *cart.Cart  `json:"cart"`
	Skipped []uuid.UUID `json:"skipped_products"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{service: service, validate: newValidator()}
}

// RegisterRoutes mounts the buyer routes; idempotency wraps order creation
// when it is not nil.
func (h *OrderHandler) RegisterRoutes(router chi.Router, idempotency func(http.Handler) http.Handler) {
	create := http.Handler(http.HandlerFunc(h.handleCreateOrder))
	if idempotency != nil {
		create = idempotency(create)
	}
	router.Method(http.MethodPost, "/orders", create)
	router.Get("/orders/stats", h.handleGetStats)
	router.Get("/orders/number/{orderNumber}", h.handleGetOrderByNumber)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Patch("/orders/{id}/status", h.handleUpdateStatus)
	router.Post("/orders/{id}/reorder", h.handleReorder)

	router.With(auth.RequireRole(auth.RoleAdmin)).Patch("/admin/orders/{id}/status", h.handleAdvanceStatus)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var requestPayload CreateOrderRequest
	if !decodeRequest(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreateOrder(r.Context(), caller, order.CreateOrderInput{
		ShippingAddress: requestPayload.ShippingAddress,
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetOrder(r.Context(), caller, orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleGetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	number := chi.URLParam(r, "orderNumber")
	if number == "" {
		respondWithError(w, http.StatusBadRequest, "Order number parameter cannot be empty")
		return
	}

	found, err := h.service.GetOrderByNumber(r.Context(), caller, number)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order by number")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateOrderStatusRequest
	if !decodeRequest(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.UpdateOrderStatus(r.Context(), caller, orderID, order.OrderStatus(requestPayload.Status))
	if err != nil {
		respondWithServiceError(w, err, "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleAdvanceStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateOrderStatusRequest
	if !decodeRequest(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.AdvanceOrderStatus(r.Context(), caller, orderID, order.OrderStatus(requestPayload.Status))
	if err != nil {
		respondWithServiceError(w, err, "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleReorder(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	c, skipped, err := h.service.Reorder(r.Context(), caller, orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to reorder")
		return
	}
	if skipped == nil {
		skipped = []uuid.UUID{}
	}

	respondWithJSON(w, http.StatusOK, ReorderResponse{Cart: c, Skipped: skipped})
}

func (h *OrderHandler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	stats, err := h.service.GetStats(r.Context(), caller)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order stats")
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}
