package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/payment"
)

type CreatePaymentRequest struct {
	OrderID       uuid.UUID       `json:"order_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" validate:"required,max=50"`
	TransactionID string          `json:"transaction_id" validate:"max=200"`
}

type UpdatePaymentStatusRequest struct {
	Status        string `json:"status" validate:"required,oneof=pending success failed"`
	TransactionID string `json:"transaction_id" validate:"max=200"`
}

type VerifyPaymentRequest struct {
	PaymentID     uuid.UUID `json:"payment_id" validate:"required"`
	TransactionID string    `json:"transaction_id" validate:"required,max=200"`
}

type RefundRequest struct {
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Reason       string          `json:"reason" validate:"max=500"`
}

type PaymentHandler struct {
	service  payment.Service
	validate *validator.Validate
}

func NewPaymentHandler(service payment.Service) *PaymentHandler {
	return &PaymentHandler{service: service, validate: newValidator()}
}

// RegisterRoutes mounts the payment routes; idempotency wraps payment
// creation when it is not nil.
func (h *PaymentHandler) RegisterRoutes(router chi.Router, idempotency func(http.Handler) http.Handler) {
	create := http.Handler(http.HandlerFunc(h.handleCreatePayment))
	if idempotency != nil {
		create = idempotency(create)
	}
	router.Method(http.MethodPost, "/payments", create)
	router.Get("/payments/stats", h.handleGetStats)
	router.Post("/payments/verify", h.handleVerifyPayment)
	router.Get("/payments/order/{orderId}", h.handleListOrderPayments)
	router.Get("/payments/{id}", h.handleGetPayment)
	router.Patch("/payments/{id}/status", h.handleUpdateStatus)
	router.Post("/payments/{id}/refund", h.handleRefund)
}

func (h *PaymentHandler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var requestPayload CreatePaymentRequest
	if !decodeRequest(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreatePayment(r.Context(), caller, payment.CreatePaymentInput{
		OrderID:       requestPayload.OrderID,
		Amount:        requestPayload.Amount,
		Method:        requestPayload.PaymentMethod,
		TransactionID: requestPayload.TransactionID,
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to create payment")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *PaymentHandler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	paymentID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetPayment(r.Context(), caller, paymentID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get payment")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *PaymentHandler) handleListOrderPayments(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "orderId")
	if !ok {
		return
	}

	payments, err := h.service.ListOrderPayments(r.Context(), caller, orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order payments")
		return
	}

	respondWithJSON(w, http.StatusOK, payments)
}

func (h *PaymentHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	paymentID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdatePaymentStatusRequest
	if !decodeRequest(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.UpdatePaymentStatus(r.Context(), caller, paymentID, payment.Status(requestPayload.Status), requestPayload.TransactionID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update payment status")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *PaymentHandler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var requestPayload VerifyPaymentRequest
	if !decodeRequest(w, r, h.validate, &requestPayload) {
		return
	}

	verified, err := h.service.VerifyPayment(r.Context(), caller, requestPayload.PaymentID, requestPayload.TransactionID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to verify payment")
		return
	}

	respondWithJSON(w, http.StatusOK, verified)
}

func (h *PaymentHandler) handleRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	paymentID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload RefundRequest
	if !decodeRequest(w, r, h.validate, &requestPayload) {
		return
	}

	refund, err := h.service.ProcessRefund(r.Context(), caller, paymentID, payment.RefundInput{
		Amount: requestPayload.RefundAmount,
		Reason: requestPayload.Reason,
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to process refund")
		return
	}

	respondWithJSON(w, http.StatusOK, refund)
}

func (h *PaymentHandler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	stats, err := h.service.GetStats(r.Context(), caller)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get payment stats")
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}
