package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
)

type CreateProductRequest struct {
	Name         string              `json:"name" validate:"required,min=2,max=200"`
	RegularPrice decimal.Decimal     `json:"regular_price"`
	SalePrice    decimal.NullDecimal `json:"sale_price"`
	Stock        int                 `json:"stock" validate:"gte=0"`
}

type RestockRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type ProductResponse struct {
	ID              uuid.UUID             `json:"id"`
	SellerID        uuid.UUID             `json:"seller_id"`
	Name            string                `json:"name"`
	RegularPrice    decimal.Decimal       `json:"regular_price"`
	SalePrice       decimal.NullDecimal   `json:"sale_price"`
	CurrentPrice    decimal.Decimal       `json:"current_price"`
	DiscountPercent int64                 `json:"discount_percent"`
	Stock           int                   `json:"stock"`
	Status          catalog.ProductStatus `json:"status"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func newProductResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{
		ID:              p.ID,
		SellerID:        p.SellerID,
		Name:            p.Name,
		RegularPrice:    p.Price.Regular,
		SalePrice:       p.Price.Sale,
		CurrentPrice:    p.Price.Current(),
		DiscountPercent: p.Price.DiscountPercent(),
		Stock:           p.Stock,
		Status:          p.Status,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type CatalogHandler struct {
	service  catalog.Service
	validate *validator.Validate
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{service: service, validate: newValidator()}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products/{id}", h.handleGetProduct)

	router.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleSeller, auth.RoleAdmin))
		r.Post("/products", h.handleCreateProduct)
		r.Post("/products/{id}/restock", h.handleRestock)
	})
}

func (h *CatalogHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var requestPayload CreateProductRequest
	if !decodeRequest(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreateProduct(r.Context(), caller, catalog.CreateProductInput{
		Name:         requestPayload.Name,
		RegularPrice: requestPayload.RegularPrice,
		SalePrice:    requestPayload.SalePrice,
		Stock:        requestPayload.Stock,
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to create product")
		return
	}

	respondWithJSON(w, http.StatusCreated, newProductResponse(created))
}

func (h *CatalogHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get product")
		return
	}

	respondWithJSON(w, http.StatusOK, newProductResponse(found))
}

func (h *CatalogHandler) handleRestock(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	productID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload RestockRequest
	if !decodeRequest(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.Restock(r.Context(), caller, productID, requestPayload.Quantity)
	if err != nil {
		respondWithServiceError(w, err, "Failed to restock product")
		return
	}

	respondWithJSON(w, http.StatusOK, newProductResponse(updated))
}
