package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"storefront-api/internal/fulfillment"
	"storefront-api/internal/model"
	"storefront-api/internal/service"
	"storefront-api/pkg/apierror"
	"storefront-api/pkg/response"
	"storefront-api/pkg/uid"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// StorefrontHandler serves the buyer-facing routes.
type StorefrontHandler struct {
	svc *service.Storefront
}

// NewStorefrontHandler creates a new storefront handler.
func NewStorefrontHandler(svc *service.Storefront) *StorefrontHandler {
	return &StorefrontHandler{svc: svc}
}

// PlaceOrderRequest is the body of POST /order.
type PlaceOrderRequest struct {
	UserID           string                 `json:"userId"`
	LineItems        []model.LineItem       `json:"lineItems"`
	DeliveryMetadata model.DeliveryMetadata `json:"deliveryMetadata"`
}

// PlaceOrderResponse is returned when an order is placed or replayed.
type PlaceOrderResponse struct {
	Success        bool            `json:"success"`
	NewBalance     decimal.Decimal `json:"newBalance"`
	OrderID        string          `json:"orderId"`
	TotalCost      decimal.Decimal `json:"totalCost"`
	Replayed       bool            `json:"replayed"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// PlaceOrder handles POST /order
func (h *StorefrontHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && !uid.Usable(key) {
		writeError(w, r, apierror.ValidationError("Invalid Idempotency-Key", apierror.FieldError{
			Field:   "Idempotency-Key",
			Message: "must be at most 128 characters without whitespace",
		}))
		return
	}

	res, err := h.svc.PlaceOrder(r.Context(), fulfillment.Request{
		UserID:         req.UserID,
		LineItems:      req.LineItems,
		Delivery:       req.DeliveryMetadata,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Raw(w, http.StatusOK, PlaceOrderResponse{
		Success:        true,
		NewBalance:     res.NewBalance,
		OrderID:        res.OrderID,
		TotalCost:      res.TotalCost,
		Replayed:       res.Replayed,
		IdempotencyKey: res.IdempotencyKey,
	})
}

// BalanceResponse is the body of GET /balance/{userId}.
type BalanceResponse struct {
	Success bool            `json:"success"`
	Balance decimal.Decimal `json:"balance"`
}

// GetBalance handles GET /balance/{userId}
func (h *StorefrontHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.Balance(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Raw(w, http.StatusOK, BalanceResponse{Success: true, Balance: balance})
}

// OrdersResponse is the body of GET /orders/{userId}.
type OrdersResponse struct {
	Success bool          `json:"success"`
	Orders  []model.Order `json:"orders"`
}

// ListOrders handles GET /orders/{userId}
func (h *StorefrontHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		writeError(w, r, apierror.InvalidRequest("userId is required"))
		return
	}

	list, err := h.svc.Orders(r.Context(), userID)
	if err != nil {
		// the only failure source is the order table read
		writeError(w, r, errors.Join(apierror.StoreUnavailable(""), err))
		return
	}
	response.Raw(w, http.StatusOK, OrdersResponse{Success: true, Orders: list})
}

// ListProducts handles GET /products
func (h *StorefrontHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Products(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, products)
}

// GetProduct handles GET /products/{productId}
func (h *StorefrontHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.Product(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, product)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.BadRequest("Request body is required")
		}
		return apierror.BadRequest("Invalid JSON body")
	}
	return nil
}
