package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/cartsync/internal/api"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/service"
	"github.com/fjod/cartsync/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.AggregatedCart, error)
	SyncCart(ctx context.Context, userID string, items []domain.CartLine) (*domain.AggregatedCart, error)
	Product(ctx context.Context, identifier string) (*domain.Product, error)
}

type CartHandler struct {
	service     CartService
	timeout     time.Duration
	maxBodySize int64
	log         *slog.Logger
}

func NewCartHandler(service CartService, timeout time.Duration, maxBodySize int64, log *slog.Logger) *CartHandler {
	return &CartHandler{
		service:     service,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		log:         logger.OrDefault(log),
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserID(r.Context())
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.service.GetCart(ctx, userID)
	if errors.Is(err, service.ErrCartNotFound) {
		h.respondJSON(w, http.StatusOK, api.CartResponse{Cart: nil})
		return
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, api.CartResponse{Cart: api.FromAggregated(cart)})
}

func (h *CartHandler) SyncCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserID(r.Context())
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}

	var req api.SyncCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if code, msg := validateSyncItems(req.Items); code != "" {
		h.respondError(w, http.StatusBadRequest, code, msg)
		return
	}

	cart, err := h.service.SyncCart(ctx, userID, api.ToLines(req.Items))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, api.CartResponse{Cart: api.FromAggregated(cart)})
}

func (h *CartHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.service.Product(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, api.ProductResponse{Product: p})
}

func validateSyncItems(items []api.SyncCartItem) (code, message string) {
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item.ProductID == "" {
			return "invalid_product_id", fmt.Sprintf("items[%d]: product_id is required", i)
		}
		if item.Quantity < 1 {
			return "invalid_quantity", fmt.Sprintf("items[%d]: quantity must be at least 1", i)
		}
		if _, dup := seen[item.ProductID]; dup {
			return "duplicate_product_id", fmt.Sprintf("items[%d]: product_id %q appears more than once", i, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	return "", ""
}

func (h *CartHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
	case errors.Is(err, service.ErrProductNotFound):
		h.respondError(w, http.StatusNotFound, "not_found", "product not found")
	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.log.ErrorContext(r.Context(), "cart request failed",
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
			"error", err,
		)
		h.respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (h *CartHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

func (h *CartHandler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, api.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
