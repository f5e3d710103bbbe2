package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/cartsync/internal/api"
	"github.com/fjod/cartsync/internal/auth"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/service"
)

type serviceMock struct {
	cart    *domain.AggregatedCart
	product *domain.Product
	err     error

	syncedUser  string
	syncedLines []domain.CartLine
}

func (m *serviceMock) GetCart(ctx context.Context, userID string) (*domain.AggregatedCart, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.cart, nil
}

func (m *serviceMock) SyncCart(ctx context.Context, userID string, items []domain.CartLine) (*domain.AggregatedCart, error) {
	m.syncedUser = userID
	m.syncedLines = items
	if m.err != nil {
		return nil, m.err
	}
	return m.cart, nil
}

func (m *serviceMock) Product(ctx context.Context, identifier string) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.product, nil
}

func sampleCart() *domain.AggregatedCart {
	return &domain.AggregatedCart{
		ID:     "c1",
		UserID: "u1",
		Items: []domain.ResolvedLine{
			{ProductID: "P1", Product: domain.Product{Code: "P1", Name: "Lamp", Price: 10}, Quantity: 2, ItemTotal: 20},
		},
		ItemCount: 2,
		Subtotal:  20,
	}
}

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(WithUserID(r.Context(), userID))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp
}

func TestGetCart_Success(t *testing.T) {
	handler := NewCartHandler(&serviceMock{cart: sampleCart()}, 5*time.Second, 1<<20, nil)
	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), "u1")

	handler.GetCart(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}

	var response api.CartResponse
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Cart == nil || response.Cart.UserID != "u1" {
		t.Fatalf("Expected cart for u1, got %+v", response.Cart)
	}
	if response.Cart.ItemCount == nil || *response.Cart.ItemCount != 2 {
		t.Errorf("Expected item_count 2, got %v", response.Cart.ItemCount)
	}
	if len(response.Cart.Items) != 1 || response.Cart.Items[0].Product.Name != "Lamp" {
		t.Errorf("Unexpected items: %+v", response.Cart.Items)
	}
}

func TestGetCart_Unauthorized(t *testing.T) {
	handler := NewCartHandler(&serviceMock{cart: sampleCart()}, 5*time.Second, 1<<20, nil)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)

	handler.GetCart(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, recorder.Code)
	}
	if resp := decodeError(t, recorder); resp.Code != "unauthorized" {
		t.Errorf("Expected code unauthorized, got %q", resp.Code)
	}
}

func TestGetCart_NeverSyncedReturnsNullCart(t *testing.T) {
	handler := NewCartHandler(&serviceMock{err: service.ErrCartNotFound}, 5*time.Second, 1<<20, nil)
	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), "u1")

	handler.GetCart(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	if got := strings.TrimSpace(recorder.Body.String()); got != `{"cart":null}` {
		t.Errorf("Expected null cart, got %s", got)
	}
}

func TestGetCart_InternalError(t *testing.T) {
	handler := NewCartHandler(&serviceMock{err: errors.New("mongo down")}, 5*time.Second, 1<<20, nil)
	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), "u1")

	handler.GetCart(recorder, request)

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, recorder.Code)
	}
	resp := decodeError(t, recorder)
	if resp.Code != "internal_error" {
		t.Errorf("Expected code internal_error, got %q", resp.Code)
	}
	if strings.Contains(resp.Error, "mongo") {
		t.Errorf("Internal error leaked to client: %q", resp.Error)
	}
}

func TestSyncCart_Success(t *testing.T) {
	mock := &serviceMock{cart: sampleCart()}
	handler := NewCartHandler(mock, 5*time.Second, 1<<20, nil)

	body, _ := json.Marshal(api.SyncCartRequest{Items: []api.SyncCartItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "64b000000000000000000001", Quantity: 1},
	}})
	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest(http.MethodPut, "/api/v1/cart", bytes.NewReader(body)), "u1")

	handler.SyncCart(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	if mock.syncedUser != "u1" {
		t.Errorf("Expected sync for u1, got %q", mock.syncedUser)
	}
	want := []domain.CartLine{{ProductID: "P1", Quantity: 2}, {ProductID: "64b000000000000000000001", Quantity: 1}}
	if len(mock.syncedLines) != len(want) {
		t.Fatalf("Expected %d lines, got %d", len(want), len(mock.syncedLines))
	}
	for i := range want {
		if mock.syncedLines[i] != want[i] {
			t.Errorf("line %d: expected %+v, got %+v", i, want[i], mock.syncedLines[i])
		}
	}
}

func TestSyncCart_EmptyListIsValid(t *testing.T) {
	mock := &serviceMock{cart: &domain.AggregatedCart{UserID: "u1"}}
	handler := NewCartHandler(mock, 5*time.Second, 1<<20, nil)

	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest(http.MethodPut, "/api/v1/cart", strings.NewReader(`{"items":[]}`)), "u1")

	handler.SyncCart(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	if len(mock.syncedLines) != 0 {
		t.Errorf("Expected no lines, got %+v", mock.syncedLines)
	}
}

func TestSyncCart_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"bad json", `{"items":`, "invalid_request"},
		{"empty product id", `{"items":[{"product_id":"","quantity":1}]}`, "invalid_product_id"},
		{"zero quantity", `{"items":[{"product_id":"P1","quantity":0}]}`, "invalid_quantity"},
		{"negative quantity", `{"items":[{"product_id":"P1","quantity":-3}]}`, "invalid_quantity"},
		{"duplicate product", `{"items":[{"product_id":"P1","quantity":1},{"product_id":"P1","quantity":2}]}`, "duplicate_product_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &serviceMock{cart: sampleCart()}
			handler := NewCartHandler(mock, 5*time.Second, 1<<20, nil)
			recorder := httptest.NewRecorder()
			request := withUser(httptest.NewRequest(http.MethodPut, "/api/v1/cart", strings.NewReader(tt.body)), "u1")

			handler.SyncCart(recorder, request)

			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
			}
			if resp := decodeError(t, recorder); resp.Code != tt.code {
				t.Errorf("Expected code %q, got %q", tt.code, resp.Code)
			}
			if mock.syncedUser != "" {
				t.Errorf("Service must not be called on invalid input")
			}
		})
	}
}

func TestSyncCart_BodyTooLarge(t *testing.T) {
	mock := &serviceMock{cart: sampleCart()}
	handler := NewCartHandler(mock, 5*time.Second, 16, nil)
	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest(http.MethodPut, "/api/v1/cart",
		strings.NewReader(`{"items":[{"product_id":"P1","quantity":1}]}`)), "u1")

	handler.SyncCart(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestSyncCart_Unauthorized(t *testing.T) {
	mock := &serviceMock{cart: sampleCart()}
	handler := NewCartHandler(mock, 5*time.Second, 1<<20, nil)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPut, "/api/v1/cart", strings.NewReader(`{"items":[]}`))

	handler.SyncCart(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, recorder.Code)
	}
}

func TestRouter_ProductLookup(t *testing.T) {
	tests := []struct {
		name   string
		mock   *serviceMock
		status int
	}{
		{"found", &serviceMock{product: &domain.Product{Code: "P1", Name: "Lamp", Price: 10}}, http.StatusOK},
		{"not found", &serviceMock{err: service.ErrProductNotFound}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := auth.NewManager(auth.Config{SecretKey: "secret"})
			router := NewRouter(NewCartHandler(tt.mock, 5*time.Second, 1<<20, nil), verifier, RouterConfig{}, nil)

			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/products/P1", nil))

			if recorder.Code != tt.status {
				t.Errorf("Expected status code %d, got %d", tt.status, recorder.Code)
			}
		})
	}
}

func TestRouter_BearerTokenIdentifiesOwner(t *testing.T) {
	verifier := auth.NewManager(auth.Config{SecretKey: "secret"})
	token, err := verifier.Issue("u42", "u42@example.com", "customer")
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	mock := &serviceMock{cart: sampleCart()}
	router := NewRouter(NewCartHandler(mock, 5*time.Second, 1<<20, nil), verifier, RouterConfig{RequestTimeout: time.Second}, nil)

	request := httptest.NewRequest(http.MethodPut, "/api/v1/cart", strings.NewReader(`{"items":[{"product_id":"P1","quantity":1}]}`))
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	if mock.syncedUser != "u42" {
		t.Errorf("Expected owner u42, got %q", mock.syncedUser)
	}
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Errorf("Expected X-Request-ID header")
	}
}

func TestRouter_InvalidTokenIsAnonymous(t *testing.T) {
	verifier := auth.NewManager(auth.Config{SecretKey: "secret"})
	router := NewRouter(NewCartHandler(&serviceMock{cart: sampleCart()}, 5*time.Second, 1<<20, nil), verifier, RouterConfig{}, nil)

	request := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	request.Header.Set("Authorization", "Bearer not-a-jwt")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, recorder.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	router := NewRouter(NewCartHandler(&serviceMock{}, time.Second, 0, nil), auth.NewManager(auth.Config{SecretKey: "s"}), RouterConfig{}, nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
}

func TestRespondJSON_EncodeFailureUsesHandlerLogger(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	handler := NewCartHandler(&serviceMock{}, 5*time.Second, 1<<20, log)

	w := httptest.NewRecorder()
	handler.respondJSON(w, http.StatusOK, map[string]float64{"subtotal": math.Inf(1)})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(logs.String(), "failed to encode response") {
		t.Errorf("expected encode failure in handler log, got %q", logs.String())
	}
}
