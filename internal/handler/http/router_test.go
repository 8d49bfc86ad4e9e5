package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
	shophttp "github.com/vasiliy-maslov/ecommerce-backend/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
)

const (
	testSecret = "test-secret"
	testIssuer = "shop"
)

type services struct {
	catalog *MockCatalogService
	cart    *MockCartService
	order   *MockOrderService
	payment *MockPaymentService
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, db shophttp.Pinger) (chi.Router, *services) {
	t.Helper()
	s := &services{
		catalog: new(MockCatalogService),
		cart:    new(MockCartService),
		order:   new(MockOrderService),
		payment: new(MockPaymentService),
	}
	reg := prometheus.NewRegistry()
	router := shophttp.NewRouter(shophttp.Handlers{
		Catalog: shophttp.NewCatalogHandler(s.catalog),
		Cart:    shophttp.NewCartHandler(s.cart),
		Order:   shophttp.NewOrderHandler(s.order),
		Payment: shophttp.NewPaymentHandler(s.payment),
	}, shophttp.RouterOptions{
		Verifier: auth.NewVerifier(testSecret, testIssuer),
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		DB:       db,
	})
	return router, s
}

func newPrincipal(role auth.Role) auth.Principal {
	return auth.Principal{UserID: uuid.Must(uuid.NewV4()), Role: role}
}

// doRequest sends body as JSON with a bearer token for p; a zero p sends no token.
func doRequest(t *testing.T, router http.Handler, method, path string, p auth.Principal, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if p.UserID != uuid.Nil {
		token, err := auth.SignToken(testSecret, testIssuer, p, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	msg, _ := body["error"].(string)
	return msg
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, pinger{})

	rr := doRequest(t, router, http.MethodGet, "/health", auth.Principal{}, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouter_HealthDatabaseDown(t *testing.T) {
	router, _ := newTestRouter(t, pinger{err: errors.New("conn refused")})

	rr := doRequest(t, router, http.MethodGet, "/health", auth.Principal{}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_MetricsExposed(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	doRequest(t, router, http.MethodGet, "/health", auth.Principal{}, nil)

	rr := doRequest(t, router, http.MethodGet, "/metrics", auth.Principal{}, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestRouter_RequiresToken(t *testing.T) {
	router, s := newTestRouter(t, nil)

	rr := doRequest(t, router, http.MethodGet, "/orders/stats", auth.Principal{}, nil)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	s.order.AssertNotCalled(t, "GetStats", mock.Anything, mock.Anything)
}

func TestRouter_PrincipalReachesService(t *testing.T) {
	router, s := newTestRouter(t, nil)
	user := newPrincipal(auth.RoleBuyer)
	s.order.On("GetStats", mock.Anything, user).Return(&order.Stats{TotalOrders: 3, ByStatus: map[order.OrderStatus]int{}}, nil).Once()

	rr := doRequest(t, router, http.MethodGet, "/orders/stats", user, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total_orders":3`)
	s.order.AssertExpectations(t)
}
