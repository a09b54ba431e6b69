package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mandi-backend/internal/catalog"
	"github.com/angelmondragon/mandi-backend/internal/grouporders"
	"github.com/angelmondragon/mandi-backend/internal/orders"
	"github.com/angelmondragon/mandi-backend/pkg/auth"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/metrics"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
	"github.com/angelmondragon/mandi-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
	hits map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, hits: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) SetXX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[scope]++
	return m.hits[scope] <= limit, m.hits[scope], nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

type stubCatalog struct{ catalog.Service }

func (stubCatalog) ListProducts(_ context.Context, input catalog.ListProductsInput) (*catalog.ProductList, error) {
	return &catalog.ProductList{Items: []models.Product{}, Limit: input.Limit}, nil
}

type stubOrders struct {
	orders.Service
	mu    sync.Mutex
	calls int
}

func (s *stubOrders) SubmitOrder(_ context.Context, actor auth.Actor, _ orders.SubmitInput) (*models.Order, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &models.Order{ID: uuid.New(), VendorID: actor.ID, Status: enums.OrderStatusPending}, nil
}

func (s *stubOrders) ListOrders(context.Context, auth.Actor, orders.ListInput) (*pagination.Page[models.Order], error) {
	return &pagination.Page[models.Order]{Items: []models.Order{}}, nil
}

type stubGroups struct{ grouporders.Service }

func (stubGroups) List(context.Context, auth.Actor, grouporders.ListInput) (*pagination.Page[models.GroupOrder], error) {
	return &pagination.Page[models.GroupOrder]{Items: []models.GroupOrder{}}, nil
}

type stubDeadLetters struct{}

func (stubDeadLetters) ListDeadLetters(context.Context, outbox.DeadLetterFilter) ([]models.DeadLetter, error) {
	return []models.DeadLetter{{EventID: uuid.New(), Reason: enums.DeadLetterMaxAttempts}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "mandi-test", ExpirationMinutes: 30},
		HTTP: config.HTTPConfig{
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       100,
			RateLimitWindow: time.Minute,
		},
		FeatureFlags: config.FeatureFlagsConfig{RequireIdemKey: true},
	}
}

type fixture struct {
	cfg    *config.Config
	router http.Handler
	orders *stubOrders
}

func newFixture(cfg *config.Config) fixture {
	ordersStub := &stubOrders{}
	reg := prometheus.NewRegistry()
	router := NewRouter(
		cfg,
		logger.Nop(),
		stubPinger{},
		newMemoryRedis(),
		metrics.NewHTTPMetrics(reg),
		reg,
		stubCatalog{},
		ordersStub,
		stubGroups{},
		stubDeadLetters{},
	)
	return fixture{cfg: cfg, router: router, orders: ordersStub}
}

func (f fixture) do(t *testing.T, method, path, body string, role enums.ActorRole, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if role != "" {
		token, err := auth.MintAccessToken(f.cfg.JWT, time.Now(), auth.NewActor(uuid.New(), role), "router test")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newFixture(testConfig())

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/ready", "", "", nil).Code)

	rec := f.do(t, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mandi_http_request_duration_seconds")
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(testConfig())
	rec := f.do(t, http.MethodGet, "/api/v1/products", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRoleGates(t *testing.T) {
	f := newFixture(testConfig())
	idem := map[string]string{"Idempotency-Key": uuid.NewString()}

	tests := []struct {
		name   string
		method string
		path   string
		role   enums.ActorRole
		status int
	}{
		{"any role browses products", http.MethodGet, "/api/v1/products", enums.ActorRoleVendor, http.StatusOK},
		{"vendor cannot list products for sale", http.MethodPost, "/api/v1/supplier/products", enums.ActorRoleVendor, http.StatusForbidden},
		{"supplier cannot place orders", http.MethodPost, "/api/v1/orders", enums.ActorRoleSupplier, http.StatusForbidden},
		{"supplier cannot checkout", http.MethodPost, "/api/v1/checkout", enums.ActorRoleSupplier, http.StatusForbidden},
		{"supplier lists orders", http.MethodGet, "/api/v1/orders", enums.ActorRoleSupplier, http.StatusOK},
		{"supplier browses group orders", http.MethodGet, "/api/v1/group-orders", enums.ActorRoleSupplier, http.StatusOK},
		{"supplier cannot create group orders", http.MethodPost, "/api/v1/group-orders", enums.ActorRoleSupplier, http.StatusForbidden},
		{"supplier cannot join", http.MethodPost, "/api/v1/group-orders/" + uuid.NewString() + "/join", enums.ActorRoleSupplier, http.StatusForbidden},
		{"vendor cannot read dead letters", http.MethodGet, "/api/v1/admin/outbox/dead-letters", enums.ActorRoleVendor, http.StatusForbidden},
		{"admin reads dead letters", http.MethodGet, "/api/v1/admin/outbox/dead-letters?reason=max_attempts", enums.ActorRoleAdmin, http.StatusOK},
		{"unknown dead letter reason", http.MethodGet, "/api/v1/admin/outbox/dead-letters?reason=lost", enums.ActorRoleAdmin, http.StatusBadRequest},
		{"vendor cannot retry settlement", http.MethodPost, "/api/v1/admin/group-orders/" + uuid.NewString() + "/settlement/retry", enums.ActorRoleVendor, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, `{}`, tt.role, idem)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestSubmitOrderRequiresIdempotencyKeyAndReplays(t *testing.T) {
	f := newFixture(testConfig())
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":2}]}`

	rec := f.do(t, http.MethodPost, "/api/v1/orders", body, enums.ActorRoleVendor, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cfg := f.cfg
	vendor := auth.NewActor(uuid.New(), enums.ActorRoleVendor)
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), vendor, "vendor")
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "order-1")
		out := httptest.NewRecorder()
		f.router.ServeHTTP(out, req)
		return out
	}
	first := send()
	second := send()

	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, f.orders.calls)
}

func TestRateLimitApplies(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.RateLimit = 2
	f := newFixture(cfg)

	vendor := auth.NewActor(uuid.New(), enums.ActorRoleVendor)
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), vendor, "vendor")
	require.NoError(t, err)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRouterWithoutRedis(t *testing.T) {
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	router := NewRouter(cfg, logger.Nop(), stubPinger{}, nil, metrics.NewHTTPMetrics(reg), nil, stubCatalog{}, &stubOrders{}, stubGroups{}, stubDeadLetters{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
