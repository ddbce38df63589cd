package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"server_rental/internal/auth"
	"server_rental/internal/config"
	"server_rental/internal/db"
	"server_rental/internal/scheduler"
	"server_rental/internal/service"
	"server_rental/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	mr     *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gdb, err := db.Open(&config.Config{DBDriver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := utils.NewCache(rdb, time.Minute)

	svc := service.New(gdb, auth.BcryptHasher{Cost: bcrypt.MinCost}, service.Options{Cache: cache, StartingCoins: 100})
	r := gin.New()
	RegisterRoutes(r, Deps{
		Service: svc,
		Issuer:  utils.NewTokenIssuer("test-secret", time.Hour),
		Cache:   cache,
		Admin:   auth.StaticAdmin{Username: "admin", Password: "admin-pw"},
		Runner:  scheduler.NewRunner(svc, scheduler.NewRedisLock(rdb, scheduler.LockKey, time.Minute), 0),
	})
	return &testServer{router: r, mr: mr}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/admin/login", "", gin.H{"username": "admin", "password": "admin-pw"})
	require.Equal(t, http.StatusOK, code, body)
	return body["token"].(string)
}

func (s *testServer) addServer(t *testing.T, admin, name, tier string) uint {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/admin/servers", admin, gin.H{"name": name, "server_url": "https://" + name, "server_type": tier})
	require.Equal(t, http.StatusCreated, code, body)
	return uint(body["server"].(map[string]any)["id"].(float64))
}

func (s *testServer) register(t *testing.T, name string) map[string]any {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/user", "", gin.H{"username": name, "password": "pw", "confirm_password": "pw"})
	require.Equal(t, http.StatusCreated, code, body)
	return body
}

func (s *testServer) login(t *testing.T, name string) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/user/login", "", gin.H{"username": name, "password": "pw"})
	require.Equal(t, http.StatusOK, code, body)
	return body["token"].(string)
}

func TestRegisterPurchaseFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)

	freeID := s.addServer(t, admin, "free-1", "free")
	reg := s.register(t, "alice")
	assert.Equal(t, true, reg["success"])
	assert.Contains(t, reg["message"], "Allocated to free-1")
	assert.Equal(t, float64(100), reg["user"].(map[string]any)["coins"])

	paidID := s.addServer(t, admin, "paid-10", "paid_10")
	token := s.login(t, "alice")

	code, body := s.do(t, http.MethodPost, fmt.Sprintf("/servers/%d/purchase", paidID), token, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])

	code, body = s.do(t, http.MethodGet, "/user/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	dash := body["dashboard"].(map[string]any)
	assert.Equal(t, float64(90), dash["user"].(map[string]any)["coins"])
	assert.Equal(t, float64(paidID), dash["server"].(map[string]any)["id"])

	code, body = s.do(t, http.MethodGet, "/admin/servers", admin, nil)
	require.Equal(t, http.StatusOK, code)
	for _, raw := range body["servers"].([]any) {
		srv := raw.(map[string]any)
		if uint(srv["id"].(float64)) == freeID {
			assert.Equal(t, false, srv["is_occupied"])
		}
	}

	code, body = s.do(t, http.MethodGet, "/admin/transactions", admin, nil)
	require.Equal(t, http.StatusOK, code)
	txs := body["transactions"].([]any)
	require.Len(t, txs, 1)
	assert.Equal(t, "purchase", txs[0].(map[string]any)["transaction_type"])
	assert.Equal(t, float64(10), txs[0].(map[string]any)["amount"])
}

func TestPurchaseErrors(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)
	freeID := s.addServer(t, admin, "free-1", "free")
	pricey := s.addServer(t, admin, "paid-15", "paid_15")
	s.register(t, "alice")
	token := s.login(t, "alice")

	code, body := s.do(t, http.MethodPost, fmt.Sprintf("/servers/%d/purchase", freeID), token, nil)
	assert.Equal(t, http.StatusConflict, code, "own free server is occupied")
	assert.Equal(t, "server_unavailable", body["error"])

	code, body = s.do(t, http.MethodPost, "/servers/999/purchase", token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["success"])

	code, _ = s.do(t, http.MethodPost, "/servers/abc/purchase", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, fmt.Sprintf("/servers/%d/purchase", pricey), "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// Drain the balance below the price
	code, body = s.do(t, http.MethodPut, "/admin/settings", admin, gin.H{"coin_deduction_rate": 90})
	require.Equal(t, http.StatusOK, code, body)
	code, _ = s.do(t, http.MethodPost, "/api/deduct_coins", admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodPost, fmt.Sprintf("/servers/%d/purchase", pricey), token, nil)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "insufficient_funds", body["error"])
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/user", "", gin.H{"username": "bob", "password": "a", "confirm_password": "b"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "password_mismatch", body["error"])

	code, body = s.do(t, http.MethodPost, "/user", "", gin.H{"username": "", "password": "a", "confirm_password": "a"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing_field", body["error"])

	s.register(t, "bob")
	code, body = s.do(t, http.MethodPost, "/user", "", gin.H{"username": "bob", "password": "pw", "confirm_password": "pw"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate_username", body["error"])

	code, body = s.do(t, http.MethodPost, "/user/login", "", gin.H{"username": "bob", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_credentials", body["error"])
}

func TestLogoutReleasesAndRevokes(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)
	s.addServer(t, admin, "free-1", "free")
	s.register(t, "alice")
	token := s.login(t, "alice")

	code, body := s.do(t, http.MethodGet, "/user/server", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, body["server"])

	code, _ = s.do(t, http.MethodPost, "/user/logout", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/user/server", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "token is revoked after logout")

	code, body = s.do(t, http.MethodGet, "/servers/stats", "", nil)
	require.Equal(t, http.StatusOK, code)
	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["available"])
	assert.Equal(t, float64(0), stats["occupied"])
}

func TestAdminGateway(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/admin/login", "", gin.H{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_credentials", body["error"])

	s.register(t, "alice")
	userToken := s.login(t, "alice")
	code, body = s.do(t, http.MethodGet, "/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "unauthorized", body["error"])

	code, _ = s.do(t, http.MethodPost, "/api/deduct_coins", userToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdminOperations(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)

	code, body := s.do(t, http.MethodPost, "/admin/servers", admin, gin.H{"name": "x", "server_url": "https://x", "server_type": "gold"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_tier", body["error"])

	serverID := s.addServer(t, admin, "free-1", "free")
	reg := s.register(t, "alice")
	userID := uint(reg["user"].(map[string]any)["id"].(float64))

	code, body = s.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/coins", userID), admin, gin.H{"coins": 50})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(150), body["user"].(map[string]any)["coins"])

	code, body = s.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/coins", userID), admin, gin.H{"coins": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_amount", body["error"])

	code, body = s.do(t, http.MethodPut, "/admin/settings", admin, gin.H{"logo_url": "https://logo", "coin_deduction_rate": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_rate", body["error"])

	code, body = s.do(t, http.MethodGet, "/admin/settings", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["settings"].(map[string]any)["coin_deduction_rate"])

	code, body = s.do(t, http.MethodPost, "/api/deduct_coins", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["report"].(map[string]any)["deducted"])

	code, _ = s.do(t, http.MethodPost, fmt.Sprintf("/admin/servers/%d/release", serverID), admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodDelete, fmt.Sprintf("/admin/servers/%d", serverID), admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["released_users"])

	code, body = s.do(t, http.MethodDelete, fmt.Sprintf("/admin/servers/%d", serverID), admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "server_not_found", body["error"])

	code, body = s.do(t, http.MethodGet, "/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, code)
	users := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, float64(149), users[0].(map[string]any)["coins"])
	assert.NotContains(t, users[0], "password")
}

func TestReadCache(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)
	s.addServer(t, admin, "paid-5", "paid_5")

	_, body := s.do(t, http.MethodGet, "/servers", "", nil)
	assert.Equal(t, false, body["cached"])
	_, body = s.do(t, http.MethodGet, "/servers", "", nil)
	assert.Equal(t, true, body["cached"])
	assert.Len(t, body["servers"], 1)

	// A write invalidates the listing
	s.addServer(t, admin, "paid-10", "paid_10")
	_, body = s.do(t, http.MethodGet, "/servers", "", nil)
	assert.Equal(t, false, body["cached"])
	assert.Len(t, body["servers"], 2)
}

func TestUserRequestAndReleaseServer(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)
	freeID := s.addServer(t, admin, "free-1", "free")
	reg := s.register(t, "alice")
	userID := uint(reg["user"].(map[string]any)["id"].(float64))
	token := s.login(t, "alice")

	code, body := s.do(t, http.MethodPost, "/user/server", token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_allocated", body["error"])

	code, body = s.do(t, http.MethodDelete, "/user/server", token, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["released"])

	// The session survives the release
	code, body = s.do(t, http.MethodGet, "/user/server", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["server"])

	code, body = s.do(t, http.MethodDelete, "/user/server", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["released"])

	code, body = s.do(t, http.MethodPost, "/user/server", token, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(freeID), body["server"].(map[string]any)["id"])

	// Drive the balance negative, then evict on the following sweep
	code, _ = s.do(t, http.MethodPut, "/admin/settings", admin, gin.H{"coin_deduction_rate": 200})
	require.Equal(t, http.StatusOK, code)
	for i := 0; i < 2; i++ {
		code, _ = s.do(t, http.MethodPost, "/api/deduct_coins", admin, nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, body = s.do(t, http.MethodGet, "/user/server", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, body["server"], "evicted after running out of coins")

	code, body = s.do(t, http.MethodPost, "/user/server", token, nil)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "insufficient_funds", body["error"])

	// An admin top-up is enough to come back without logging in again
	code, _ = s.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/coins", userID), admin, gin.H{"coins": 500})
	require.Equal(t, http.StatusOK, code)
	code, body = s.do(t, http.MethodPost, "/user/server", token, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(freeID), body["server"].(map[string]any)["id"])

	code, _ = s.do(t, http.MethodPost, "/user/server", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRequestServerWhenPoolIsEmpty(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)
	s.addServer(t, admin, "free-1", "free")
	s.register(t, "alice")
	s.register(t, "bob")
	token := s.login(t, "bob")

	code, body := s.do(t, http.MethodPost, "/user/server", token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "server_unavailable", body["error"])
}

func TestAdminLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)

	code, _ := s.do(t, http.MethodGet, "/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPost, "/admin/logout", admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/admin/users", admin, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// A fresh login still works
	code, _ = s.do(t, http.MethodGet, "/admin/users", s.adminToken(t), nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestDashboardReflectsOtherUsersWrites(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)
	s.addServer(t, admin, "free-1", "free")
	s.addServer(t, admin, "free-2", "free")
	paidID := s.addServer(t, admin, "paid-5", "paid_5")
	s.register(t, "alice")
	s.register(t, "bob")
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	dashboard := func() (map[string]any, bool) {
		code, body := s.do(t, http.MethodGet, "/user/me", bob, nil)
		require.Equal(t, http.StatusOK, code, body)
		return body["dashboard"].(map[string]any), body["cached"].(bool)
	}

	dash, _ := dashboard()
	require.Len(t, dash["available_servers"], 1)
	_, cached := dashboard()
	assert.True(t, cached)

	code, _ := s.do(t, http.MethodPost, fmt.Sprintf("/servers/%d/purchase", paidID), alice, nil)
	require.Equal(t, http.StatusOK, code)
	dash, cached = dashboard()
	assert.False(t, cached)
	// The bought server left the listing and alice's old free server joined it
	available := dash["available_servers"].([]any)
	require.Len(t, available, 1)
	assert.Equal(t, "free-1", available[0].(map[string]any)["name"])

	code, _ = s.do(t, http.MethodPut, "/admin/settings", admin, gin.H{"logo_url": "https://new-logo", "coin_deduction_rate": 2})
	require.Equal(t, http.StatusOK, code)
	dash, _ = dashboard()
	settings := dash["settings"].(map[string]any)
	assert.Equal(t, "https://new-logo", settings["logo_url"])
	assert.Equal(t, float64(2), settings["coin_deduction_rate"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rental_http_requests_total")
}
