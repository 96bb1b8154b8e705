package router

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/testutil"
	"github.com/iliyamo/auth-service/internal/utils"
)

type testServer struct {
	e        *echo.Echo
	issuer   *utils.TokenIssuer
	sessions *repository.SessionRepo
}

func newServer(t *testing.T, adminRole string) *testServer {
	t.Helper()
	return newServerWith(t, adminRole, config.RateLimitConfig{Enabled: false}, nil)
}

func newServerWith(t *testing.T, adminRole string, rl config.RateLimitConfig, trusted []*net.IPNet) *testServer {
	t.Helper()
	rdb, _ := testutil.NewRedis(t)
	store := testutil.NewMemoryStore()
	issuer, err := utils.NewTokenIssuer("test-secret", "HS256", 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	opts := service.Options{BcryptCost: bcrypt.MinCost, StoreTimeout: time.Second, RetryAttempts: 1}
	sessions := repository.NewSessionRepo(rdb, time.Hour, true)
	auth := service.NewAuthService(store, sessions, issuer, nil, opts)
	roles := service.NewRoleService(store, store, opts)

	e := NewEcho(trusted)
	RegisterRoutes(e)
	limiter := middleware.NewTokenBucket(rl, rdb)
	RegisterAuth(e, handler.NewAuthHandler(auth), issuer, limiter)
	RegisterRoles(e, handler.NewRoleHandler(roles), issuer, adminRole)
	return &testServer{e: e, issuer: issuer, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path, body, bearer string) (int, map[string]any, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	req.Header.Set("User-Agent", "router-test")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad json %q", method, path, rec.Body.String())
		}
	}
	return rec.Code, out, rec.Body.String()
}

func (s *testServer) mustStatus(t *testing.T, want int, method, path, body, bearer string) map[string]any {
	t.Helper()
	code, out, raw := s.do(t, method, path, body, bearer)
	if code != want {
		t.Fatalf("%s %s = %d, want %d: %s", method, path, code, want, raw)
	}
	return out
}

const aliceJSON = `{"email":"a@x.com","login":"alice","password":"secret1"}`
const aliceLogin = `{"login":"alice","password":"secret1"}`

func TestSessionLifecycle(t *testing.T) {
	s := newServer(t, "")

	user := s.mustStatus(t, http.StatusCreated, http.MethodPost, "/auth/register", aliceJSON, "")
	if user["login"] != "alice" || user["email"] != "a@x.com" {
		t.Fatalf("register body = %v", user)
	}
	if roles, ok := user["roles"].([]any); !ok || len(roles) != 0 {
		t.Fatalf("roles = %#v", user["roles"])
	}
	if _, ok := user["password_hash"]; ok {
		t.Fatal("password hash leaked")
	}

	tokens := s.mustStatus(t, http.StatusOK, http.MethodPost, "/auth/login", aliceLogin, "")
	access, _ := tokens["access_token"].(string)
	refresh, _ := tokens["refresh_token"].(string)
	if access == "" || refresh == "" || tokens["token_type"] != "bearer" {
		t.Fatalf("login body = %v", tokens)
	}
	if tokens["expires_in"] != float64(900) {
		t.Fatalf("expires_in = %v", tokens["expires_in"])
	}

	body := `{"refresh_token":"` + refresh + `"}`
	next := s.mustStatus(t, http.StatusOK, http.MethodPost, "/auth/refresh", body, "")
	if next["refresh_token"] != refresh {
		t.Fatalf("refresh token changed: %v", next["refresh_token"])
	}
	if a, _ := next["access_token"].(string); a == "" || a == access {
		t.Fatal("expected a new access token")
	}

	out := s.mustStatus(t, http.StatusOK, http.MethodPost, "/auth/logout", body, "")
	if out["detail"] != "logged out" {
		t.Fatalf("logout body = %v", out)
	}
	out = s.mustStatus(t, http.StatusUnauthorized, http.MethodPost, "/auth/refresh", body, "")
	if out["error"] != "invalid refresh token" {
		t.Fatalf("refresh after logout body = %v", out)
	}
	// Logging out twice is still acknowledged.
	s.mustStatus(t, http.StatusOK, http.MethodPost, "/auth/logout", body, "")
}

func TestRegisterAndLoginErrors(t *testing.T) {
	s := newServer(t, "")
	s.mustStatus(t, http.StatusCreated, http.MethodPost, "/auth/register", aliceJSON, "")

	cases := []struct {
		name, path, body string
		code             int
	}{
		{"duplicate email", "/auth/register", `{"email":"a@x.com","login":"other","password":"secret1"}`, http.StatusBadRequest},
		{"duplicate login", "/auth/register", `{"email":"b@x.com","login":"alice","password":"secret1"}`, http.StatusBadRequest},
		{"bad email", "/auth/register", `{"email":"nope","login":"bob","password":"secret1"}`, http.StatusBadRequest},
		{"short password", "/auth/register", `{"email":"b@x.com","login":"bob","password":"123"}`, http.StatusBadRequest},
		{"malformed json", "/auth/register", `{"email":`, http.StatusBadRequest},
		{"wrong password", "/auth/login", `{"login":"alice","password":"nope12"}`, http.StatusUnauthorized},
		{"unknown login", "/auth/login", `{"login":"ghost","password":"secret1"}`, http.StatusUnauthorized},
		{"missing refresh token", "/auth/refresh", `{}`, http.StatusBadRequest},
		{"unknown refresh token", "/auth/refresh", `{"refresh_token":"deadbeef"}`, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := s.mustStatus(t, tc.code, http.MethodPost, tc.path, tc.body, "")
			if msg, _ := out["error"].(string); msg == "" {
				t.Fatalf("no error message: %v", out)
			}
		})
	}

	out := s.mustStatus(t, http.StatusBadRequest, http.MethodPost, "/auth/register", `{"email":"a@x.com","login":"other","password":"secret1"}`, "")
	if out["error"] != "email or login already taken" {
		t.Fatalf("conflict message = %v", out["error"])
	}
}

func TestProfileAndHistory(t *testing.T) {
	s := newServer(t, "")
	s.mustStatus(t, http.StatusCreated, http.MethodPost, "/auth/register", aliceJSON, "")
	s.mustStatus(t, http.StatusCreated, http.MethodPost, "/auth/register", `{"email":"b@x.com","login":"bob","password":"secret2"}`, "")

	s.mustStatus(t, http.StatusUnauthorized, http.MethodGet, "/auth/history", "", "")
	s.mustStatus(t, http.StatusUnauthorized, http.MethodPut, "/auth/profile", `{"login":"alice2"}`, "not-a-jwt")

	var access string
	for i := 0; i < 3; i++ {
		tokens := s.mustStatus(t, http.StatusOK, http.MethodPost, "/auth/login", aliceLogin, "")
		access = tokens["access_token"].(string)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/history", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+access)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d: %s", rec.Code, rec.Body.String())
	}
	var hist []struct {
		ID        uint64    `json:"id"`
		UserAgent *string   `json:"user_agent"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("history len = %d", len(hist))
	}
	if !hist[0].CreatedAt.After(hist[2].CreatedAt) {
		t.Fatal("history not newest first")
	}
	if hist[0].UserAgent == nil || *hist[0].UserAgent != "router-test" {
		t.Fatalf("user agent = %v", hist[0].UserAgent)
	}

	s.mustStatus(t, http.StatusBadRequest, http.MethodPut, "/auth/profile", `{"login":"bob"}`, access)
	s.mustStatus(t, http.StatusBadRequest, http.MethodPut, "/auth/profile", `{"password":null}`, access)
	s.mustStatus(t, http.StatusBadRequest, http.MethodPut, "/auth/profile", `{"password":"123"}`, access)

	user := s.mustStatus(t, http.StatusOK, http.MethodPut, "/auth/profile", `{"login":"alice2"}`, access)
	if user["login"] != "alice2" || user["email"] != "a@x.com" {
		t.Fatalf("profile body = %v", user)
	}
	s.mustStatus(t, http.StatusOK, http.MethodPost, "/auth/login", `{"login":"alice2","password":"secret1"}`, "")
}

func TestRoleScenario(t *testing.T) {
	s := newServer(t, "")
	s.mustStatus(t, http.StatusCreated, http.MethodPost, "/auth/register", aliceJSON, "")

	role := s.mustStatus(t, http.StatusCreated, http.MethodPost, "/roles", `{"name":"editor"}`, "")
	if role["name"] != "editor" {
		t.Fatalf("role body = %v", role)
	}
	id := strconv.FormatFloat(role["id"].(float64), 'f', 0, 64)
	s.mustStatus(t, http.StatusBadRequest, http.MethodPost, "/roles", `{"name":"editor"}`, "")

	member := `{"login":"alice","required_role":"editor"}`
	s.mustStatus(t, http.StatusOK, http.MethodPost, "/roles/assign", member, "")
	check := s.mustStatus(t, http.StatusOK, http.MethodPost, "/roles/check", member, "")
	if check["allowed"] != true || check["login"] != "alice" || check["required_role"] != "editor" {
		t.Fatalf("check body = %v", check)
	}

	// The role shows up in a fresh access token.
	tokens := s.mustStatus(t, http.StatusOK, http.MethodPost, "/auth/login", aliceLogin, "")
	claims, err := s.issuer.Verify(tokens["access_token"].(string))
	if err != nil || len(claims.Roles) != 1 || claims.Roles[0] != "editor" {
		t.Fatalf("claims = %+v, %v", claims, err)
	}

	s.mustStatus(t, http.StatusOK, http.MethodPost, "/roles/revoke", member, "")
	s.mustStatus(t, http.StatusOK, http.MethodPost, "/roles/revoke", member, "")
	check = s.mustStatus(t, http.StatusOK, http.MethodPost, "/roles/check", member, "")
	if check["allowed"] != false {
		t.Fatalf("check after revoke = %v", check)
	}

	s.mustStatus(t, http.StatusNotFound, http.MethodPost, "/roles/assign", `{"login":"ghost","required_role":"editor"}`, "")
	s.mustStatus(t, http.StatusNotFound, http.MethodPost, "/roles/assign", `{"login":"alice","required_role":"ghost"}`, "")

	renamed := s.mustStatus(t, http.StatusOK, http.MethodPut, "/roles/"+id, `{"name":"writer"}`, "")
	if renamed["name"] != "writer" {
		t.Fatalf("rename body = %v", renamed)
	}
	s.mustStatus(t, http.StatusNotFound, http.MethodPut, "/roles/999", `{"name":"other"}`, "")
	s.mustStatus(t, http.StatusBadRequest, http.MethodPut, "/roles/abc", `{"name":"other"}`, "")

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"name":"writer"`) {
		t.Fatalf("list = %d %s", rec.Code, rec.Body.String())
	}

	code, _, _ := s.do(t, http.MethodDelete, "/roles/"+id, "", "")
	if code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	s.mustStatus(t, http.StatusNotFound, http.MethodDelete, "/roles/"+id, "", "")
}

func TestRolesAdminGuard(t *testing.T) {
	s := newServer(t, "admin")

	s.mustStatus(t, http.StatusUnauthorized, http.MethodPost, "/roles", `{"name":"editor"}`, "")

	plain, _ := s.issuer.Issue(1, "alice", []string{"editor"})
	s.mustStatus(t, http.StatusForbidden, http.MethodPost, "/roles", `{"name":"editor"}`, plain.Token)

	admin, _ := s.issuer.Issue(2, "root", []string{"admin"})
	s.mustStatus(t, http.StatusCreated, http.MethodPost, "/roles", `{"name":"editor"}`, admin.Token)
}

func TestHealth(t *testing.T) {
	s := newServer(t, "")
	code, _, body := s.do(t, http.MethodGet, "/healthz", "", "")
	if code != http.StatusOK || body != "ok" {
		t.Fatalf("healthz = %d %q", code, body)
	}
}

func (s *testServer) send(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) lastLoginIP(t *testing.T, access string) string {
	t.Helper()
	rec := s.send(http.MethodGet, "/auth/history", "", map[string]string{echo.HeaderAuthorization: "Bearer " + access})
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d: %s", rec.Code, rec.Body.String())
	}
	var hist []struct {
		IPAddress *string `json:"ip_address"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil || len(hist) == 0 || hist[0].IPAddress == nil {
		t.Fatalf("history body = %s", rec.Body.String())
	}
	return *hist[0].IPAddress
}

var singleAttempt = config.RateLimitConfig{
	Enabled:        true,
	Capacity:       1,
	RefillTokens:   1,
	RefillInterval: time.Hour,
	TTL:            2 * time.Hour,
	KeyStrategy:    "ip_route",
	Prefix:         "rl",
}

func TestForwardedForIgnoredWithoutTrustedProxies(t *testing.T) {
	s := newServerWith(t, "", singleAttempt, nil)

	var codes []int
	for _, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		rec := s.send(http.MethodPost, "/auth/login", `{"login":"ghost","password":"secret1"}`, map[string]string{
			echo.HeaderXForwardedFor: xff,
			echo.HeaderXRealIP:       xff,
		})
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestLoginHistoryRecordsPeerAddress(t *testing.T) {
	s := newServer(t, "")
	s.mustStatus(t, http.StatusCreated, http.MethodPost, "/auth/register", aliceJSON, "")

	rec := s.send(http.MethodPost, "/auth/login", aliceLogin, map[string]string{
		echo.HeaderXForwardedFor: strings.Repeat("x", 200),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	var tokens tokenBody
	_ = json.Unmarshal(rec.Body.Bytes(), &tokens)
	// httptest requests come from 192.0.2.1.
	if ip := s.lastLoginIP(t, tokens.AccessToken); ip != "192.0.2.1" {
		t.Fatalf("recorded ip = %q", ip)
	}
}

func TestForwardedForHonoredFromTrustedProxy(t *testing.T) {
	_, proxies, _ := net.ParseCIDR("192.0.2.0/24")
	s := newServerWith(t, "", singleAttempt, []*net.IPNet{proxies})

	rec := s.send(http.MethodPost, "/auth/register", aliceJSON, map[string]string{echo.HeaderXForwardedFor: "203.0.113.9"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}

	// Distinct clients behind the proxy get distinct buckets.
	for _, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		rec := s.send(http.MethodPost, "/auth/login", `{"login":"ghost","password":"secret1"}`, map[string]string{echo.HeaderXForwardedFor: xff})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("login from %s = %d", xff, rec.Code)
		}
	}
	rec = s.send(http.MethodPost, "/auth/login", aliceLogin, map[string]string{echo.HeaderXForwardedFor: "203.0.113.5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	var tokens tokenBody
	_ = json.Unmarshal(rec.Body.Bytes(), &tokens)
	if ip := s.lastLoginIP(t, tokens.AccessToken); ip != "203.0.113.5" {
		t.Fatalf("recorded ip = %q", ip)
	}

	// The same client is still limited.
	rec = s.send(http.MethodPost, "/auth/login", aliceLogin, map[string]string{echo.HeaderXForwardedFor: "203.0.113.5"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second login = %d, want 429", rec.Code)
	}
}

type tokenBody struct {
	AccessToken string `json:"access_token"`
}
