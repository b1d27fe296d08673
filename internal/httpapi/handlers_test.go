package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"reserv.org/internal/auth"
	"reserv.org/internal/schedule"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	auth    *auth.Service
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("RESERV_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	authSvc, err := auth.NewService(auth.NewMemoryStore())
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	if err := authSvc.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("ensure builtins: %v", err)
	}
	scheduleSvc, err := schedule.NewService(schedule.NewMemoryLedger(), authSvc)
	if err != nil {
		t.Fatalf("schedule service: %v", err)
	}

	api := New(authSvc, scheduleSvc,
		WithVersion("test"),
		WithTokenTTL(time.Hour),
		WithRateLimit(1000, 1000),
	)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		auth:    authSvc,
	}
}

// seedUser provisions an account with a role directly in the store.
func (c *apiClient) seedUser(id, password, role string) {
	c.t.Helper()
	ctx := context.Background()
	if _, err := c.auth.CreateUser(ctx, id, id, password, auth.UserStatusActive); err != nil {
		c.t.Fatalf("create user: %v", err)
	}
	if role != "" {
		if err := c.auth.AssignRole(ctx, id, role); err != nil {
			c.t.Fatalf("assign role: %v", err)
		}
	}
}

func (c *apiClient) login(id, password string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]string{
		"user_id":  id,
		"password": password,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login failed with status %d", resp.StatusCode)
	}
	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.t.Fatalf("decode login response: %v", err)
	}
	return body.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode body %q: %v", raw, err)
	}
	return body
}

func futureDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/info", nil, nil)
	body := decodeBody(t, resp)
	if body["service"] != "reserv" || body["version"] != "test" {
		t.Fatalf("unexpected info %v", body)
	}
}

func TestProtectedPathsRequireToken(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/v1/auth/me", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/auth/me", nil, bearer("garbage"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for invalid token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginAndMe(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	token := c.login("dana", "s3cret-pass")

	resp := c.get("/v1/auth/me", nil, bearer(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["user_id"] != "dana" {
		t.Fatalf("unexpected me body %v", body)
	}
	perms, _ := body["permissions"].([]any)
	if len(perms) != 2 {
		t.Fatalf("expected member permissions, got %v", perms)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)

	resp := c.post("/v1/auth/login", map[string]string{
		"user_id":  "dana",
		"password": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPermissionQuery(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	token := c.login("dana", "s3cret-pass")

	resp := c.get("/v1/auth/permission", url.Values{"name": {"book"}}, bearer(token))
	body := decodeBody(t, resp)
	if body["granted"] != true {
		t.Fatalf("expected book granted, got %v", body)
	}

	resp = c.get("/v1/auth/permission", url.Values{"name": {"manage"}}, bearer(token))
	body = decodeBody(t, resp)
	if body["granted"] != false {
		t.Fatalf("expected manage denied, got %v", body)
	}

	// Unknown keys answer false, not an error.
	resp = c.get("/v1/auth/permission", url.Values{"name": {"teleport"}}, bearer(token))
	body = decodeBody(t, resp)
	if body["granted"] != false {
		t.Fatalf("expected unknown key denied, got %v", body)
	}
}

func TestBookFlow(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	token := c.login("dana", "s3cret-pass")
	date := futureDate(3)

	resp := c.post("/v1/schedule/book", map[string]string{"date": date}, bearer(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("book status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["outcome"] != "booked" {
		t.Fatalf("unexpected outcome %v", body)
	}

	resp = c.get("/v1/schedule/booker", url.Values{"date": {date}}, bearer(token))
	body = decodeBody(t, resp)
	if body["is_booked"] != true || body["booker"] != "dana" {
		t.Fatalf("unexpected booker %v", body)
	}
}

func TestBookConflictAnswers403(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	c.seedUser("erik", "s3cret-pass", auth.RoleMember)
	date := futureDate(3)

	resp := c.post("/v1/schedule/book", map[string]string{"date": date}, bearer(c.login("dana", "s3cret-pass")))
	resp.Body.Close()

	resp = c.post("/v1/schedule/book", map[string]string{"date": date}, bearer(c.login("erik", "s3cret-pass")))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 conflict, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["outcome"] != "conflict" || body["reason"] != "already booked" {
		t.Fatalf("unexpected conflict body %v", body)
	}
}

func TestBookWithoutPermissionAnswers403(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", "")
	token := c.login("dana", "s3cret-pass")

	resp := c.post("/v1/schedule/book", map[string]string{"date": futureDate(3)}, bearer(token))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["reason"] != "no booking permission" {
		t.Fatalf("unexpected reason %v", body)
	}
}

func TestRateLimitRejectionOverHTTP(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	token := c.login("dana", "s3cret-pass")

	for _, days := range []int{10, 12} {
		resp := c.post("/v1/schedule/book", map[string]string{"date": futureDate(days)}, bearer(token))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("seed booking status %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := c.post("/v1/schedule/book", map[string]string{"date": futureDate(14)}, bearer(token))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["reason"] != "rate limit exceeded" {
		t.Fatalf("unexpected reason %v", body)
	}
}

func TestCancelFlow(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	c.seedUser("erik", "s3cret-pass", auth.RoleMember)
	c.seedUser("root", "s3cret-pass", auth.RoleAdmin)
	date := futureDate(3)
	dana := bearer(c.login("dana", "s3cret-pass"))
	erik := bearer(c.login("erik", "s3cret-pass"))
	root := bearer(c.login("root", "s3cret-pass"))

	resp := c.post("/v1/schedule/book", map[string]string{"date": date}, dana)
	resp.Body.Close()

	// Non-owner without manage cannot cancel.
	resp = c.post("/v1/schedule/cancel", map[string]string{"date": date}, erik)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["reason"] != "not authorized" {
		t.Fatalf("unexpected reason %v", body)
	}

	// Admin can.
	resp = c.post("/v1/schedule/cancel", map[string]string{"date": date}, root)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin cancel status %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	if body["outcome"] != "cancelled" {
		t.Fatalf("unexpected outcome %v", body)
	}

	// A second cancel finds nothing.
	resp = c.post("/v1/schedule/cancel", map[string]string{"date": date}, dana)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	if body["reason"] != "nothing to cancel" {
		t.Fatalf("unexpected reason %v", body)
	}
}

func TestBookersRange(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	token := bearer(c.login("dana", "s3cret-pass"))
	date := futureDate(3)

	resp := c.post("/v1/schedule/book", map[string]string{"date": date}, token)
	resp.Body.Close()

	resp = c.get("/v1/schedule/bookers", url.Values{
		"from": {futureDate(2)},
		"to":   {futureDate(4)},
	}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bookers status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if len(body) != 3 {
		t.Fatalf("expected 3 dates, got %v", body)
	}
	day, ok := body[date].(map[string]any)
	if !ok || day["is_booked"] != true {
		t.Fatalf("expected %s booked, got %v", date, body)
	}
}

func TestBookersInvalidRange(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	token := bearer(c.login("dana", "s3cret-pass"))

	resp := c.get("/v1/schedule/bookers", url.Values{
		"from": {futureDate(4)},
		"to":   {futureDate(2)},
	}, token)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminUserManagement(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("root", "s3cret-pass", auth.RoleAdmin)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	root := bearer(c.login("root", "s3cret-pass"))
	dana := bearer(c.login("dana", "s3cret-pass"))

	// Member cannot provision users.
	resp := c.post("/v1/users", map[string]string{
		"user_id": "erik", "display_name": "Erik", "password": "pass-erik-1",
	}, dana)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/v1/users", map[string]string{
		"user_id": "erik", "display_name": "Erik", "password": "pass-erik-1",
	}, root)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Duplicate id conflicts.
	resp = c.post("/v1/users", map[string]string{
		"user_id": "erik", "display_name": "Erik Again", "password": "pass-erik-2",
	}, root)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/v1/users/erik/roles", map[string]string{"role": auth.RoleMember}, root)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign role status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/v1/users/erik/roles", map[string]string{"role": "sultan"}, root)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown role, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The new member can log in and book.
	erik := bearer(c.login("erik", "pass-erik-1"))
	resp = c.post("/v1/schedule/book", map[string]string{"date": futureDate(5)}, erik)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("new member book status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Deactivated accounts lose access.
	resp = c.post("/v1/users/erik/status", map[string]string{"status": auth.UserStatusInactive}, root)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set status status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/auth/me", nil, erik)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for inactive account, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAccountSelfService(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("dana", "s3cret-pass", auth.RoleMember)
	token := bearer(c.login("dana", "s3cret-pass"))

	resp := c.post("/v1/account/name", map[string]string{"display_name": "Dana K"}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/auth/me", nil, token)
	body := decodeBody(t, resp)
	if body["display_name"] != "Dana K" {
		t.Fatalf("unexpected display name %v", body)
	}

	resp = c.post("/v1/account/password", map[string]string{
		"current": "wrong", "replacement": "next-pass-1",
	}, token)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong current password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/v1/account/password", map[string]string{
		"current": "s3cret-pass", "replacement": "next-pass-1",
	}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("password change status %d", resp.StatusCode)
	}
	resp.Body.Close()

	c.login("dana", "next-pass-1")
}
