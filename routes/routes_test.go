package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenantchat/backend/app"
	"github.com/upb/tenantchat/backend/config"
	"github.com/upb/tenantchat/backend/cookies"
	"github.com/upb/tenantchat/backend/repositories/postgres"
	"github.com/upb/tenantchat/backend/utils"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Auth: config.AuthConfig{
			Issuers: []config.IssuerConfig{
				{
					Name:       "okta",
					Issuer:     "https://okta.example.com",
					Audience:   config.StringList{"api://tenantchat"},
					JWKSURI:    "https://okta.example.com/keys",
					Algorithms: []string{"RS256"},
					Client: &config.OIDCClientConfig{
						ClientID:              "client-1",
						RedirectURI:           "http://localhost:8080/auth/okta/callback",
						Scopes:                []string{"openid", "email"},
						AuthorizationEndpoint: "https://okta.example.com/authorize",
						TokenEndpoint:         "https://okta.example.com/token",
					},
				},
			},
			DefaultRole:       "member",
			FlowTTL:           10 * time.Minute,
			DefaultSessionTTL: time.Hour,
		},
		Cookies: config.CookieConfig{
			Secret:      strings.Repeat("r", 32),
			Secure:      "false",
			SameSite:    "lax",
			SessionName: "session",
			FlowName:    "auth_flow",
			AdminName:   "admin_session",
		},
		Admin: config.AdminConfig{Username: "admin", SessionTTL: time.Hour},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *app.Dependencies, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	factory := postgres.NewRepositoryFactoryFromDB(postgres.NewDBFromConn(db, logger), logger)

	deps, err := app.Build(testConfig(), factory, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(ts.Close)
	return ts, deps, mock
}

// noRedirect keeps 302 responses visible to the test
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

func TestHealthEndpoints(t *testing.T) {
	ts, _, mock := newTestServer(t)

	t.Run("health check", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("readiness", func(t *testing.T) {
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		resp, err := http.Get(ts.URL + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Data struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Data.Status)
		assert.Equal(t, "configured", body.Data.Checks["issuers"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProtectedEndpoints(t *testing.T) {
	ts, _, _ := newTestServer(t)

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedError  string
	}{
		{"get current user", http.MethodGet, "/api/v1/me", http.StatusUnauthorized, "unauthorized"},
		{"update current user", http.MethodPatch, "/api/v1/me", http.StatusUnauthorized, "unauthorized"},
		{"admin session", http.MethodGet, "/admin/session", http.StatusUnauthorized, "admin_unauthorized"},
		{"admin password", http.MethodPost, "/admin/password", http.StatusUnauthorized, "admin_unauthorized"},
		{"admin user", http.MethodGet, "/admin/users/8c5f4a86-5d0b-4d0c-9a43-7b7e5b0f7e31", http.StatusUnauthorized, "admin_unauthorized"},
		{"admin roles", http.MethodPost, "/admin/users/8c5f4a86-5d0b-4d0c-9a43-7b7e5b0f7e31/roles", http.StatusUnauthorized, "admin_unauthorized"},
		{"not found", http.MethodGet, "/api/v1/nonexistent", http.StatusNotFound, "not_found"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
			var body utils.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.expectedError, body.Error)
		})
	}
}

func TestAdminPendingPasswordGate(t *testing.T) {
	ts, deps, _ := newTestServer(t)

	now := time.Now()
	value, err := deps.Cookies.Admin.Encode(cookies.AdminSession{
		Username:           "admin",
		MustChangePassword: true,
		IssuedAt:           now,
		ExpiresAt:          now.Add(time.Hour),
	})
	require.NoError(t, err)

	get := func(path string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: "admin_session", Value: value})
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusOK, get("/admin/session").StatusCode)
	assert.Equal(t, http.StatusForbidden, get("/admin/users/8c5f4a86-5d0b-4d0c-9a43-7b7e5b0f7e31").StatusCode)
}

func TestAuthEndpoints(t *testing.T) {
	ts, _, _ := newTestServer(t)

	t.Run("providers", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/auth/providers")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body struct {
			Data struct {
				Providers []string `json:"providers"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"okta"}, body.Data.Providers)
	})

	t.Run("start redirects to the provider", func(t *testing.T) {
		resp, err := noRedirect.Get(ts.URL + "/auth/okta/start?mode=register&returnTo=/chats")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://okta.example.com/authorize?"))

		var flow *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == "auth_flow" {
				flow = c
			}
		}
		require.NotNil(t, flow)
		assert.True(t, flow.HttpOnly)
	})

	t.Run("callback without flow cookie", func(t *testing.T) {
		resp, err := noRedirect.Get(ts.URL + "/auth/okta/callback?code=abc&state=xyz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		var body utils.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "auth_flow_missing", body.Error)
	})

	t.Run("unknown provider", func(t *testing.T) {
		resp, err := noRedirect.Get(ts.URL + "/auth/github/start")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestCORSPreflight(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/me", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}
