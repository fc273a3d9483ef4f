package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/auth"
)

func setupHandshakeRouter(t *testing.T) (*gin.Engine, *auth.Verifier, *Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := auth.NewVerifier("test-secret")
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)
	handler := NewHandler(registry, broadcaster, NewProtocol(broadcaster, nil, nil, nil), verifier)

	r := gin.New()
	r.GET("/ws", handler.Handle)
	return r, verifier, registry
}

func TestHandleRejectsUnknownSession(t *testing.T) {
	router, verifier, registry := setupHandshakeRouter(t)

	token, err := verifier.IssueToken(7)
	require.NoError(t, err)

	for _, target := range []string{"/ws", "/ws?session=video&token=" + token} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
	}
	require.Zero(t, registry.Len())
}

func TestHandleRejectsMissingIdentity(t *testing.T) {
	router, _, registry := setupHandshakeRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ws?session=chat", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, registry.Len())
}

func TestHandleRejectsInvalidToken(t *testing.T) {
	router, _, registry := setupHandshakeRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ws?session=chat&token=garbage", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, registry.Len())
}

func TestHandleRejectsForgedBearerHeader(t *testing.T) {
	router, _, registry := setupHandshakeRouter(t)

	forged, err := auth.NewVerifier("other-secret").IssueToken(7)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws?session=chat", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, registry.Len())
}

func TestBearerTokenSources(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header", header: "Bearer abc", want: "abc"},
		{name: "query fallback", query: "abc", want: "abc"},
		{name: "malformed header wins over query", header: "Token abc", query: "xyz", want: ""},
		{name: "empty", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			target := "/ws"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			c.Request = httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}

			require.Equal(t, tc.want, bearerToken(c))
		})
	}
}
