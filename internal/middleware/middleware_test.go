package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/estate-ledger/internal/auth"
	"github.com/iliyamo/estate-ledger/internal/authz"
	"github.com/iliyamo/estate-ledger/internal/config"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/testutil"
)

type whoami struct {
	UserID uint64     `json:"user_id"`
	Role   model.Role `json:"role"`
}

func newServer(t *testing.T, op string) (*echo.Echo, *auth.Service, *testutil.Store) {
	t.Helper()
	store := testutil.NewStore()
	tokens := auth.NewService(auth.Options{Secret: []byte("mw-secret")}, store.Tokens(), store.Users())
	e := echo.New()
	e.Logger = testutil.Logger()
	e.Use(Authenticate(tokens))
	e.GET("/probe", func(c echo.Context) error {
		id, _ := UserID(c)
		return c.JSON(http.StatusOK, whoami{UserID: id, Role: RoleOf(c)})
	}, Authorize(op))
	return e, tokens, store
}

func issue(t *testing.T, store *testutil.Store, tokens *auth.Service, role model.Role) auth.TokenPair {
	t.Helper()
	u := model.User{Email: string(role) + "@estate.io", FullName: "x", Role: role, IsActive: true}
	require.NoError(t, store.Users().Create(context.Background(), &u))
	pair, err := tokens.Issue(context.Background(), u)
	require.NoError(t, err)
	return pair
}

func get(e *echo.Echo, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["message"])
	return body["error"]
}

func TestAuthenticate_NoHeaderIsPublic(t *testing.T) {
	e, _, _ := newServer(t, authz.OpListProperties)
	rec := get(e, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var who whoami
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &who))
	assert.Equal(t, model.RolePublic, who.Role)
	assert.Zero(t, who.UserID)
}

func TestAuthenticate_ValidAccessToken(t *testing.T) {
	e, tokens, store := newServer(t, authz.OpMe)
	pair := issue(t, store, tokens, model.RoleInvestor)

	rec := get(e, "Bearer "+pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var who whoami
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &who))
	assert.Equal(t, model.RoleInvestor, who.Role)
	assert.NotZero(t, who.UserID)
}

func TestAuthenticate_Rejects(t *testing.T) {
	e, tokens, store := newServer(t, authz.OpListProperties)
	pair := issue(t, store, tokens, model.RoleUser)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"wrong scheme", "Basic abc", "token_invalid"},
		{"empty bearer", "Bearer ", "token_invalid"},
		{"garbage", "Bearer not.a.jwt", "token_invalid"},
		{"tampered", "Bearer " + pair.AccessToken + "x", "token_invalid"},
		{"refresh used as access", "Bearer " + pair.RefreshToken, "token_kind_mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(e, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestAuthorize(t *testing.T) {
	t.Run("public caller on a profile route", func(t *testing.T) {
		e, _, _ := newServer(t, authz.OpMe)
		rec := get(e, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthenticated", errorCode(t, rec))
	})
	t.Run("user on an admin route", func(t *testing.T) {
		e, tokens, store := newServer(t, authz.OpListUsers)
		pair := issue(t, store, tokens, model.RoleUser)
		rec := get(e, "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "forbidden", errorCode(t, rec))
	})
	t.Run("admin on the investor portfolio", func(t *testing.T) {
		e, tokens, store := newServer(t, authz.OpMyPortfolio)
		pair := issue(t, store, tokens, model.RoleAdmin)
		rec := get(e, "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("unregistered operation", func(t *testing.T) {
		e, tokens, store := newServer(t, "admin.nuke")
		pair := issue(t, store, tokens, model.RoleAdmin)
		rec := get(e, "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"items":[]}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"items":[]}`, string(body))

	_, _, _, ok = decodePayload(bs[:6])
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok, "header length past the end")
}

func TestCacheKeyIncludesPathParams(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "estate:cache", KeyStrategy: "route_query"}
	key := func(id string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/properties/"+id, nil), httptest.NewRecorder())
		c.SetPath("/v1/properties/:id")
		c.SetParamNames("id")
		c.SetParamValues(id)
		return cacheKey(cfg, c)
	}
	assert.NotEqual(t, key("1"), key("2"))
	assert.Equal(t, key("1"), key("1"))
	assert.Contains(t, key("1"), "estate:cache:")
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/auth/login")

	cfg := config.RateLimitConfig{Prefix: "estate:rl", KeyStrategy: "ip_route"}
	assert.Equal(t, "estate:rl:ip:10.0.0.7:route:POST /v1/auth/login", rateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "estate:rl:user:anon", rateKey(cfg, c))
	c.Set(ctxUserID, uint64(42))
	assert.Equal(t, "estate:rl:user:42", rateKey(cfg, c))
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewRedisCache(config.CacheConfig{Enabled: true}, nil),
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil),
		InvalidateOnWrite(config.CacheConfig{Enabled: true}, nil),
	)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
