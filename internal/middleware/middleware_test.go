package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/convention-desk/internal/config"
	"github.com/iliyamo/convention-desk/internal/metrics"
	"github.com/iliyamo/convention-desk/internal/utils"
)

const jwtSecret = "staff-secret"

func bearer(t *testing.T, role string) string {
	t.Helper()
	at, err := utils.NewAccessToken(jwtSecret, "st-1", "Grace", role, 10, time.Now())
	require.NoError(t, err)
	return "Bearer " + at.Token
}

func serve(e *echo.Echo, method, target, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/v1", JWTAuth(jwtSecret))
	g.GET("/me", func(c echo.Context) error {
		s, ok := StaffFrom(c)
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"id": s.ID, "name": s.Name, "role": s.Role})
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole("ADMIN"))

	require.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/v1/me", "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/v1/me", "Bearer junk").Code)

	rec := serve(e, http.MethodGet, "/v1/me", bearer(t, "SCANNER"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"st-1","name":"Grace","role":"SCANNER"}`, rec.Body.String())

	require.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/v1/admin", bearer(t, "SCANNER")).Code)
	require.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/v1/admin", bearer(t, "ADMIN")).Code)
}

func TestTokenBucketFallsBackWithoutRedis(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 5 * time.Hour, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/limited", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, nil))

	before := testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("/limited"))
	require.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/limited", "").Code)
	require.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/limited", "").Code)

	rec := serve(e, http.MethodGet, "/limited", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("/limited")))
}

func TestTokenBucketDisabled(t *testing.T) {
	e := echo.New()
	e.GET("/open", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil))
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/open", "").Code)
	}
}

func TestCacheKeyIgnoresQueryOrder(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{KeyStrategy: "route_query", Prefix: "pricing"}
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/pricing/:type")
		c.SetParamNames("type")
		c.SetParamValues("dinner")
		return cacheKeyFrom(cfg, c)
	}
	require.Equal(t, key("/v1/pricing/dinner?guests=2&x=1"), key("/v1/pricing/dinner?x=1&guests=2"))
	require.NotEqual(t, key("/v1/pricing/dinner?guests=2"), key("/v1/pricing/dinner?guests=3"))
	require.Regexp(t, `^pricing:[0-9a-f]{40}$`, key("/v1/pricing/dinner"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"amount":150}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, hdr, got)
	require.Equal(t, `{"amount":150}`, string(body))

	_, _, _, ok = decodePayload(bs[:6])
	require.False(t, ok)
}

func TestMetricsMiddlewareCountsRoutes(t *testing.T) {
	e := echo.New()
	e.Use(Metrics())
	e.GET("/ping/:id", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })

	ok := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/ping/:id", "202")
	teapot := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/boom", "418")
	okBefore, teapotBefore := testutil.ToFloat64(ok), testutil.ToFloat64(teapot)

	serve(e, http.MethodGet, "/ping/1", "")
	serve(e, http.MethodGet, "/ping/2", "")
	serve(e, http.MethodGet, "/boom", "")
	require.Equal(t, okBefore+2, testutil.ToFloat64(ok))
	require.Equal(t, teapotBefore+1, testutil.ToFloat64(teapot))
}
