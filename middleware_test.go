package secure_gate_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aryangodara/secure_gate"
	"github.com/aryangodara/secure_gate/rate_limiting_strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(extractor secure_gate.Extractor, max uint64) http.Handler {
	limiter := secure_gate.NewRateLimiter(rate_limiting_strategies.NewMemorySlidingWindowLimiter(time.Now), discardLogger())
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Hello, World!"))
	})
	return secure_gate.NewHTTPRateLimiterHandler(ok, &secure_gate.RateLimiterConfig{
		Extractor:   extractor,
		Limiter:     limiter,
		KeyPrefix:   "http-",
		Expiration:  time.Minute,
		MaxRequests: max,
		Logger:      discardLogger(),
	})
}

func TestHTTPRateLimiterHandler(t *testing.T) {
	handler := newTestHandler(secure_gate.NewHttpHeaderExtractor("X-Client-ID"), 2)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Client-ID", "client-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "Allow", rec.Header().Get("Rate-Limiting-State"))
		assert.Equal(t, "Hello, World!", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Client-ID", "client-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Deny", rec.Header().Get("Rate-Limiting-State"))
	assert.Equal(t, "2", rec.Header().Get("Rate-limiting-Total-Requests"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Client-ID", "client-2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPRateLimiterHandler_MissingHeader(t *testing.T) {
	handler := newTestHandler(secure_gate.NewHttpHeaderExtractor("X-Client-ID"), 2)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoteIPExtractor(t *testing.T) {
	extractor := secure_gate.NewRemoteIPExtractor()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	key, err := extractor.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", key)

	req.RemoteAddr = "10.1.2.4"
	key, err = extractor.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.4", key)

	req.RemoteAddr = ""
	_, err = extractor.Extract(req)
	assert.Error(t, err)
}
