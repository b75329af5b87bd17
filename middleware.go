package secure_gate

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	_ http.Handler = &httpRateLimiterHandler{}
	_ Extractor    = &httpHeaderExtractor{}
	_ Extractor    = &remoteIPExtractor{}
)

const (
	rateLimitingTotalRequests = "Rate-limiting-Total-Requests"
	rateLimitingState         = "Rate-Limiting-State"
	rateLimitingExpiresAt     = "Rate-Limiting-Expires-At"
	retryAfter                = "Retry-After"
)

// Extractor extracts a key from an HTTP request for rate limiting.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type httpHeaderExtractor struct {
	headers []string
}

// Extract extracts values from HTTP headers to build the key.
func (h *httpHeaderExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))

	for _, key := range h.headers {
		// if we can't find a value for a header we should return an error
		if value := strings.TrimSpace(r.Header.Get(key)); value != "" {
			values = append(values, value)
		} else {
			return "", fmt.Errorf("header %v must have a value set", key)
		}
	}

	return strings.Join(values, "-"), nil
}

// NewHttpHeaderExtractor creates a new Extractor.
func NewHttpHeaderExtractor(headers ...string) Extractor {
	return &httpHeaderExtractor{headers: headers}
}

type remoteIPExtractor struct{}

// Extract returns the host part of RemoteAddr. Put a real-IP middleware in
// front when running behind a proxy.
func (remoteIPExtractor) Extract(r *http.Request) (string, error) {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return "", fmt.Errorf("request has no remote address")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// RealIP middleware rewrites RemoteAddr without a port.
		return addr, nil
	}
	return host, nil
}

// NewRemoteIPExtractor keys requests by client IP.
func NewRemoteIPExtractor() Extractor {
	return remoteIPExtractor{}
}

// RateLimiterConfig holds configuration for rate limiting.
type RateLimiterConfig struct {
	Extractor   Extractor
	Limiter     *RateLimiter
	KeyPrefix   string
	Expiration  time.Duration
	MaxRequests uint64
	Logger      *slog.Logger
}

type httpRateLimiterHandler struct {
	handler http.Handler
	config  *RateLimiterConfig
	logger  *slog.Logger
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler and performs rate limiting before forwarding the
// request to the API
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *RateLimiterConfig) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &httpRateLimiterHandler{
		handler: originalHandler,
		config:  config,
		logger:  logger,
	}
}

// NewHTTPRateLimiterMiddleware adapts NewHTTPRateLimiterHandler to router middleware.
func NewHTTPRateLimiterMiddleware(config *RateLimiterConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return NewHTTPRateLimiterHandler(next, config)
	}
}

// ServeHTTP performs rate limiting and forwards the request if allowed.
func (h *httpRateLimiterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, err := h.config.Extractor.Extract(r)
	if err != nil {
		h.writeResponse(w, http.StatusBadRequest, "failed to collect rate limiting key from request: %v", err)
		return
	}

	result, err := h.config.Limiter.Check(r.Context(), h.config.KeyPrefix+key, h.config.MaxRequests, h.config.Expiration)
	if err != nil {
		h.logger.Error("rate limiting failed", slog.String("key", key), slog.Any("error", err))
		h.writeResponse(w, http.StatusInternalServerError, "failed to run rate limiting for request")
		return
	}

	w.Header().Set(rateLimitingTotalRequests, strconv.FormatUint(result.TotalRequests, 10))
	w.Header().Set(rateLimitingState, result.State.String())
	w.Header().Set(rateLimitingExpiresAt, result.ExpiresAt.Format(time.RFC3339))

	// Too many requests
	if result.State == Deny {
		if wait := time.Until(result.RetryAt); wait > 0 {
			w.Header().Set(retryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
		h.writeResponse(w, http.StatusTooManyRequests, "you have sent too many requests to this service, slow down please")
		return
	}

	h.handler.ServeHTTP(w, r)
}

func (h *httpRateLimiterHandler) writeResponse(w http.ResponseWriter, status int, msg string, args ...interface{}) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(fmt.Sprintf(msg, args...))); err != nil {
		h.logger.Warn("failed to write body to HTTP request", slog.Any("error", err))
	}
}
