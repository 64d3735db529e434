package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"stayfinder/internal/config"
	"stayfinder/internal/domain"
	"stayfinder/internal/logging"
	"stayfinder/internal/metrics"
	"stayfinder/internal/models"
	"stayfinder/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// bodyHeadroom covers the listing JSON around a base64 image.
const bodyHeadroom = 1 << 20

// maxBodyBytes fits the largest image the listing service accepts, base64 encoded.
func maxBodyBytes(maxImageBytes int) int64 {
	if maxImageBytes <= 0 {
		maxImageBytes = models.DefaultMaxImageBytes
	}
	return int64(base64.StdEncoding.EncodedLen(maxImageBytes)) + bodyHeadroom
}

// Services are the handlers' collaborators. Ready backs /readyz and may be nil.
type Services struct {
	Bookings *service.BookingService
	Listings *service.ListingService
	Users    *service.UserService
	Ready    func(ctx context.Context) error
}

// HTTPServer is the JSON API used by the web client.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	auth    *JWTAuth
	limiter *rateLimiter
	logger  *zerolog.Logger
	server  *http.Server
	now     func() time.Time
	maxBody int64
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		auth:    NewJWTAuth(cfg.JWT),
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logging.Component(logger, "http"),
		now:     time.Now,
	}
	if svc.Listings != nil {
		srv.maxBody = maxBodyBytes(svc.Listings.MaxImageBytes())
	} else {
		srv.maxBody = maxBodyBytes(0)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/healthz", srv.handleHealth)
	mux.HandleFunc("GET /api/v1/readyz", srv.handleReady)

	mux.Handle("GET /api/v1/listings", srv.public(srv.handleSearchListings))
	mux.Handle("GET /api/v1/listings/{id}", srv.public(srv.handleGetListing))
	mux.Handle("GET /api/v1/listings/{id}/availability", srv.public(srv.handleListingAvailability))
	mux.Handle("POST /api/v1/listings", srv.authed(srv.handleCreateListing))
	mux.Handle("PUT /api/v1/listings/{id}", srv.authed(srv.handleUpdateListing))
	mux.Handle("DELETE /api/v1/listings/{id}", srv.authed(srv.handleDeleteListing))
	mux.Handle("GET /api/v1/listings/{id}/bookings", srv.authed(srv.handleListingBookings))

	mux.Handle("GET /api/v1/host/listings", srv.authed(srv.handleHostListings))
	mux.Handle("GET /api/v1/host/bookings/export", srv.authed(srv.handleExportHostBookings))

	mux.Handle("POST /api/v1/bookings", srv.authed(srv.handleCreateBooking))
	mux.Handle("GET /api/v1/bookings", srv.authed(srv.handleListBookings))
	mux.Handle("GET /api/v1/bookings/{id}", srv.authed(srv.handleGetBooking))
	mux.Handle("PUT /api/v1/bookings/{id}/status", srv.authed(srv.handleUpdateBookingStatus))
	mux.Handle("POST /api/v1/bookings/{id}/cancel", srv.authed(srv.handleCancelBooking))

	mux.Handle("GET /api/v1/users/me", srv.authed(srv.handleGetProfile))
	mux.Handle("PUT /api/v1/users/me", srv.authed(srv.handleSaveProfile))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type identityHandler func(w http.ResponseWriter, r *http.Request, id Identity)

// authed requires a valid bearer token and rate limits per user.
func (s *HTTPServer) authed(h identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.auth.Authenticate(r)
		if err != nil {
			logging.FromContext(r.Context(), s.logger).Debug().Err(err).Msg("authentication failed")
			writeError(w, http.StatusUnauthorized, "Unauthenticated", "authentication required")
			return
		}
		if !s.limiter.Allow(fmt.Sprintf("user:%d", id.UserID)) {
			writeError(w, http.StatusTooManyRequests, "RateLimited", "rate limit exceeded")
			return
		}
		// Tag the request logger so the access log line carries the caller.
		if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
			l.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Int64("user_id", id.UserID)
			})
		}
		h(w, r, id)
	})
}

// public rate limits anonymous routes per client address.
func (s *HTTPServer) public(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow("ip:" + clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "RateLimited", "rate limit exceeded")
			return
		}
		h(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

const requestIDHeader = "X-Request-ID"

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(logging.WithRequestID(r.Context(), s.logger, requestID))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTP(route, recorder.status)

		logging.FromContext(r.Context(), s.logger).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			logging.FromContext(r.Context(), s.logger).Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "NotReady", "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{Error: code, Message: message})
}

// writeServiceError maps a service error to its HTTP status. Rejections are the
// client's problem and are logged at debug; anything else is a 500.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context(), s.logger)
	rej, ok := domain.AsRejection(err)
	if !ok {
		if errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("request canceled")
		} else {
			log.Error().Err(err).Msg("request failed")
		}
		writeError(w, http.StatusInternalServerError, "Internal", "internal server error")
		return
	}

	log.Debug().Err(err).Str("code", rej.Code).Msg("request rejected")
	writeError(w, statusForClass(rej.Class), rej.Code, err.Error())
}

func statusForClass(c domain.Class) int {
	switch c {
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassConflict:
		return http.StatusConflict
	case domain.ClassForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
