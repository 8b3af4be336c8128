package quiestce

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/quiestce/quiestce/instrumentation"
	"github.com/quiestce/quiestce/security"
	"github.com/quiestce/quiestce/server"
	"github.com/quiestce/quiestce/storage"
)

// Handler is a thin HTTP adapter for the authorization Server.
// It parses requests, delegates to the Server and renders its results.
type Handler struct {
	server  *Server
	config  Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *instrumentation.Metrics

	ips     security.ClientIPResolver
	limiter *security.RateLimiter
}

// NewHandler creates a new HTTP handler. Call Stop when done with it.
func NewHandler(srv *Server, config Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Security.TrustedProxyCount <= 0 {
		config.Security.TrustedProxyCount = 1
	}

	h := &Handler{
		server: srv,
		config: config,
		logger: logger,
		ips: security.ClientIPResolver{
			TrustProxy:        config.Security.TrustProxy,
			TrustedProxyCount: config.Security.TrustedProxyCount,
		},
	}

	if inst := srv.Instrumentation(); inst != nil {
		h.tracer = inst.Tracer("http")
		h.metrics = inst.Metrics()
	}

	if config.RateLimit.Rate > 0 {
		h.limiter = security.NewRateLimiterWithConfig(security.RateLimitConfig{
			RequestsPerSecond: config.RateLimit.Rate,
			Burst:             config.RateLimit.Burst,
			MaxEntries:        config.RateLimit.MaxEntries,
		}, logger)
	}

	return h
}

// Stop releases the rate limiter's background goroutine
func (h *Handler) Stop() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// Routes returns a router with every endpoint and middleware registered
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		security.RequestIDMiddleware,
		h.ips.Middleware,
		h.instrument,
		security.SecurityHeaders(h.config.BaseURL),
	)
	if h.limiter != nil {
		r.Use(h.limiter.Middleware(clientIPKey, h.rateLimited))
	}

	r.Get("/authorize", h.ServeAuthorize)
	r.Route("/api", func(r chi.Router) {
		r.Get("/redirect/{state}/{user_id}", h.ServeApprove)
		r.Post("/token", h.ServeToken)
		r.Get("/userinfo", h.ServeUserInfo)
		r.Get("/status", h.ServeStatus)
		r.Head("/status", h.ServeStatus)
	})
	if h.config.MetricsGatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.config.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// ServeAuthorize begins a transaction and renders the user picker.
// A missing parameter is a 400. Client validation failures go back to the
// client as an error redirect only when the presented redirect_uri is the
// registered one.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &storage.AuthorizationRequest{
		ClientID:            q.Get("client_id"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		State:               q.Get("state"),
	}

	if err := h.server.Begin(r.Context(), req); err != nil {
		e := server.AsError(err)
		if isValidationError(e) && req.RedirectURI == h.server.Clients().RedirectURI() {
			if target, uerr := e.RedirectURL(req.RedirectURI); uerr == nil {
				http.Redirect(w, r, target, http.StatusTemporaryRedirect)
				return
			}
		}
		h.writeError(w, r, e)
		return
	}

	page, err := renderPicker(req.State, h.server.Directory().List())
	if err != nil {
		h.logger.Error("Failed to render user picker", "error", err)
		h.writeError(w, r, ErrServerError("Failed to render authorization page."))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// ServeApprove approves the pending request under {state} for {user_id} and
// redirects to the client with the code
func (h *Handler) ServeApprove(w http.ResponseWriter, r *http.Request) {
	state := pathParam(r, "state")
	userID := pathParam(r, "user_id")

	redirect, err := h.server.Approve(r.Context(), state, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	target, err := redirect.URL()
	if err != nil {
		h.logger.Error("Failed to build client redirect", "error", err)
		h.writeError(w, r, ErrServerError("Failed to build redirect."))
		return
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// ServeToken exchanges a code for a token. The client authenticates with
// HTTP Basic. The body is JSON or a form.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	clientID, clientSecret, _ := r.BasicAuth()
	body, err := h.parseTokenRequest(w, r)
	if err != nil {
		security.LoggerFromContext(r.Context(), h.logger).Debug("Failed to decode token request", "error", err)
		h.writeError(w, r, ErrInvalidRequest("The token request body could not be decoded.", ""))
		return
	}

	resp, err := h.server.Exchange(r.Context(), server.ExchangeRequest{
		Code:         body.Code,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  body.RedirectURI,
		CodeVerifier: body.CodeVerifier,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
	})
}

// parseTokenRequest reads the token body as JSON when the content type says
// so and as a form otherwise
func (h *Handler) parseTokenRequest(w http.ResponseWriter, r *http.Request) (TokenRequest, error) {
	var req TokenRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxTokenBodySize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return TokenRequest{}, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return TokenRequest{}, err
	}
	return TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
	}, nil
}

// ServeUserInfo returns the identity a bearer token was issued for
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	ident, err := h.server.UserInfo(r.Context(), bearerToken(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, UserInfoResponse{
		ID:    ident.ID,
		Name:  ident.Name,
		Email: ident.Email,
	})
}

// ServeStatus answers liveness probes
func (h *Handler) ServeStatus(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// rateLimited writes the rejection for a throttled client
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request) {
	clientIP := security.ClientIPFromContext(r.Context())
	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "path", r.URL.Path)
	h.server.Auditor.LogRateLimitExceeded(clientIP, r.URL.Path)
	if h.metrics != nil {
		h.metrics.RecordRateLimitExceeded(r.Context(), "ip")
	}
	w.Header().Set("Retry-After", "1")
	h.writeError(w, r, ErrRateLimitExceeded())
}

// instrument records request metrics and a span per request. The endpoint
// label is the matched route pattern, known only after routing.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.tracer == nil && h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ctx := r.Context()
		var span trace.Span
		if h.tracer != nil {
			ctx, span = h.tracer.Start(ctx, "http.request")
			defer span.End()
			r = r.WithContext(ctx)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		endpoint := routePattern(r)

		if span != nil {
			span.SetName("http " + endpoint)
			instrumentation.AddHTTPAttributes(span, r.Method, endpoint, status)
			if status >= http.StatusInternalServerError {
				instrumentation.SetSpanError(span, http.StatusText(status))
			}
		}
		if h.metrics != nil {
			durationMs := float64(time.Since(start).Microseconds()) / 1000
			h.metrics.RecordHTTPRequest(ctx, r.Method, endpoint, status, durationMs)
		}
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := server.AsError(err)
	if e.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", server.TokenTypeBearer)
	}
	security.LoggerFromContext(r.Context(), h.logger).Debug("Request failed",
		"path", r.URL.Path,
		"error", e.Code)
	h.writeJSON(w, e.Status, e.Response())
}

// bearerToken extracts the token from an "Authorization: Bearer" header
func bearerToken(r *http.Request) string {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// pathParam returns the unescaped chi URL parameter
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func clientIPKey(r *http.Request) string {
	return security.ClientIPFromContext(r.Context())
}
