package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"mindseye/internal/forms"
	"mindseye/internal/ratelimit"
	"mindseye/internal/util"
	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
	"mindseye/pkg/prompt"
	"mindseye/pkg/session"
	"mindseye/services/gateway/internal/app"
)

const (
	maxBodyBytes = 1 << 20
	// MinSessionSecretBytes is the shortest accepted cookie signing key.
	MinSessionSecretBytes = 32
	sessionIDValue        = "sid"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	Redis                      *redis.Client
	Registry                   *prometheus.Registry
	SessionSecret              []byte
	CookieName                 string
	CookieSecure               bool
	CookieSameSite             http.SameSite
	SessionTTL                 time.Duration
	AllowedOrigins             []string
	TrustedProxies             *util.TrustedProxies
	LoginRateLimitPerMinute    int
	RegisterRateLimitPerMinute int
	GenerateRateLimitPerMinute int
}

// Server exposes the browser-facing JSON API.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	registry        *prometheus.Registry
	metrics         *metrics
	cookies         *sessions.CookieStore
	cookieName      string
	allowedOrigins  []string
	trustedProxies  *util.TrustedProxies
	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
	generateLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if len(cfg.SessionSecret) < MinSessionSecretBytes {
		return nil, fmt.Errorf("server: session secret must be at least %d bytes", MinSessionSecretBytes)
	}
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("server: redis client is required for rate limiting")
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	registerLimit := cfg.RegisterRateLimitPerMinute
	if registerLimit <= 0 {
		registerLimit = 5
	}
	generateLimit := cfg.GenerateRateLimitPerMinute
	if generateLimit <= 0 {
		generateLimit = 6
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "mindseye:gateway:ratelimit", name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	registerLimiter, err := newLimiter("register", registerLimit)
	if err != nil {
		return nil, err
	}
	generateLimiter, err := newLimiter("generate", generateLimit)
	if err != nil {
		return nil, err
	}

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "mindseye_sid"
	}
	sameSite := cfg.CookieSameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	cookies := sessions.NewCookieStore(cfg.SessionSecret)
	cookies.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: sameSite,
	}
	if cfg.SessionTTL > 0 {
		cookies.MaxAge(int(cfg.SessionTTL.Seconds()))
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		registry:        reg,
		metrics:         newMetrics(reg),
		cookies:         cookies,
		cookieName:      cookieName,
		allowedOrigins:  cfg.AllowedOrigins,
		trustedProxies:  cfg.TrustedProxies,
		loginLimiter:    loginLimiter,
		registerLimiter: registerLimiter,
		generateLimiter: generateLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	h := util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))
	h = util.WithRequestLog("gateway", s.metrics.observeRequest, h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/readyz", s.handleReady)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// session & auth
	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.HandleFunc("/api/session/user", s.handleSessionUser)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)

	// generation & galleries
	s.mux.HandleFunc("/api/dreams", s.generateHandler(domain.KindImage))
	s.mux.HandleFunc("/api/videos", s.generateHandler(domain.KindVideo))
	s.mux.HandleFunc("/api/gallery", s.handleGallery)
	s.mux.HandleFunc("/api/videos/recent", s.handleRecent)

	// saved artifacts (login required)
	s.mux.HandleFunc("/api/dreams/me", s.savedHandler(domain.KindImage))
	s.mux.HandleFunc("/api/videos/me", s.savedHandler(domain.KindVideo))
	s.mux.HandleFunc("/api/dashboard", s.handleDashboard)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.app.Ping(ctx); err != nil {
		util.LoggerFromContext(r.Context()).Warn("readiness check failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sid, ok := s.sessionID(r)
	if !ok {
		writeJSON(w, http.StatusOK, app.SessionView{})
		return
	}
	view, err := s.app.Session(r.Context(), sid)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to load session")
		return
	}
	if view.Authenticated {
		s.setSessionCookie(w, r, sid)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSessionUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	sid, ok := s.sessionID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var req domain.User
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := s.app.UpdateUser(r.Context(), sid, req)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "login", "too many login attempts") {
		s.audit(r, "gateway.login", "rate_limited")
		return
	}
	var req domain.Credentials
	if !decodeJSON(w, r, &req) {
		s.audit(r, "gateway.login", "fail", "reason", "invalid_json")
		return
	}
	// A login always starts a new session id. The previous one is retired
	// only once the backend accepts the credentials.
	prev, _ := s.sessionID(r)
	sid := util.NewSessionID()
	view, err := s.app.Login(r.Context(), prev, sid, req)
	if err != nil {
		s.metrics.authAttemptsTotal.WithLabelValues("login", "fail").Inc()
		s.audit(r, "gateway.login", "fail", "reason", err.Error())
		s.writeAppError(w, r, err, "Login failed")
		return
	}
	s.setSessionCookie(w, r, sid)
	s.metrics.authAttemptsTotal.WithLabelValues("login", "success").Inc()
	s.audit(r, "gateway.login", "success", "email", strings.TrimSpace(req.Email))
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "register", "too many registration attempts") {
		s.audit(r, "gateway.register", "rate_limited")
		return
	}
	var req domain.Credentials
	if !decodeJSON(w, r, &req) {
		s.audit(r, "gateway.register", "fail", "reason", "invalid_json")
		return
	}
	notice, err := s.app.Register(r.Context(), req)
	if err != nil {
		s.metrics.authAttemptsTotal.WithLabelValues("register", "fail").Inc()
		s.audit(r, "gateway.register", "fail", "reason", err.Error())
		s.writeAppError(w, r, err, "Registration failed")
		return
	}
	s.metrics.authAttemptsTotal.WithLabelValues("register", "success").Inc()
	s.audit(r, "gateway.register", "success", "email", strings.TrimSpace(req.Email))
	writeJSON(w, http.StatusCreated, map[string]string{"notice": notice})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if sid, ok := s.sessionID(r); ok {
		if err := s.app.Logout(r.Context(), sid); err != nil {
			s.audit(r, "gateway.logout", "fail", "reason", err.Error())
			s.writeAppError(w, r, err, "Logout failed")
			return
		}
	}
	s.audit(r, "gateway.logout", "success")
	writeJSON(w, http.StatusOK, app.SessionView{})
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) generateHandler(kind domain.MediaKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req generateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if _, err := prompt.Validate(kind, req.Prompt); err != nil {
			s.metrics.generationsTotal.WithLabelValues(string(kind), "invalid").Inc()
			s.writeAppError(w, r, err, "")
			return
		}
		if !s.allowRate(w, r, s.generateLimiter, "generate", "too many generation requests") {
			return
		}
		sid := s.ensureSession(w, r)
		res, err := s.app.Generate(r.Context(), sid, kind, req.Prompt)
		if err != nil {
			s.metrics.generationsTotal.WithLabelValues(string(kind), "fail").Inc()
			s.writeAppError(w, r, err, "Failed to generate "+kind.Label())
			return
		}
		outcome := "anonymous"
		if res.Artifact.Saved() {
			outcome = "saved"
		}
		s.metrics.generationsTotal.WithLabelValues(string(kind), outcome).Inc()
		writeJSON(w, http.StatusCreated, res)
	}
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	kind, ok := galleryKind(r)
	if !ok {
		writeError(w, http.StatusBadRequest, app.ErrInvalidKind.Error())
		return
	}
	switch r.Method {
	case http.MethodGet:
		sid, ok := s.sessionID(r)
		if !ok {
			sid = util.NewSessionID()
		}
		view, err := s.app.Gallery(r.Context(), sid, kind)
		if err != nil {
			s.writeAppError(w, r, err, "Failed to load gallery")
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if sid, ok := s.sessionID(r); ok {
			if err := s.app.ClearGallery(r.Context(), sid, kind); err != nil {
				s.writeAppError(w, r, err, "Failed to clear gallery")
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	view, err := s.app.Recent(r.Context(), limit)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to load videos")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) savedHandler(kind domain.MediaKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		sid, ok := s.sessionID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		view, err := s.app.Saved(r.Context(), sid, kind)
		if err != nil {
			s.writeAppError(w, r, err, "Failed to load dreams")
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sid, ok := s.sessionID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	state, err := s.app.Dashboard(r.Context(), sid)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to load dreams")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// sessionID returns the session id carried by the caller's signed cookie.
// Cookies that were not issued by this gateway are ignored.
func (s *Server) sessionID(r *http.Request) (string, bool) {
	sess, err := s.cookies.Get(r, s.cookieName)
	if err != nil {
		return "", false
	}
	sid, _ := sess.Values[sessionIDValue].(string)
	if sid == "" || len(sid) > 128 || strings.ContainsAny(sid, ": ") {
		return "", false
	}
	return sid, true
}

// ensureSession returns the caller's session id, issuing one when absent,
// and refreshes the cookie lifetime.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) string {
	sid, ok := s.sessionID(r)
	if !ok {
		sid = util.NewSessionID()
	}
	s.setSessionCookie(w, r, sid)
	return sid
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, sid string) {
	// Get returns a fresh session alongside the error for unreadable cookies.
	sess, _ := s.cookies.Get(r, s.cookieName)
	sess.Values[sessionIDValue] = sid
	if err := sess.Save(r, w); err != nil {
		util.LoggerFromContext(r.Context()).Error("save session cookie failed", "err", err)
	}
}

func galleryKind(r *http.Request) (domain.MediaKind, bool) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind")))
	if raw == "" {
		return domain.KindImage, true
	}
	kind := domain.MediaKind(raw)
	return kind, kind.Valid()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeAppError maps errors from the core to HTTP responses. Upstream
// failures keep their message; 5xx and transport failures become 502.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var vErr *prompt.ValidationError
	var reqErr *dreamapi.RequestFailedError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Message)
	case forms.IsInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidKind), errors.Is(err, app.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, forms.ErrBusy), errors.Is(err, session.ErrLoginInProgress):
		writeError(w, http.StatusConflict, "request already in progress")
	case errors.As(err, &reqErr):
		status := reqErr.Status
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
		writeError(w, status, forms.ErrorMessage(err, fallback))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, fallback)
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, name, msg string) bool {
	d := limiter.Allow(r.Context(), util.ClientIP(r, s.trustedProxies))
	if d.Allowed {
		return true
	}
	s.metrics.rateLimitedTotal.WithLabelValues(name).Inc()
	retry := int(math.Ceil(d.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
