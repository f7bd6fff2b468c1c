package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Starbugstone/chat/internal/policy"
	"github.com/Starbugstone/chat/internal/service/account"
	"github.com/Starbugstone/chat/pkg/config"
)

// Router wires HTTP endpoints to the account service.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	accounts    account.Service
	limiter     RateLimiter
	jwtSecret   string
	exposeToken bool
	limits      rateLimits
	dbHealth    func(context.Context) error
	now         func() time.Time

	metricsOnce    sync.Once
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
}

type rateLimits struct {
	register int
	verify   int
	read     int
}

const (
	rateWindow         = time.Minute
	healthCheckTimeout = 2 * time.Second

	routeRegister = "/api/auth/register"
	routeVerify   = "/api/auth/verify-email"
	routeMe       = "/api/auth/me"
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, accounts account.Service, limiter RateLimiter, cfg config.APIConfig, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		accounts:    accounts,
		limiter:     limiter,
		jwtSecret:   cfg.JWTSecret,
		exposeToken: cfg.ExposeVerificationToken,
		limits: rateLimits{
			register: cfg.RateLimitRegister,
			verify:   cfg.RateLimitVerify,
			read:     cfg.RateLimitRead,
		},
		dbHealth: dbHealth,
		now:      time.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc(routeRegister, r.audit(routeRegister, r.withRateLimit(routeRegister, r.limits.register, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc(routeVerify, r.audit(routeVerify, r.withRateLimit(routeVerify, r.limits.verify, rateLimitKeyIP, r.handleVerifyEmail)))
	r.mux.HandleFunc(routeMe, r.audit(routeMe, r.requireAuth(r.withRateLimit(routeMe, r.limits.read, rateLimitKeyAccount, r.handleMe))))
	r.mux.HandleFunc("/", r.audit("other", func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) }))
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DateOfBirth string `json:"dateOfBirth"`
}

type registerResponse struct {
	Message               string              `json:"message"`
	User                  account.CreatedView `json:"user"`
	VerificationExpiresAt time.Time           `json:"verificationExpiresAt"`
	VerificationToken     string              `json:"verificationToken,omitempty"`
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload registerRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "Request body must be a JSON object with email, password and dateOfBirth", nil)
		return
	}

	in := account.RegisterInput{
		Email:    payload.Email,
		Password: payload.Password,
		At:       r.now().UTC(),
	}
	if raw := strings.TrimSpace(payload.DateOfBirth); raw != "" {
		dob, err := policy.ParseDateOfBirth(raw)
		switch {
		case err == nil:
			in.DateOfBirth = dob
		case strings.TrimSpace(in.Email) != "" && in.Password != "":
			writeError(w, http.StatusBadRequest, codeValidation, "Validation failed", map[string][]string{
				"dateOfBirth": {"Date of birth must use the YYYY-MM-DD format"},
			})
			return
		}
	}

	reg, err := r.accounts.Register(req.Context(), in)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	resp := registerResponse{
		Message:               "User registered successfully. Please check your email for verification.",
		User:                  account.ProjectCreated(reg.Account),
		VerificationExpiresAt: reg.ExpiresAt.UTC(),
	}
	if r.exposeToken {
		resp.VerificationToken = reg.Token
	}
	writeJSON(w, http.StatusCreated, resp)
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (r *Router) handleVerifyEmail(w http.ResponseWriter, req *http.Request) {
	var token string
	switch req.Method {
	case http.MethodPost:
		var payload verifyRequest
		if err := decodeJSON(w, req, &payload); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "Request body must be a JSON object with a token", nil)
			return
		}
		token = payload.Token
	case http.MethodGet:
		token = req.URL.Query().Get("token")
	default:
		r.methodNotAllowed(w)
		return
	}

	acct, err := r.accounts.Verify(req.Context(), account.VerifyInput{Token: token, At: r.now().UTC()})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Email verified successfully",
		"user":    account.Project(acct),
	})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, _ := authInfoFromContext(req.Context())
	acct, err := r.accounts.Current(req.Context(), info.AccountID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": account.Project(acct)})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  r.now().UTC().Format(time.RFC3339Nano),
	})
}

// audit logs one line per request and records request metrics under route.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			fields = append(fields, "account_id", info.AccountID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed", nil)
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
}
