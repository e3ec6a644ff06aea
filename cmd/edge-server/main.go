package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "edgeguard/internal/config"
	"edgeguard/internal/form"
	hhttp "edgeguard/internal/handler/http"
	"edgeguard/internal/handler/http/middleware"
	"edgeguard/internal/handler/http/requestid"
	"edgeguard/internal/handler/http/respond"
	"edgeguard/internal/observability/logging"
	"edgeguard/internal/observability/tracing"
	pkgconfig "edgeguard/pkg/config"
	"edgeguard/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "", "path to edge defense YAML config (optional)")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	securityConfig := loadSecurityConfig(logger, *configPath)
	components := setupServer(logger, securityConfig)
	runServer(logger, *addr, components)
}

// loadSecurityConfig loads the YAML config when a path is given and
// falls back to defaults otherwise. A present-but-broken config file is
// a startup error; silently running with defaults the operator did not
// choose would be worse than failing loudly.
func loadSecurityConfig(logger *slog.Logger, path string) middleware.SecurityConfig {
	if path == "" {
		logger.Info("no config file given, using default edge security configuration")
		config := middleware.DefaultSecurityConfig()
		// RATELIMIT_* environment variables still apply without a file.
		config.RateLimit = pkgconfig.LoadRateLimitConfig().Window
		return config
	}
	config, err := appconfig.LoadEdgeConfig(path)
	if err != nil {
		logger.Error("failed to load edge configuration",
			slog.String("path", path),
			slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("edge configuration loaded", slog.String("path", path))
	return config.SecurityConfig()
}

// serverComponents holds the handler plus everything needing cleanup.
type serverComponents struct {
	handler  http.Handler
	security *middleware.Security
}

// setupServer wires the security pipeline, demo endpoints and metrics
// exposition into one handler chain.
func setupServer(logger *slog.Logger, securityConfig middleware.SecurityConfig) *serverComponents {
	proxyConfig, err := middleware.LoadTrustedProxyConfig()
	if err != nil {
		logger.Error("failed to load trusted proxy configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var extractor middleware.IPExtractor
	if proxyConfig.Enabled {
		extractor = middleware.NewTrustedProxyExtractor(*proxyConfig)
		logger.Info("IP extraction: trusted proxy mode",
			slog.Int("trusted_proxies_count", len(proxyConfig.AllowedCIDRs)))
	} else {
		extractor = &middleware.RemoteAddrExtractor{}
		logger.Info("IP extraction: RemoteAddr only, proxy headers ignored")
	}

	limiterMetrics := ratelimit.NewPrometheusMetrics()
	security := middleware.NewSecurity(securityConfig, middleware.SecurityDeps{
		Extractor:      extractor,
		Logger:         logging.NewComponentLogger("edge-security"),
		LimiterMetrics: limiterMetrics,
	})

	validator := form.New(form.Options{
		Logger: logging.NewComponentLogger("form"),
	})
	csrfIssuer := form.NewCSRFIssuer(
		[]byte(os.Getenv("CSRF_SECRET")),
		securityConfig.SessionTimeout,
		logging.NewComponentLogger("csrf"),
	)
	guard := form.NewSubmissionGuard(nil, logging.NewComponentLogger("form-guard"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.Gatherers{
		security.Metrics().Registry(),
		limiterMetrics.Registry(),
	}, promhttp.HandlerOpts{}))
	mux.HandleFunc("/csrf-token", handleCSRFToken(csrfIssuer))
	mux.HandleFunc("/submit", handleSubmit(validator, csrfIssuer, guard, logger))

	// Order, outermost first: request id (so every later stage and the
	// block envelope can carry it), tracing, recovery, logging, input
	// validation, the security pipeline, then per-request timeout and
	// body cap in front of the handlers.
	var chain http.Handler = mux
	chain = hhttp.LimitRequestBody(securityConfig.MaxRequestSize)(chain)
	chain = hhttp.Timeout(30 * time.Second)(chain)
	chain = security.Middleware(chain)
	chain = hhttp.InputValidation()(chain)
	chain = hhttp.Logging(logger)(chain)
	chain = hhttp.Recover(logger)(chain)
	chain = tracing.Middleware(chain)
	chain = requestid.Middleware(chain)

	return &serverComponents{handler: chain, security: security}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCSRFToken issues a session-bound token. The session here is the
// request id for demonstration; a real application binds to its session
// cookie.
func handleCSRFToken(issuer *form.CSRFIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := requestid.FromContext(r.Context())
		token, err := issuer.Issue(session)
		if err != nil {
			respond.JSON(w, http.StatusInternalServerError, map[string]string{"error": "token issuance failed"})
			return
		}
		respond.JSON(w, http.StatusOK, map[string]string{"csrfToken": token, "session": session})
	}
}

// demoFields is the validation contract for the demo submission form.
var demoFields = map[string]form.FieldConfig{
	"title": {Required: true, MaxLength: 200},
	"bio":   {AllowHTML: true, MaxLength: 2000},
	"email": {},
}

func handleSubmit(validator *form.Validator, issuer *form.CSRFIssuer, guard *form.SubmissionGuard, logger *slog.Logger) http.HandlerFunc {
	honeypot := form.CreateHoneypot()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respond.JSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		if !guard.Allow("demo-submit", 5, time.Minute) {
			respond.JSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many submissions"})
			return
		}

		// The edge middleware already checked token format; here the
		// issuer verifies the cryptographic session binding.
		if session := r.Header.Get("X-Session"); session != "" {
			if !issuer.Validate(r.Header.Get("X-CSRF-Token"), session) {
				respond.JSON(w, http.StatusForbidden, map[string]string{"error": "invalid CSRF token"})
				return
			}
		}

		var data map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			respond.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if !form.ValidateHoneypot(honeypot, data) {
			logger.Warn("honeypot field filled, dropping submission",
				slog.String("request_id", requestid.FromContext(r.Context())))
			// Answer as if accepted so the bot learns nothing.
			respond.JSON(w, http.StatusOK, map[string]bool{"accepted": true})
			return
		}

		result := validator.Validate(data, demoFields)
		if !result.IsValid {
			respond.JSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		respond.JSON(w, http.StatusOK, result)
	}
}

// runServer starts the HTTP server and handles graceful shutdown.
func runServer(logger *slog.Logger, addr string, components *serverComponents) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           components.handler,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("edge server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	cancel()
	components.security.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
