package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"spending/internal/core"
	applog "spending/internal/log"
	"spending/internal/middleware/ratelimit"
	"spending/internal/middleware/security"
	"spending/internal/middleware/trace"
	appweb "spending/web"
)

// LedgerService is what the handlers need from the service layer.
type LedgerService interface {
	Categories() []string
	Submit(ctx context.Context, sub core.Submission) (core.Transaction, error)
	Dashboard(ctx context.Context, lastBoughtCategory string) (core.Dashboard, error)
	LastBought(ctx context.Context, category string) (string, []core.LastPurchase, error)
	PredictCategory(ctx context.Context, item string) (string, error)
}

// Options configure NewServer. Ledger is required.
type Options struct {
	Addr           string
	RequestTimeout time.Duration
	Ledger         LedgerService
	// Ready reports store reachability for /readyz; nil means always reachable.
	Ready     func(ctx context.Context) error
	Logger    *applog.Logger
	Now       func() time.Time
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	templates *template.Template
	ledger    LedgerService
	ready     func(ctx context.Context) error
	logger    *applog.Logger
	now       func() time.Time
	timeout   time.Duration
	started   time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires routes and middleware.
func NewServer(opts Options) (*Server, error) {
	if opts.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.RateLimit.RequestsPerWindow == 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := opts.Logger.WithComponent(applog.ComponentHTTP)
	s := &Server{
		templates: t,
		ledger:    opts.Ledger,
		ready:     opts.Ready,
		logger:    logger,
		now:       opts.Now,
		timeout:   opts.RequestTimeout,
		started:   opts.Now(),
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		detector:  security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ClientIP, applog.NewStructuredLogger(logger))

	mux := http.NewServeMux()
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssets(3600)(http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /ui/category", s.handleCategoryOptions)
	mux.HandleFunc("GET /ui/last-bought", s.handleLastBought)
	mux.HandleFunc("/transactions", s.handleSubmit)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ClientIP, s.onRateLimit)(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Handler(h)
	h = applog.Middleware(logger)(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      opts.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.detector.ClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "error", "Too many submissions. Please wait a minute and try again.").Write(w)
}

// requestContext bounds the store work a single request may trigger.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

// render executes a template into a buffer so a failure never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldComponent, applog.ComponentTemplate,
			"template", name,
			applog.FieldError, err)
		InternalServerError("Could not render the page.").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// isStoreError reports failures that should surface as the blocking store panel.
func isStoreError(err error) bool {
	return errors.Is(err, core.ErrStoreUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
