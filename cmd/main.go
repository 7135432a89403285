package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/contacts/internal/adapters/auth"
	"github.com/okian/contacts/internal/adapters/http/api"
	"github.com/okian/contacts/internal/adapters/http/redirect"
	"github.com/okian/contacts/internal/adapters/http/swagger"
	app "github.com/okian/contacts/internal/app"
	"github.com/okian/contacts/internal/config"
	"github.com/okian/contacts/internal/domain/model"
	"github.com/okian/contacts/pkg/logger"
	"github.com/okian/contacts/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// writePolicy names the policy guarding contact mutations.
const writePolicy = "API"

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Get().Error(ctx, "failed to load config", logger.Error(err))
		stop()
		os.Exit(1)
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		logger.Get().Warn(ctx, "invalid log_format; keeping text", logger.String("log_format", cfg.LogFormat))
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "server failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	svc := app.New(
		app.WithLogger(logger.Named("contacts")),
		app.WithSeed(seedContacts(cfg)...),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	keys, err := newKeySource(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := keys.(io.Closer); ok {
		defer c.Close()
	}
	handler := newHandler(cfg, svc, keys)

	// Start background metrics updaters
	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	servers := newServers(cfg, handler)
	errCh := make(chan error, len(servers))
	for _, ls := range servers {
		go func() {
			log.Info(ctx, "starting HTTP server", logger.String("addr", ls.srv.Addr), logger.Bool("tls", ls.tls))
			var err error
			if ls.tls {
				err = ls.srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			} else {
				err = ls.srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// Wait for shutdown signal or a listener failure
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, ls := range servers {
		if err := ls.srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.String("addr", ls.srv.Addr), logger.Error(err))
		}
	}

	log.Info(ctx, "server stopped")
	return runErr
}

func seedContacts(cfg *config.Config) []model.Contact {
	out := make([]model.Contact, 0, len(cfg.SeedContacts))
	for _, s := range cfg.SeedContacts {
		out = append(out, model.Contact{
			Name:    s.Name,
			Email:   s.Email,
			Phone:   s.Phone,
			Address: s.Address,
			City:    s.City,
		})
	}
	return out
}

// newKeySource returns a static key when signing_key_file is set and the
// authority's published key set otherwise.
func newKeySource(ctx context.Context, cfg *config.Config) (auth.KeySource, error) {
	if cfg.SigningKeyFile != "" {
		key, err := auth.LoadPEMPublicKey(cfg.SigningKeyFile)
		if err != nil {
			return nil, err
		}
		logger.Get().Info(ctx, "verifying tokens with a static signing key", logger.String("file", cfg.SigningKeyFile))
		return &auth.StaticKeySource{Default: key}, nil
	}

	jwks := auth.NewJWKSKeySource(cfg.Authority,
		auth.WithHTTPClient(&http.Client{Timeout: cfg.IssuerTimeout()}),
		auth.WithRefreshInterval(cfg.JWKSRefresh()),
		auth.WithMinRefreshInterval(cfg.JWKSMinRefresh()),
		auth.WithFetchTimeout(cfg.IssuerTimeout()),
	)
	if err := jwks.Prefetch(ctx); err != nil {
		// Requests retry once per jwks_min_refresh_seconds; the issuer may simply start later.
		logger.Get().Warn(ctx, "signing keys unavailable at startup",
			logger.String("authority", cfg.Authority),
			logger.Error(err),
		)
	}
	return jwks, nil
}

func newHandler(cfg *config.Config, svc *app.Service, keys auth.KeySource) http.Handler {
	verifier := auth.NewVerifier(keys,
		auth.WithIssuer(cfg.Authority),
		auth.WithAudience(cfg.Audience),
		auth.WithLeeway(cfg.ClockSkew()),
	)
	server := api.NewServer(svc, svc,
		auth.RequireScopePolicy(writePolicy, verifier, cfg.RequiredScope),
		api.WithDocs(swagger.Register),
		api.WithLogger(logger.Named("http")),
	)
	return server.Handler()
}

type listener struct {
	srv *http.Server
	tls bool
}

// newServers builds the listeners. With TLS configured the plaintext
// listener only redirects; without it the API is served over plain HTTP.
func newServers(cfg *config.Config, handler http.Handler) []listener {
	if !cfg.TLSEnabled() {
		logger.Get().Warn(context.Background(), "TLS not configured; serving the API over plain HTTP", logger.String("addr", cfg.Addr))
		return []listener{{srv: newHTTPServer(cfg.Addr, handler)}}
	}

	rd := redirect.New(cfg.HTTPSAddr, redirect.WithTrustProxyHeaders(cfg.TrustProxyHeaders))
	return []listener{
		{srv: newHTTPServer(cfg.HTTPSAddr, handler), tls: true},
		{srv: newHTTPServer(cfg.Addr, rd.Enforce(handler))},
	}
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the contact gauges from service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the contacts gauge as a side effect.
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		// Average GC pause time
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
