package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/psantana5/timinghooks/internal/config"
	"github.com/psantana5/timinghooks/internal/hostinfo"
	"github.com/psantana5/timinghooks/pkg/api"
	"github.com/psantana5/timinghooks/pkg/auth"
	"github.com/psantana5/timinghooks/pkg/logging"
	"github.com/psantana5/timinghooks/pkg/ratelimit"
	"github.com/psantana5/timinghooks/pkg/shutdown"
	"github.com/psantana5/timinghooks/pkg/store"
	"github.com/psantana5/timinghooks/pkg/timers"
	tlsutil "github.com/psantana5/timinghooks/pkg/tls"
	"github.com/psantana5/timinghooks/pkg/tracing"
)

var (
	serveAddr         string
	serveStore        string
	serveGenerateCert string
	serveSnapshotExit bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector",
	Long: `Runs an HTTP collector holding a live accumulator and a snapshot store.
Clients merge state into the accumulator or push snapshots; summaries are
available as JSON, YAML, tables or Prometheus metrics.

Endpoints:
  GET    /health
  GET    /summary[?scope=server&format=...]
  GET    /state
  POST   /state/merge
  POST   /reset[?save=true&label=...]
  GET    /snapshots
  POST   /snapshots
  GET    /snapshots/summary[?id=...]
  GET    /snapshots/{id}
  GET    /snapshots/{id}/summary
  DELETE /snapshots/{id}
  GET    /metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config or :9464)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "snapshot store: memory, sqlite, postgres or badger")
	serveCmd.Flags().StringVar(&serveGenerateCert, "generate-cert", "", "write a self-signed certificate to this directory and serve TLS with it")
	serveCmd.Flags().BoolVar(&serveSnapshotExit, "snapshot-on-exit", false, "store the live accumulator as a snapshot on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveStore != "" {
		cfg.Store.Type = serveStore
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, err := cfg.FileLogger("collector")
	if err != nil {
		return err
	}

	info := hostinfo.Detect()
	logger.Info("starting collector", map[string]interface{}{
		"version": version,
		"host":    info.Hostname,
		"cpus":    info.CPUThreads,
		"ram":     hostinfo.FormatRAM(info.RAMTotalBytes),
		"store":   cfg.Store.Type,
	})

	mgr := shutdown.New(cfg.Server.ShutdownTimeout, logger)
	mgr.Register("logger", shutdown.CloseResource(logger))

	st, err := store.NewStore(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	mgr.Register("store", shutdown.CloseResource(st))

	retention := store.NewRetention(cfg.RetentionConfig(), st, logger)
	retention.Start(cmd.Context())
	mgr.Register("snapshot retention", retention.Stop)

	tp, err := tracing.InitTracer(cfg.TracingConfig(version), logger)
	if err != nil {
		mgr.Shutdown()
		return err
	}
	mgr.Register("tracer", tp.Shutdown)

	// request intervals become child spans of the HTTP span and debug log lines
	timings := timers.New()
	handler := api.NewHandler(timings, st, logger, timers.WithHooks(
		tracing.NewIntervalHook(tp),
		logging.NewIntervalHook(logger),
	))
	handler.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if serveSnapshotExit {
		mgr.Register("final snapshot", saveFinalSnapshot(timings, st, info.Hostname, logger))
	}

	router, limiter, err := buildRouter(cfg, handler, tp)
	if err != nil {
		mgr.Shutdown()
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	if err := configureTLS(cfg, srv); err != nil {
		mgr.Shutdown()
		return err
	}
	mgr.Register("http server", shutdown.StopHTTPServer(srv))

	if limiter != nil {
		go cleanupLimiter(limiter, mgr.Done())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("collector listening", map[string]interface{}{
			"addr": cfg.Server.Addr,
			"tls":  srv.TLSConfig != nil,
		})
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	shutdownErr := mgr.WaitWithContext(ctx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("collector failed: %w", err)
	default:
		return shutdownErr
	}
}

func buildRouter(cfg *config.Config, handler *api.Handler, tp *tracing.Provider) (*mux.Router, *ratelimit.Limiter, error) {
	authenticator, err := auth.NewAuthenticator(cfg.APIKey, cfg.Server.APIKeyHash)
	if err != nil {
		return nil, nil, err
	}

	router := mux.NewRouter()
	router.Use(tracing.HTTPMiddleware(tp))

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = ratelimit.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		// keyed by address, not credentials, and ahead of the bcrypt check
		keyFunc := ratelimit.IPKeyFunc
		if cfg.Server.TrustProxy {
			keyFunc = ratelimit.ForwardedIPKeyFunc
		}
		router.Use(limiter.Middleware(keyFunc))
	}
	router.Use(authenticator.Middleware("/health", "/metrics"))

	handler.RegisterRoutes(router)
	return router, limiter, nil
}

func configureTLS(cfg *config.Config, srv *http.Server) error {
	files := cfg.TLSFiles()
	if serveGenerateCert != "" {
		if err := os.MkdirAll(serveGenerateCert, 0755); err != nil {
			return fmt.Errorf("failed to create certificate directory: %w", err)
		}
		files.CertFile = filepath.Join(serveGenerateCert, "cert.pem")
		files.KeyFile = filepath.Join(serveGenerateCert, "key.pem")
		if _, err := os.Stat(files.CertFile); os.IsNotExist(err) {
			host, _ := os.Hostname()
			if err := tlsutil.GenerateSelfSignedCert(files.CertFile, files.KeyFile, host); err != nil {
				return err
			}
		}
	}
	if !files.Enabled() {
		return nil
	}

	tlsCfg, err := tlsutil.ServerConfig(files)
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg
	return nil
}

func saveFinalSnapshot(timings *timers.Timers, st store.Store, host string, logger *logging.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		state := timings.Drain()
		if len(state) == 0 {
			return nil
		}
		snap := store.NewSnapshot("shutdown", host, state)
		if err := st.Save(ctx, snap); err != nil {
			return err
		}
		logger.Info("final snapshot saved", map[string]interface{}{
			"id":      snap.ID,
			"records": state.Records(),
		})
		return nil
	}
}

func cleanupLimiter(limiter *ratelimit.Limiter, done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			limiter.Cleanup(10 * time.Minute)
		case <-done:
			return
		}
	}
}
