package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nextfix-go/nextfix/internal/config"
	"github.com/nextfix-go/nextfix/internal/metrics"
	"github.com/nextfix-go/nextfix/internal/session"
	"github.com/nextfix-go/nextfix/internal/store"
	"github.com/nextfix-go/nextfix/internal/transport"
	"github.com/nextfix-go/nextfix/internal/wire"
)

// shutdownTimeout bounds how long the metrics HTTP server is given to
// drain in-flight requests during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// tickerInterval is the cadence Tick() is driven at for every
// registered session, per spec.md §4.3.
const tickerInterval = time.Second

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration", slog.String("error", err.Error()))
		return err
	}

	logger := newLogger(cfg.Log)
	logger.Info("nextfixd starting",
		slog.String("version", appVersion()),
		slog.String("listen_addr", cfg.Transport.ListenAddr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("sessions", len(cfg.Sessions)),
	)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	mgr := session.NewManager()
	codec := wire.Codec{}
	app := newLoggingApplication(logger)

	if err := buildSessions(cfg, mgr, codec, app, collector, logger); err != nil {
		return fmt.Errorf("build sessions: %w", err)
	}
	defer mgr.UnregisterAll()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	if cfg.Transport.ListenAddr != "" {
		ln, err := net.Listen("tcp", cfg.Transport.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Transport.ListenAddr, err)
		}
		acceptor := &transport.Acceptor{
			Listener: ln,
			Resolve:  resolver(mgr, codec),
			Logger:   logger,
		}
		g.Go(func() error {
			logger.Info("acceptor listening", slog.String("addr", cfg.Transport.ListenAddr))
			return acceptor.Run(gCtx)
		})
	}

	for _, sc := range cfg.Sessions {
		if !sc.IsInitiator() {
			continue
		}
		sess, ok := mgr.Lookup(sc.ID())
		if !ok {
			continue
		}
		addr := sc.ConnectAddr
		g.Go(func() error {
			return dialLoop(gCtx, addr, sess, logger)
		})
	}

	for _, sess := range mgr.Sessions() {
		g.Go(func() error {
			transport.RunTicker(gCtx, sess, tickerInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return shutdownServers(context.WithoutCancel(ctx), metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}

	logger.Info("nextfixd stopped")
	return nil
}

// buildSessions constructs and registers a session.Session for every
// declarative entry in cfg.Sessions.
func buildSessions(
	cfg *config.Config,
	mgr *session.Manager,
	codec session.Codec,
	app session.Application,
	collector *metrics.Collector,
	logger *slog.Logger,
) error {
	for _, sc := range cfg.Sessions {
		id := sc.ID()
		settings := sc.Settings(cfg.Defaults)

		sess, err := session.New(id, settings, store.New(), codec, app,
			session.WithMetrics(collector),
			session.WithLogger(logger),
			session.WithInitiator(sc.IsInitiator()),
		)
		if err != nil {
			return fmt.Errorf("session %s: %w", id, err)
		}

		if err := mgr.Register(sess); err != nil {
			return err
		}
	}
	return nil
}

// resolver builds the Acceptor.Resolve callback: it decodes the first
// inbound message enough to read the peer's identity and looks up the
// corresponding registered session by its counterparty's perspective.
func resolver(mgr *session.Manager, codec session.Codec) func([]byte) (*session.Session, error) {
	return func(raw []byte) (*session.Session, error) {
		msg, err := codec.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode initial message: %w", err)
		}

		id := session.ID{
			BeginString:      msg.Header.BeginString,
			SenderCompID:     msg.Header.TargetCompID,
			SenderSubID:      msg.Header.TargetSubID,
			SenderLocationID: msg.Header.TargetLocationID,
			TargetCompID:     msg.Header.SenderCompID,
			TargetSubID:      msg.Header.SenderSubID,
			TargetLocationID: msg.Header.SenderLocationID,
		}

		sess, ok := mgr.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("no session registered for %s", id)
		}
		return sess, nil
	}
}

// dialLoop keeps an initiator session's connection up, reconnecting
// with a fixed backoff until ctx is canceled.
func dialLoop(ctx context.Context, addr string, sess *session.Session, logger *slog.Logger) error {
	const retryDelay = 5 * time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := transport.Dial(ctx, "tcp", addr, sess, logger); err != nil {
			logger.Warn("dial failed, retrying",
				slog.String("session", sess.ID().String()),
				slog.String("addr", addr),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

// -------------------------------------------------------------------------
// HTTP / Config / Logging helpers
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func shutdownServers(ctx context.Context, servers ...*http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}
