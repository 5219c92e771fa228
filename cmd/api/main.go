package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/agenda"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/blob"
	"casedesk.org/internal/config"
	"casedesk.org/internal/docket"
	"casedesk.org/internal/httpapi"
	"casedesk.org/internal/obs"
	"casedesk.org/internal/session"
	"casedesk.org/internal/store/memory"
	"casedesk.org/internal/store/pg"
	"casedesk.org/internal/store/rest"
	"casedesk.org/internal/stream"
	"casedesk.org/internal/workspace"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// recordStore is what a backend must provide.
type recordStore interface {
	docket.Store
	auth.UserStore
}

func main() {
	cfgPath := flag.String("config", config.Path(), "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format, "casedesk-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ready := httpapi.ReadyProbe{}
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	store, closeStore, err := openStore(cfg, log, ready)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, closeStore)

	var sessions session.Store = session.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		client := session.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		rs := session.NewRedisStore(client, cfg.Redis.Prefix)
		sessions = rs
		ready["redis"] = rs
		cleanup = append(cleanup, func() { _ = client.Close() })
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.Secret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithTTL(cfg.Auth.SessionTTL),
	)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	blobs, err := openBlobs(cfg, ready)
	if err != nil {
		return err
	}

	feed := stream.New()
	ws := workspace.New(store,
		workspace.WithLogger(log.Named("workspace")),
		workspace.WithNotifier(feed),
		workspace.WithRemoteTimeout(cfg.Remote.Timeout),
	)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
	if err := ws.Load(loadCtx); err != nil {
		// Collections that failed stay empty; the API still serves the rest.
		log.Warn("initial load incomplete", zap.Error(err))
	}
	cancelLoad()

	api := httpapi.New(httpapi.Deps{
		Workspace: ws,
		Planner:   agenda.NewPlanner(ws, log.Named("agenda")),
		Sessions:  session.NewGateway(store, sessions, tokens, log.Named("session")),
		Blobs:     blobs,
		Stream:    feed,
		Ready:     ready,
		Logger:    log.Named("http"),
	}, httpapi.Options{
		Version:        version,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		RateBurst:      cfg.Rate.Burst,
		RatePerSecond:  cfg.Rate.PerSecond,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		WaitTimeout:    cfg.Remote.Timeout + 5*time.Second,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 15 * time.Second,
		// SSE connections outlive any write deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting casedesk-api",
			zap.String("version", version),
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := ws.Close(ctx); err != nil {
		log.Warn("remote operations abandoned", zap.Error(err))
	}
	log.Info("stopped")
	return nil
}

func openStore(cfg config.Config, log *zap.Logger, ready httpapi.ReadyProbe) (recordStore, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		s, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		ready["postgres"] = s
		return s, func() { _ = s.Close() }, nil
	case config.BackendREST:
		s := rest.New(cfg.REST.URL, cfg.REST.APIKey, cfg.REST.Timeout,
			rest.WithLogger(log.Named("rest")),
			rest.WithRetries(cfg.REST.Retries),
		)
		ready["rest"] = s
		return s, func() {}, nil
	default:
		log.Warn("using the in-memory backend; records are lost on restart")
		return memory.New(), func() {}, nil
	}
}

func openBlobs(cfg config.Config, ready httpapi.ReadyProbe) (blob.Store, error) {
	if cfg.Blob.Endpoint == "" {
		return blob.NewMemory(), nil
	}
	m, err := blob.NewMinio(blob.MinioConfig{
		Endpoint:  cfg.Blob.Endpoint,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		Bucket:    cfg.Blob.Bucket,
		Region:    cfg.Blob.Region,
		UseSSL:    cfg.Blob.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
	defer cancel()
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	ready["blob"] = m
	return m, nil
}
