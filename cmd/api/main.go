package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"durga.org/internal/audit"
	"durga.org/internal/auth"
	"durga.org/internal/config"
	"durga.org/internal/directory"
	"durga.org/internal/httpapi"
	"durga.org/internal/migrate"
	"durga.org/internal/obs"
	"durga.org/internal/store/memory"
	"durga.org/internal/store/pg"
	"durga.org/internal/summary"
	"durga.org/migrations"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "durga-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireAuth(); err != nil {
		return err
	}
	obs.SetLevel(cfg.Log.Level)
	log := obs.Logger()
	defer func() { _ = log.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store directory.Store
		creds auth.Credentials
	)
	if cfg.Database.DSN != "" {
		pgStore, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer pgStore.Close()
		if cfg.Migrations.AutoApply {
			if err := applyMigrations(ctx, pgStore, cfg.Migrations.Seeds, log); err != nil {
				return err
			}
		}
		store, creds = pgStore, pgStore
	} else {
		log.Warn("no database configured, using in-memory store")
		store = memory.New()
	}

	svc, err := directory.NewService(store,
		directory.WithAuditor(audit.New(log.Named("audit"))),
		directory.WithMetrics(obs.WorkflowMetrics{}),
	)
	if err != nil {
		return err
	}
	for _, in := range []directory.RoleInput{
		{Name: "Admin", Description: "Full access to the directory", IsSystem: true},
		{Name: "User", Description: "Default role for signed-in identities", IsSystem: true},
	} {
		if _, err := svc.EnsureRole(ctx, in, "system"); err != nil {
			return fmt.Errorf("ensure role %s: %w", in.Name, err)
		}
	}

	issuer, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	var authn *auth.Authenticator
	if creds != nil {
		authn = auth.NewAuthenticator(creds, svc, issuer)
	}

	api, err := httpapi.New(svc, summary.NewBuilder(store, svc.Now), issuer,
		httpapi.WithLogger(log.Named("http")),
		httpapi.WithVersion(version),
		httpapi.WithAuthenticator(authn),
		httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpapi.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	if cfg.GRPC.Addr != "" {
		grpcSrv, health := httpapi.NewGRPCServer(svc, log.Named("grpc"))
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go health.Run(ctx, 5*time.Second)
		go func() {
			log.Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc: %w", err)
			}
		}()
		defer grpcSrv.GracefulStop()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		log.Error("server failed", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("stopped")
	return nil
}

func applyMigrations(ctx context.Context, st *pg.Store, seeds bool, log *zap.Logger) error {
	mgr := migrate.NewManager(st.DB(), migrations.FS, migrations.SQLDir, migrations.SeedsDir,
		migrate.WithLogger(log.Named("migrate")))
	if _, err := mgr.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if seeds {
		if _, err := mgr.Seed(ctx); err != nil {
			return fmt.Errorf("migrate seed: %w", err)
		}
	}
	return nil
}
