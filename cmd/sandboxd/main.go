package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bitsy-Chuck/pomodex/internal/api"
	"github.com/Bitsy-Chuck/pomodex/internal/auth"
	"github.com/Bitsy-Chuck/pomodex/internal/config"
	"github.com/Bitsy-Chuck/pomodex/internal/health"
	"github.com/Bitsy-Chuck/pomodex/internal/iam"
	"github.com/Bitsy-Chuck/pomodex/internal/lifecycle"
	"github.com/Bitsy-Chuck/pomodex/internal/log"
	"github.com/Bitsy-Chuck/pomodex/internal/objectstore"
	"github.com/Bitsy-Chuck/pomodex/internal/reconciler"
	"github.com/Bitsy-Chuck/pomodex/internal/registry"
	"github.com/Bitsy-Chuck/pomodex/internal/runtime/docker"
	"github.com/Bitsy-Chuck/pomodex/internal/security"
	"github.com/Bitsy-Chuck/pomodex/internal/snapshot"
	"github.com/Bitsy-Chuck/pomodex/internal/storage/postgres"
	"github.com/Bitsy-Chuck/pomodex/internal/tenant"
	"github.com/Bitsy-Chuck/pomodex/internal/terminal"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sandboxd",
	Short:   "Multi-tenant project sandbox orchestrator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sandboxd version %s (%s)\n", Version, Commit))
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server, reconciler, and terminal gateway",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	if err := postgres.Migrate(ctx, store.Pool()); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	rt, err := docker.New()
	if err != nil {
		return fmt.Errorf("connecting to docker: %w", err)
	}
	defer rt.Close()

	iamClient, err := iam.New(ctx, cfg.GCPProject, cfg.GoogleCredentialsPath)
	if err != nil {
		return fmt.Errorf("creating IAM client: %w", err)
	}
	defer iamClient.Close()

	objectClient, err := objectstore.New(ctx, cfg.GCPProject, cfg.GCSBucketLocation, cfg.GoogleCredentialsPath)
	if err != nil {
		return fmt.Errorf("creating object storage client: %w", err)
	}
	defer objectClient.Close()

	regClient, err := registry.New(ctx, cfg.ARRegion, cfg.GCPProject, cfg.ARRepository, cfg.GoogleCredentialsPath)
	if err != nil {
		return fmt.Errorf("creating registry client: %w", err)
	}
	defer regClient.Close()

	vault, err := security.NewVaultFromPassphrase(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating credential vault: %w", err)
	}

	verifier, err := auth.New(store, cfg.JWTSecretFile, cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating auth verifier: %w", err)
	}

	provisioner := tenant.New(store, iamClient, objectClient, vault)
	snapshotEngine := snapshot.New(rt, regClient)
	lc := lifecycle.New(store, rt, provisioner, snapshotEngine, objectClient, cfg.SandboxImage)

	recon := reconciler.New(store, lc, reconciler.Config{
		Interval:       cfg.ReconcileInterval,
		StuckThreshold: cfg.StuckThreshold,
		IdleThreshold:  cfg.IdleThreshold,
	})
	recon.Start()
	defer recon.Stop()

	gateway := terminal.New(verifier, store, rt, terminal.NewLogAuditLogger())

	healthHandler := health.NewHandler(5*time.Second,
		health.NewDBChecker(store.Pool()),
		health.NewRuntimeChecker(rt),
	)

	apiServer := api.NewServer(store, verifier, lc, regClient, healthHandler, api.Config{
		InternalSecret: internalSecretFrom(cfg.InternalSecretPath, cfg.JWTSecret),
		HostIP:         cfg.HostIP,
		TerminalPort:   cfg.TerminalPort,
	})

	mux := http.NewServeMux()
	mux.Handle("/terminal/", gateway)
	mux.Handle("/", apiServer)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("sandboxd listening on %s", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Errorf("http server error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// internalSecretFrom reads the shared secret the terminal-proxy
// sidecar presents on /internal routes, preferring the mounted file
// over the fallback, matching the JWT secret's file-over-env
// convention.
func internalSecretFrom(path, fallback string) string {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return fallback
}
