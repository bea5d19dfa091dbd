// Command esocial-server serves the eSocial event API.
//
// Usage:
//
//	esocial-server -config /etc/esocial/config.yaml
//
// Variables from a .env file in the working directory are loaded before
// the configuration is expanded.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sirosfoundation/go-esocial/internal/config"
	"github.com/sirosfoundation/go-esocial/internal/server"
	"github.com/sirosfoundation/go-esocial/internal/storage"
	"github.com/sirosfoundation/go-esocial/internal/storage/memory"
	"github.com/sirosfoundation/go-esocial/internal/storage/mongodb"
	"github.com/sirosfoundation/go-esocial/internal/submission"
	"github.com/sirosfoundation/go-esocial/pkg/esocial"
	"github.com/sirosfoundation/go-esocial/pkg/event"
	"github.com/sirosfoundation/go-esocial/pkg/reliability"
	"github.com/sirosfoundation/go-esocial/pkg/schema"
	"github.com/sirosfoundation/go-esocial/pkg/security"
	"github.com/sirosfoundation/go-esocial/pkg/transport"
)

var (
	configPath = flag.String("config", "", "Path to the YAML configuration file")
	envFile    = flag.String("env-file", ".env", "Optional file of environment variables")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	registry, err := event.NewRegistry(catalog, nil)
	if err != nil {
		return fmt.Errorf("building event registry: %w", err)
	}

	tracker := reliability.NewTracker(cfg.ESocial.DuplicateWindow)
	defer tracker.Close()

	client, err := newClient(cfg, tracker, logger)
	if err != nil {
		return err
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	svc, err := submission.New(submission.Config{
		Registry:  registry,
		Client:    client,
		Store:     store,
		Validator: newValidator(cfg),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, svc, store, logger)
	if err != nil {
		return err
	}

	logger.Info("eSocial service configured",
		"environment", client.Environment(),
		"endpoint", client.Endpoint(),
		"event_types", catalog.Len(),
		"storage", cfg.Storage.Type)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadCatalog(path string) (*schema.Catalog, error) {
	if path == "" {
		return schema.DefaultCatalog()
	}
	return schema.LoadCatalog(path)
}

func newClient(cfg *config.Config, tracker *reliability.Tracker, logger *slog.Logger) (*esocial.Client, error) {
	ecfg := esocial.Config{
		Environment:        cfg.Environment(),
		Endpoint:           cfg.ESocial.Endpoint,
		SOAPAction:         cfg.ESocial.SOAPAction,
		Timeout:            cfg.ESocial.Timeout,
		InsecureSkipVerify: cfg.ESocial.InsecureSkipVerify,
		MaxResponseBytes:   cfg.ESocial.MaxResponseBytes,
	}
	if cfg.ESocial.RootCAFile != "" {
		pool, err := transport.LoadCertPool(cfg.ESocial.RootCAFile)
		if err != nil {
			return nil, fmt.Errorf("loading esocial.rootCAFile: %w", err)
		}
		ecfg.RootCAs = pool
	}
	if ecfg.InsecureSkipVerify {
		logger.Warn("server certificate verification is disabled")
	}
	return esocial.NewClient(ecfg, esocial.WithLogger(logger), esocial.WithTracker(tracker))
}

func newValidator(cfg *config.Config) security.CertificateValidator {
	if !cfg.Signing.CheckValidity && !cfg.Signing.CheckRevocation {
		return nil
	}
	var opts []security.ValidatorOption
	if cfg.Signing.CheckRevocation {
		ocsp := security.DefaultOCSPConfig()
		ocsp.Timeout = cfg.Signing.OCSPTimeout
		ocsp.Strict = cfg.Signing.StrictRevocation
		opts = append(opts, security.WithRevocationChecker(security.NewOCSPChecker(ocsp)))
	}
	return security.NewDefaultCertificateValidator(opts...)
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "mongodb":
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return mongodb.NewStore(connectCtx, &mongodb.Config{
			URI:        cfg.Storage.MongoDB.URI,
			Database:   cfg.Storage.MongoDB.Database,
			Collection: cfg.Storage.MongoDB.Collection,
		})
	default:
		return memory.NewStore(), nil
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
