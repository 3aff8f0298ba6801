package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/depsight/depsight/pkg/api"
	"github.com/depsight/depsight/pkg/artifact"
	"github.com/depsight/depsight/pkg/cache"
	"github.com/depsight/depsight/pkg/pipeline"
	"github.com/depsight/depsight/pkg/report"
	"github.com/depsight/depsight/pkg/source/github"
	"github.com/depsight/depsight/pkg/store"
	"github.com/depsight/depsight/pkg/store/memory"
	"github.com/depsight/depsight/pkg/store/mongodb"
	"github.com/depsight/depsight/pkg/vulnfeed"

	pkgerrors "github.com/depsight/depsight/pkg/errors"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return serve(cmd.Context(), cfg, loggerFromContext(cmd.Context()))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg Config, logger *log.Logger) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	feedCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer feedCache.Close()

	artifacts, err := openArtifacts(ctx, cfg)
	if err != nil {
		return err
	}
	defer artifacts.Close()

	feed := openFeed(cfg, feedCache, logger)
	runner := pipeline.New(st, github.NewFetcher(), feed, report.New(artifacts, logger), logger)
	server := api.NewServer(st, artifacts, runner, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr,
			"store", cfg.Store.Backend, "cache", cfg.Cache.Backend, "artifacts", cfg.Artifacts.Backend)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return memory.New(), nil
	case "mongodb":
		return mongodb.New(ctx, cfg.Store.MongoURI, cfg.Store.MongoDB)
	default:
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "unknown store backend %q", cfg.Store.Backend)
	}
}

func openCache(ctx context.Context, cfg Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return cache.NewMemoryCache(), nil
	case "redis":
		return cache.NewRedisCache(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.Prefix, cfg.Cache.DB)
	case "none":
		return cache.NewNullCache(), nil
	default:
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "unknown cache backend %q", cfg.Cache.Backend)
	}
}

func openArtifacts(ctx context.Context, cfg Config) (artifact.Store, error) {
	switch cfg.Artifacts.Backend {
	case "", "memory":
		return artifact.NewMemoryStore(), nil
	case "minio":
		return artifact.NewMinioStore(ctx, artifact.MinioConfig{
			Endpoint:  cfg.Artifacts.Endpoint,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			Bucket:    cfg.Artifacts.Bucket,
			UseSSL:    cfg.Artifacts.UseSSL,
		})
	default:
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "unknown artifact backend %q", cfg.Artifacts.Backend)
	}
}

func openFeed(cfg Config, c cache.Cache, logger *log.Logger) vulnfeed.Feed {
	var opts []vulnfeed.Option
	if cfg.Feed.BaseURL != "" {
		opts = append(opts, vulnfeed.WithBaseURL(cfg.Feed.BaseURL))
	}
	if cfg.Feed.Concurrency > 0 {
		opts = append(opts, vulnfeed.WithConcurrency(cfg.Feed.Concurrency))
	}
	if cfg.Feed.FailureThreshold > 0 {
		opts = append(opts, vulnfeed.WithFailureThreshold(cfg.Feed.FailureThreshold))
	}
	if cfg.Feed.CacheTTL.Duration > 0 {
		opts = append(opts, vulnfeed.WithCacheTTL(cfg.Feed.CacheTTL.Duration))
	}
	return vulnfeed.New(c, logger, opts...)
}
