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
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"drivegate/internal/blob"
	"drivegate/internal/gateway"
	"drivegate/internal/registry"
	"drivegate/internal/share"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func Run(ctx context.Context) error {

	listen := flag.String("listen", "8000", "HTTP listen port")
	grantsDB := flag.String("grants-db", "./grants.db", "path to the share grant database")

	flag.Parse()

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.DebugLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	registryURL := getenv("REGISTRY_BASE_URL", "https://api.mantahq.com/api/workflow/mantadrive")
	baseURL := getenv("BASE_URL", "http://localhost:"+*listen)

	blobStore := buildBlobStore(ctx)

	grants, err := share.Open(*grantsDB)
	if err != nil {
		return fmt.Errorf("open grant store: %w", err)
	}

	server, err := gateway.NewServer(gateway.Config{
		BaseURL:  baseURL,
		Blob:     blobStore,
		Registry: registry.NewClient(registryURL),
		Grants:   grants,
	})
	if err != nil {
		return fmt.Errorf("create gateway server: %w", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", *listen),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting drivegate HTTP server", "port", *listen)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	slog.Info("drivegate started", "registry", registryURL)
	return eg.Wait()
}

// buildBlobStore constructs the object-storage backend from the environment.
// Startup misconfiguration leaves the handle nil rather than failing the
// process: the gateway still serves listings and auth, and every blob
// operation fails fast as storage-unavailable until the backend is
// reconfigured at runtime.
func buildBlobStore(ctx context.Context) blob.Store {
	if root := getenv("BLOB_LOCAL_DIR", ""); root != "" {
		store, err := blob.NewLocalStore(root, getenv("BLOB_LOCAL_BASE_URL", ""))
		if err != nil {
			slog.Error("initialize local blob store", "dir", root, "err", err)
			return nil
		}
		slog.Info("using local blob store", "dir", root)
		return store
	}

	cfg := blob.MinioConfig{
		Endpoint:  getenv("S3_ENDPOINT", ""),
		AccessKey: getenv("S3_ACCESS_KEY", ""),
		SecretKey: getenv("S3_SECRET_KEY", ""),
		Bucket:    getenv("S3_BUCKET", "mantadrive-users"),
		Secure:    getenv("S3_SECURE", "true") != "false",
	}
	if cfg.Endpoint == "" {
		slog.Error("no blob backend configured, storage operations will fail until /admin/blob-config is called")
		return nil
	}

	store, err := blob.NewMinioStore(cfg)
	if err != nil {
		slog.Error("initialize object store client", "endpoint", cfg.Endpoint, "err", err)
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		// Keep the handle: the bucket may become reachable later.
		slog.Warn("blob backend not reachable at startup", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket, "err", err)
	} else {
		slog.Info("blob backend ready", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	}
	return store
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("drivegate exited with error", "error", err)
	}
}
