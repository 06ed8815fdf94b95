package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/auth"
	"github.com/ebogdum/sharefs/authz"
	"github.com/ebogdum/sharefs/blob"
	"github.com/ebogdum/sharefs/blob/memory"
	"github.com/ebogdum/sharefs/blob/s3"
	"github.com/ebogdum/sharefs/config"
	"github.com/ebogdum/sharefs/core"
	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/metadata/postgres"
	"github.com/ebogdum/sharefs/metadata/schema"
	"github.com/ebogdum/sharefs/metadata/sqlite"
	"github.com/ebogdum/sharefs/server"
	"github.com/ebogdum/sharefs/shares"
)

var rootCmd = &cobra.Command{
	Use:   "sharefs",
	Short: "ShareFS - Access-controlled file storage with secure sharing",
	Long: `ShareFS is a file storage service with role-based access control and
signed, expiring share tokens for anonymous downloads.`,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the ShareFS server",
	Long:  "Start the ShareFS server with the configured metadata store and blob backend",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the ShareFS configuration and display the loaded settings",
	RunE:  validateConfig,
}

var configFilePath string

func main() {
	serverCmd.Flags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd, configCmd)

	// If no command specified, default to server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "server")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// runServer starts the ShareFS server
func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}()

	logger.Info("Starting ShareFS server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("metadata_store", cfg.MetadataStore.Type),
		zap.String("blob_backend", cfg.Blob.Backend))

	// Initialize metadata store
	logger.Info("Initializing metadata store")
	var metadataStore metadata.Store
	switch cfg.MetadataStore.Type {
	case "postgres":
		logger.Info("Running database migrations")
		if err := schema.RunMigrations(cfg.MetadataStore.DSN); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		metadataStore, err = postgres.NewPostgresStore(cfg.MetadataStore.DSN, logger)
	case "sqlite":
		metadataStore, err = sqlite.NewSQLiteStore(cfg.MetadataStore.SQLitePath, logger)
	default:
		return fmt.Errorf("unknown metadata store type: %s", cfg.MetadataStore.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	defer metadataStore.Close()

	// Initialize blob storage
	logger.Info("Initializing blob storage")
	var blobStore blob.Storage
	switch cfg.Blob.Backend {
	case "s3":
		blobStore, err = s3.NewS3Adapter(cfg.Blob, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 blob storage: %w", err)
		}
	case "memory":
		logger.Warn("Using in-memory blob storage; contents are lost on restart")
		blobStore = memory.NewMemoryAdapter()
	default:
		return fmt.Errorf("unknown blob backend: %s", cfg.Blob.Backend)
	}
	defer blobStore.Close()

	// Initialize permission evaluator and share token manager
	evaluator := authz.NewEvaluator(metadataStore, logger)
	shareManager, err := shares.NewManager(
		metadataStore,
		evaluator,
		cfg.Auth.ShareTokenSecret,
		cfg.Shares.MaxTTL,
		cfg.Shares.SkewTolerance,
		logger)
	if err != nil {
		return fmt.Errorf("failed to initialize share token manager: %w", err)
	}

	// Initialize core engine
	logger.Info("Initializing core engine")
	coreEngine := core.NewEngine(
		metadataStore,
		blobStore,
		evaluator,
		shareManager,
		cfg.Limits.MaxUploadBytes,
		cfg.Blob.PresignTTL,
		cfg.Server.MetadataOpTimeout,
		logger)

	// Initialize authentication
	logger.Info("Initializing authentication")
	authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKeys)

	// Start background share cleanup worker
	shares.StartCleanupWorker(ctx, metadataStore, cfg.Shares.CleanupInterval, logger)

	// Initialize HTTP router
	logger.Info("Initializing HTTP router")
	router := server.NewRouter(coreEngine, authenticator, &cfg.Limits, apiHost(&cfg), logger)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.Server.ListenAddr))
			if err := srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Failed to start server", zap.Error(err))
			}
			return
		}
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

// apiHost is the host embedded in externally visible share URLs.
func apiHost(cfg *config.AppConfig) string {
	if cfg.Server.ExternalURL != "" {
		return cfg.Server.ExternalURL
	}
	return cfg.Server.ListenAddr
}

// validateConfig validates the ShareFS configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	fmt.Println("Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("Metadata Store: %s\n", cfg.MetadataStore.Type)
	if cfg.MetadataStore.Type == "postgres" {
		fmt.Printf("Metadata Store DSN: %s\n", maskDSN(cfg.MetadataStore.DSN))
	} else {
		fmt.Printf("SQLite Path: %s\n", cfg.MetadataStore.SQLitePath)
	}
	fmt.Printf("Blob Backend: %s\n", cfg.Blob.Backend)
	if cfg.Blob.Backend == "s3" {
		fmt.Printf("S3 Bucket: %s\n", cfg.Blob.S3BucketName)
		fmt.Printf("S3 Region: %s\n", cfg.Blob.S3Region)
	}
	fmt.Printf("Share Max TTL: %s\n", cfg.Shares.MaxTTL)

	return nil
}

// maskDSN masks sensitive parts of the database DSN for display
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if len(dsn) > 20 {
		return dsn[:10] + "***" + dsn[len(dsn)-7:]
	}
	return "***"
}

// initializeLogger creates a zap logger based on configuration
func initializeLogger(logCfg config.LogConfig) (*zap.Logger, error) {
	var cfg zap.Config

	if logCfg.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	switch logCfg.Level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}
