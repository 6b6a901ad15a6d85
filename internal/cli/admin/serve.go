package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/attestai/internal/api/handlers"
	"github.com/cloo-solutions/attestai/internal/config"
	"github.com/cloo-solutions/attestai/internal/database"
	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/openai"
	"github.com/cloo-solutions/attestai/internal/progress"
	"github.com/cloo-solutions/attestai/internal/repository"
	"github.com/cloo-solutions/attestai/internal/server"
	"github.com/cloo-solutions/attestai/internal/service"
	"github.com/cloo-solutions/attestai/internal/storage"
	"github.com/cloo-solutions/attestai/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the attest API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	orgRepo := repository.NewOrgRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	frameworkRepo := repository.NewFrameworkRepository(pool)
	analysisRepo := repository.NewAnalysisRepository(pool)
	evidenceRepo := repository.NewEvidenceRepository(pool)
	corpusRepo := repository.NewCorpusRepository(pool)
	txRunner := repository.NewTxRunner(pool)
	retryer := repository.NewRetryer()

	authSvc := service.NewAuthService(orgRepo, apiKeyRepo)

	if cfg.InitOrgName != "" {
		if err := bootstrapInitialOrg(ctx, cfg, orgRepo, authSvc); err != nil {
			return fmt.Errorf("failed to bootstrap initial org: %w", err)
		}
	}

	var store service.ObjectStorageInterface
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		store = s3Client
	} else {
		log.Println("S3 not configured: document upload endpoints disabled")
	}

	// Without an OpenAI key the search and analysis services stay up but
	// refuse work with an unavailable error.
	var embedder service.EmbeddingGeneratorInterface
	var evaluator service.ControlEvaluatorInterface
	if cfg.HasOpenAI() {
		oracle := openai.NewClient(cfg.OpenAIAPIKey)
		embedder = oracle
		evaluator = service.NewEvaluationService(oracle, txRunner, retryer, cfg.OracleMaxTokens)
	} else {
		log.Println("OpenAI not configured: search and analysis endpoints disabled")
	}

	registry := progress.NewRegistry()

	documentSvc := service.NewDocumentService(documentRepo, store, embedder, txRunner, retryer)
	frameworkSvc := service.NewFrameworkService(frameworkRepo, txRunner, retryer)
	searchSvc := service.NewSearchService(documentRepo, embedder)
	corpusSvc := service.NewCorpusService(corpusRepo, documentRepo, txRunner, retryer)
	analysisSvc := service.NewAnalysisService(service.AnalysisServiceDeps{
		Analyses:     analysisRepo,
		Frameworks:   frameworkRepo,
		Documents:    documentRepo,
		Evidence:     evidenceRepo,
		Organizer:    corpusSvc,
		Evaluator:    evaluator,
		Progress:     registry,
		Retryer:      retryer,
		DefaultModel: cfg.OracleModel,
	})

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:    authSvc,
		AuthHandler:      handlers.NewAuthHandler(authSvc),
		DocumentHandler:  handlers.NewDocumentHandler(documentSvc),
		FrameworkHandler: handlers.NewFrameworkHandler(frameworkSvc),
		AnalysisHandler:  handlers.NewAnalysisHandler(analysisSvc, registry),
		SearchHandler:    handlers.NewSearchHandler(searchSvc),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func bootstrapInitialOrg(ctx context.Context, cfg *config.Config, orgRepo *repository.OrgRepository, authSvc *service.AuthService) error {
	org, err := orgRepo.GetByName(ctx, cfg.InitOrgName)
	if err != nil && !errors.Is(err, domain.ErrOrganizationNotFound) {
		return fmt.Errorf("failed to check existing org: %w", err)
	}

	if org == nil {
		org, err = authSvc.CreateOrganization(ctx, cfg.InitOrgName)
		if err != nil {
			return fmt.Errorf("failed to create org: %w", err)
		}
		log.Printf("bootstrap: created organization '%s' (id: %s)", org.Name, org.ID)
	} else {
		log.Printf("bootstrap: organization '%s' already exists (id: %s)", org.Name, org.ID)
	}

	if cfg.InitAPIKey != "" {
		if !service.IsValidAPIToken(cfg.InitAPIKey) {
			return fmt.Errorf("invalid ATTEST_INIT_API_KEY format (expected 'att_<64 hex chars>')")
		}

		existingKey, err := authSvc.GetAPIKeyByToken(ctx, cfg.InitAPIKey)
		if err == nil && existingKey != nil {
			log.Printf("bootstrap: API key already exists (id: %s)", existingKey.ID)
			return nil
		}

		if err := authSvc.CreateAPIKeyWithToken(ctx, org.ID, "bootstrap", cfg.InitAPIKey); err != nil {
			return fmt.Errorf("failed to create API key: %w", err)
		}
		log.Printf("bootstrap: created API key")
	}

	return nil
}

func runMigrations(databaseURL string) error {
	// golang-migrate needs a database/sql handle, not a pgx pool
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
