package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/quantopian/pgcontents/internal/auth"
	"github.com/quantopian/pgcontents/internal/config"
	"github.com/quantopian/pgcontents/internal/crypto"
	"github.com/quantopian/pgcontents/internal/database/migrations"
	"github.com/quantopian/pgcontents/internal/filetypes"
	"github.com/quantopian/pgcontents/internal/handler"
	"github.com/quantopian/pgcontents/internal/middleware"
	"github.com/quantopian/pgcontents/internal/repository/postgres"
	"github.com/quantopian/pgcontents/internal/service"

	"github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"encryption", cfg.EncryptionPassword != "",
	)

	// Create JWT verifier unless running with the debug header fallback
	var jwtVerifier auth.JWTVerifier
	if cfg.JWKSURL != "" {
		var err error
		jwtVerifier, err = auth.NewJWTVerifier(cfg.JWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		defer jwtVerifier.Close()
	} else if cfg.Debug {
		logger.Warn("DEBUG MODE: trusting X-Forwarded-User header (never use in production!)")
	} else {
		log.Fatalf("PGCONTENTS_JWKS_URL is required outside debug mode")
	}

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Refuse to serve against an outdated schema
	db := stdlib.OpenDBFromPool(pool)
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		log.Fatalf("Schema check failed (run 'pgcontents migrate'): %v", err)
	}

	// Create repositories
	tables := postgres.NewTableNames(postgres.DefaultSchema)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	userRepo := postgres.NewUserRepository(repoConfig)
	dirRepo := postgres.NewDirectoryRepository(repoConfig)
	fileRepo := postgres.NewFileRepository(repoConfig)
	checkpointRepo := postgres.NewCheckpointRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Extension registry for type and format guessing
	registry, err := filetypes.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load filetype registry: %v", err)
	}

	// Encryption strategy from the configured passwords
	cryptoFactory := crypto.FactoryFromPasswords(cfg.EncryptionPassword, cfg.EncryptionFallbacks...)

	// Create services
	contentsService := service.NewContentsService(
		userRepo,
		dirRepo,
		fileRepo,
		checkpointRepo,
		txManager,
		registry,
		cryptoFactory,
		cfg.MaxFileSizeBytes,
		logger,
	)
	checkpointsService := service.NewCheckpointsService(
		fileRepo,
		dirRepo,
		checkpointRepo,
		txManager,
		cryptoFactory,
		cfg.MaxFileSizeBytes,
		logger,
	)

	// Create handlers
	contentsHandler := handler.NewContentsHandler(contentsService, checkpointsService, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", contentsHandler.HealthCheck)

	// Contents routes. Checkpoint operations share the contents wildcard
	// with a reserved trailing "checkpoints" segment, mirroring the
	// notebook API's URL layout.
	mux.HandleFunc("GET /api/contents", contentsHandler.GetContent)
	mux.HandleFunc("GET /api/contents/{path...}", contentsHandler.GetContent)
	mux.HandleFunc("PUT /api/contents/{path...}", contentsHandler.SaveContent)
	mux.HandleFunc("PATCH /api/contents/{path...}", contentsHandler.RenameContent)
	mux.HandleFunc("DELETE /api/contents/{path...}", contentsHandler.DeleteContent)
	mux.HandleFunc("POST /api/contents/{path...}", contentsHandler.PostCheckpoints)

	// Build middleware chain
	var root http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → RequestID → Recovery → Auth → Routes
	root = middleware.Auth(jwtVerifier, logger)(root)
	root = middleware.Recovery(logger)(root)
	root = middleware.RequestID(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
