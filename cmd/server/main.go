package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	chimw "github.com/go-chi/chi/v5/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pesio-ai/be-approvals/internal/client"
	"github.com/pesio-ai/be-approvals/internal/config"
	"github.com/pesio-ai/be-approvals/internal/database"
	"github.com/pesio-ai/be-approvals/internal/handler"
	"github.com/pesio-ai/be-approvals/internal/logger"
	"github.com/pesio-ai/be-approvals/internal/middleware"
	"github.com/pesio-ai/be-approvals/internal/repository"
	"github.com/pesio-ai/be-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Str("directory_source", cfg.Directory.Source).
		Msg("Starting Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.Open(ctx, cfg.Database.DSN(), database.Config{
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if cfg.Database.Migrate {
		applied, err := db.Migrate(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Strs("applied", applied).Msg("Database migrations applied")
	}

	// Initialize repositories
	approvalRepo := repository.NewApprovalRepository(db)
	userRepo := repository.NewUserRepository(db)
	rulesRepo := repository.NewApprovalRulesRepository(db)
	auditRepo := repository.NewApprovalAuditRepository(db)

	// Approver directory
	directory, closeDirectory, err := newDirectory(ctx, cfg, rulesRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize approver directory")
	}
	defer closeDirectory()

	opts := []service.Option{service.WithAuditLog(auditRepo)}

	// Event publishing is optional
	if cfg.NATS.URL != "" {
		conn, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		publisher := client.NewNotificationPublisher(conn, cfg.NATS.SubjectPrefix, log.Logger)
		defer publisher.Close()
		opts = append(opts, service.WithEventPublisher(publisher))
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS event publishing enabled")
	}

	// Initialize services
	approvalService := service.NewApprovalService(approvalRepo, directory, userRepo, log, opts...)
	rulesService := service.NewApprovalRulesService(rulesRepo, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, rulesService, db, log)
	router := httpHandler.Routes()

	// Apply middleware
	var h http.Handler = router
	h = chimw.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = chimw.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.RecoveryInterceptor(log.Logger),
		handler.LoggingInterceptor(log.Logger),
	))
	handler.RegisterApprovalServiceServer(grpcServer, handler.NewGRPCHandler(approvalService, log.Logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.ApprovalServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}

// newDirectory builds the approver directory selected by DIRECTORY_SOURCE and
// a function releasing its resources.
func newDirectory(
	ctx context.Context,
	cfg *config.Config,
	rules *repository.ApprovalRulesRepository,
) (client.ApproverDirectoryInterface, func(), error) {
	noop := func() {}

	switch cfg.Directory.Source {
	case config.DirectorySourceRules:
		return rules, noop, nil

	case config.DirectorySourceFile:
		d, err := client.LoadFileDirectory(cfg.Directory.File)
		if err != nil {
			return nil, noop, err
		}
		return d, noop, nil

	case config.DirectorySourceProtheus:
		sqlDB, err := client.OpenProtheus(ctx, cfg.Protheus.DSN)
		if err != nil {
			return nil, noop, err
		}
		d, err := client.NewProtheusDirectory(sqlDB, cfg.Protheus.Company, cfg.Protheus.Timeout)
		if err != nil {
			sqlDB.Close()
			return nil, noop, err
		}
		return d, func() { sqlDB.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown directory source %q", cfg.Directory.Source)
	}
}
