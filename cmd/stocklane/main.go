package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/stocklane/stocklane/internal/app"
	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/auth"
	"github.com/stocklane/stocklane/internal/masterdata"
	"github.com/stocklane/stocklane/internal/masterdata/branches"
	"github.com/stocklane/stocklane/internal/masterdata/categories"
	"github.com/stocklane/stocklane/internal/masterdata/companies"
	"github.com/stocklane/stocklane/internal/masterdata/materials"
	"github.com/stocklane/stocklane/internal/masterdata/suppliers"
	"github.com/stocklane/stocklane/internal/masterdata/units"
	"github.com/stocklane/stocklane/internal/masterdata/warehouses"
	"github.com/stocklane/stocklane/internal/observability"
	platformdb "github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/purchasing"
	"github.com/stocklane/stocklane/internal/rbac"
	"github.com/stocklane/stocklane/internal/requisition"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/stock"
	"github.com/stocklane/stocklane/internal/users"
	"github.com/stocklane/stocklane/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := platformdb.Migrate(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := platformdb.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "stocklane_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	rolesHandler := rbac.NewRolesHandler(logger, rbacService, rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	usersService := users.NewService(users.NewRepository(dbpool))
	usersHandler := users.NewHandler(logger, usersService, rbacService, rbacMiddleware)

	masterHandlers := masterdata.Handlers{
		Companies:  companies.NewHandler(logger, companies.NewService(companies.NewRepository(dbpool))),
		Branches:   branches.NewHandler(logger, branches.NewService(branches.NewRepository(dbpool))),
		Warehouses: warehouses.NewHandler(logger, warehouses.NewService(warehouses.NewRepository(dbpool))),
		Categories: categories.NewHandler(logger, categories.NewService(categories.NewRepository(dbpool))),
		Units:      units.NewHandler(logger, units.NewService(units.NewRepository(dbpool))),
		Suppliers:  suppliers.NewHandler(logger, suppliers.NewService(suppliers.NewRepository(dbpool))),
		Materials:  materials.NewHandler(logger, materials.NewService(materials.NewRepository(dbpool))),
	}

	summaryCache := stock.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)
	stockService := stock.NewService(stock.NewPGRepository(dbpool), summaryCache, auditLogger, logger)
	stockHandler := stock.NewHandler(logger, stockService, rbacMiddleware)

	requisitionService := requisition.NewService(requisition.NewPGRepository(dbpool), approvalRecorder, auditLogger, stockService, logger)
	requisitionHandler := requisition.NewHandler(logger, requisitionService, rbacMiddleware)

	purchasingService := purchasing.NewService(purchasing.NewPGRepository(dbpool), stockService, idempotencyStore, approvalRecorder, auditLogger, logger)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService, rbacMiddleware)

	auditService := audit.NewService(audit.NewPGRepository(dbpool))
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Pool:               dbpool,
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		MasterData:         masterHandlers,
		StockHandler:       stockHandler,
		RequisitionHandler: requisitionHandler,
		PurchasingHandler:  purchasingHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
