package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/civicgrid/request-service/internal/api/http"
	"github.com/civicgrid/request-service/internal/api/http/handlers"
	"github.com/civicgrid/request-service/internal/auth"
	"github.com/civicgrid/request-service/internal/config"
	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/events"
	"github.com/civicgrid/request-service/internal/lifecycle"
	"github.com/civicgrid/request-service/internal/observability"
	"github.com/civicgrid/request-service/internal/persistence"
	"github.com/civicgrid/request-service/internal/repository"
	"github.com/civicgrid/request-service/internal/service"
	"github.com/civicgrid/request-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	citizenRepo := repository.NewCitizenRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	requestRepo := repository.NewRequestRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	workOrderRepo := repository.NewWorkOrderRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	reviewRepo := repository.NewReviewRepository(pool)
	goalRepo := repository.NewGoalRepository(pool)
	performanceRepo := repository.NewPerformanceRepository(pool)

	dispatcher := events.NewInMemoryDispatcher(logger)

	machine := lifecycle.NewMachine(lifecycle.Config{
		SLAWindows: map[domain.RequestPriority]time.Duration{
			domain.RequestPriorityUrgent: time.Duration(cfg.Lifecycle.SLAUrgentHours) * time.Hour,
			domain.RequestPriorityHigh:   time.Duration(cfg.Lifecycle.SLAHighHours) * time.Hour,
			domain.RequestPriorityMedium: time.Duration(cfg.Lifecycle.SLAMediumHours) * time.Hour,
			domain.RequestPriorityLow:    time.Duration(cfg.Lifecycle.SLALowHours) * time.Hour,
		},
		ReopenWindow: cfg.Lifecycle.ReopenWindow(),
	})

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		CitizenRepo: citizenRepo,
		StaffRepo:   staffRepo,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		RequestRepo:    requestRepo,
		DepartmentRepo: departmentRepo,
		CommentRepo:    commentRepo,
		AttachmentRepo: attachmentRepo,
		HistoryRepo:    historyRepo,
		Machine:        machine,
		Dispatcher:     dispatcher,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		RequestRepo:    requestRepo,
		AssignmentRepo: assignmentRepo,
		StaffRepo:      staffRepo,
		WorkOrderRepo:  workOrderRepo,
		HistoryRepo:    historyRepo,
		Scorer:         &service.ActiveCountScorer{Assignments: assignmentRepo},
		Dispatcher:     dispatcher,
	})
	workOrderService := service.NewWorkOrderService(service.WorkOrderDependencies{
		WorkOrderRepo:  workOrderRepo,
		RequestService: requestService,
		Dispatcher:     dispatcher,
	})
	performanceService := service.NewPerformanceService(service.PerformanceDependencies{
		RequestRepo:       requestRepo,
		ReviewRepo:        reviewRepo,
		GoalRepo:          goalRepo,
		PerformanceRepo:   performanceRepo,
		Cache:             persistence.NewRollupCache(redis, cfg.Review.RollupCacheTTL()),
		Dispatcher:        dispatcher,
		FollowUpThreshold: cfg.Review.FollowUpThreshold,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), citizenRepo, staffRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Citizens:       handlers.NewCitizensHandler(authService),
		Staff:          handlers.NewStaffHandler(authService, staffRepo),
		Departments:    handlers.NewDepartmentsHandler(departmentRepo),
		Requests:       handlers.NewRequestsHandler(requestService),
		StaffRequests:  handlers.NewStaffRequestsHandler(requestService, assignmentService),
		WorkOrders:     handlers.NewWorkOrdersHandler(workOrderService),
		Performance:    handlers.NewPerformanceHandler(performanceService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
