package main

import (
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/handler"
	"github.com/Wei-Shaw/muse2api/internal/repository"
	"github.com/Wei-Shaw/muse2api/internal/server"
	"github.com/Wei-Shaw/muse2api/internal/server/middleware"
	"github.com/Wei-Shaw/muse2api/internal/service"
)

// Application 聚合 HTTP Server 与资源清理函数。
type Application struct {
	Server  *http.Server
	Cleanup func()
}

// initializeApplication 手工装配全部依赖。
// 装配顺序：基础设施 → 仓储 → 服务 → Handler → 路由。
func initializeApplication(cfg *config.Config) (*Application, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	userRepo := repository.NewMemoryUserRepo()
	taskRepo := repository.NewMemoryTaskRepo()
	sessionRepo := repository.NewRedisSessionRepo(rdb, cfg.Redis.SessionTTL)
	billingClient := repository.NewBillingClient(cfg.Billing)

	storage := service.NewMediaStorage(cfg.Storage)
	uploadService := service.NewUploadService(storage, cfg.Storage)
	creditService := service.NewCreditService(userRepo, cfg)
	hub := service.NewTaskEventHub()
	taskService := service.NewTaskService(taskRepo, creditService, hub, storage, uploadService, cfg)

	var simulator *service.TaskSimulator
	var engine service.OutcomeScheduler
	if cfg.Simulator.Enabled {
		simulator = service.NewTaskSimulator(taskRepo, creditService, hub, storage, cfg.Simulator)
		taskService.SetRunner(simulator)
		engine = simulator
	}

	sessionService := service.NewSessionService(sessionRepo, engine)
	authService := service.NewAuthService(userRepo, creditService, cfg.Auth)
	subscriptionService := service.NewSubscriptionService(userRepo, creditService, billingClient, cfg)

	if err := creditService.StartResetScheduler(); err != nil {
		return nil, err
	}

	handlers := handler.NewHandlers(
		handler.NewAuthHandler(authService),
		handler.NewCreditHandler(creditService, subscriptionService),
		handler.NewSubscriptionHandler(subscriptionService),
		handler.NewFileHandler(uploadService),
		handler.NewTaskHandler(taskService),
		handler.NewTaskStreamHandler(hub),
		handler.NewSessionHandler(sessionService),
	)

	jwtAuth := middleware.NewJWTAuthMiddleware(cfg.Auth)
	ginEngine := server.NewEngine(cfg, handlers, jwtAuth, storage)
	httpServer := server.NewHTTPServer(cfg, ginEngine)

	cleanup := provideCleanup(simulator, creditService, rdb)
	return &Application{Server: httpServer, Cleanup: cleanup}, nil
}

// provideCleanup 返回统一的资源清理函数。
// 先停业务侧定时任务，最后按顺序关闭基础设施。
func provideCleanup(
	simulator *service.TaskSimulator,
	creditService *service.CreditService,
	rdb *redis.Client,
) func() {
	return func() {
		type cleanupStep struct {
			name string
			fn   func() error
		}

		steps := []cleanupStep{
			{"TaskSimulator", func() error {
				if simulator != nil {
					simulator.Shutdown()
				}
				return nil
			}},
			{"CreditResetScheduler", func() error {
				creditService.StopResetScheduler()
				return nil
			}},
			{"Redis", func() error {
				if rdb == nil {
					return nil
				}
				return rdb.Close()
			}},
		}

		start := time.Now()
		for _, step := range steps {
			if err := step.fn(); err != nil {
				log.Printf("[Cleanup] %s failed: %v", step.name, err)
				continue
			}
			log.Printf("[Cleanup] %s succeeded", step.name)
		}
		log.Printf("[Cleanup] All cleanup steps completed in %s", time.Since(start))
	}
}
