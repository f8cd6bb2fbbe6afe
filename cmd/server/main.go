package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

var (
	// 构建时通过 -ldflags 注入
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，留空时仅读取环境变量")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[Server] 加载配置失败: %v", err)
	}

	logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		FilePath:   cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("[Server] 初始化失败: %v", err)
	}

	go func() {
		log.Printf("[Server] muse2api %s listening on %s", Version, app.Server.Addr)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[Server] 启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("[Server] 收到退出信号，开始优雅关闭")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Server.Shutdown(ctx); err != nil {
		log.Printf("[Server] HTTP 关闭异常: %v", err)
	}

	app.Cleanup()
	log.Printf("[Server] 已退出")
}
