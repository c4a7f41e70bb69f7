package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"txlens/internal/api"
	"txlens/internal/app"
	"txlens/internal/config"
	"txlens/internal/logging"
	"txlens/internal/shutdown"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "API 服务端口，0表示使用配置文件")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *port > 0 {
		cfg.API.Port = *port
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalf("初始化失败: %v", err)
	}

	server := api.NewServer(cfg, a.Session, logger, cfg.API.Port)

	gs := shutdown.NewGracefulShutdown(30*time.Second, logger)
	gs.RegisterShutdownFunc("api-server", server.Stop, shutdown.OrderStopAcceptingRequests)
	gs.RegisterShutdownFunc("session", func(ctx context.Context) error {
		a.Session.Wait()
		return nil
	}, shutdown.OrderDrainLookups)
	gs.RegisterShutdownFunc("app", func(ctx context.Context) error {
		return a.Close()
	}, shutdown.OrderFlushOutput)
	gs.Start()

	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("启动服务器失败: %v", err)
			gs.Shutdown()
		}
	}()

	gs.Wait()
	logger.Info("服务器已关闭")
}
