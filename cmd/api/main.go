package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"data-chopper/internal/app"
	"data-chopper/internal/delivery/http"
	"data-chopper/internal/pkg/config"
	"data-chopper/internal/pkg/logger"
)

func main() {
	// Создаем контекст приложения
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	// Инициализируем логгер
	l, err := logger.NewLogger(cfg.IsDevelopment(), cfg.Settings.LogLevel)
	if err != nil {
		panic(err)
	}
	defer l.Sync()

	log := l.Named("main")

	// Метрики процесса и приложения
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Инициализируем слои приложения
	application, err := app.New(ctx, cfg, registry, l)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	handler := http.NewHandler(application.UseCase, l.Named("handler"))
	router := http.NewRouter(handler, registry, application.Metrics, l.Named("http"))
	server := http.NewServer(router, l.Named("server"), cfg.ServerPort)

	// Запускаем сервер в отдельной горутине
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Исполнители задач работают в том же процессе
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		if err := application.Pool.Run(ctx); err != nil {
			log.Error("Worker pool stopped with error", zap.Error(err))
		}
	}()

	log.Info("Application started", zap.String("environment", cfg.Environment))

	// Обрабатываем сигналы остановки
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	// Останавливаем исполнителей, начатые задачи завершаются в пределах TTR
	cancel()
	<-poolDone

	log.Info("Application stopped")
}
