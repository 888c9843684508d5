package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"data-chopper/internal/models/ports"
	"data-chopper/internal/pkg/config"
	"data-chopper/internal/pkg/metrics"
	"data-chopper/internal/pkg/postgres"
	"data-chopper/internal/repository/memory"
	repo "data-chopper/internal/repository/postgres"
	"data-chopper/internal/usecase"
)

// App связывает хранилище, очередь, сервис планирования и пул исполнителей
type App struct {
	UseCase ports.ChopUseCase
	Pool    *usecase.WorkerPool
	Metrics *metrics.Metrics

	closers []func()
}

// New собирает слои приложения по конфигурации
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log *zap.Logger) (*App, error) {
	var (
		resolver ports.CollectionResolver
		store    ports.RecordStore
		queue    ports.TaskQueue
		closers  []func()
	)

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := postgres.NewPostgresDB(ctx, cfg, log.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}

		records, tasks, err := postgresStores(ctx, db, log)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { postgres.CloseDB(db, log.Named("postgres")) })

		resolver, store = records, records
		queue = tasks

	case config.StoreDriverMemory:
		// Очередь в памяти живет только внутри одного процесса
		log.Warn("Using in-memory store, data is lost on exit")
		mem := memory.NewStore()
		if cfg.MemorySeedFile != "" {
			if err := mem.LoadSeedFile(cfg.MemorySeedFile); err != nil {
				return nil, err
			}
		}
		resolver, store = mem, mem
		queue = memory.NewQueue()

	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}

	m := metrics.New(reg)
	gate := usecase.NewEnvironmentGate(cfg.Environment, cfg.Settings.AllowedEnvironments, m, log.Named("gate"))
	chop := usecase.NewChopUseCase(resolver, store, queue, gate, cfg.Settings, m, log.Named("usecase"))

	executor := usecase.NewTaskExecutor(store, cfg.BatchPause, m, log.Named("executor"))
	pool := usecase.NewWorkerPool(queue, executor, usecase.WorkerPoolConfig{
		Concurrency:          cfg.WorkerConcurrency,
		PollInterval:         cfg.WorkerPollInterval,
		TTR:                  cfg.TaskTTR,
		RetryInitialInterval: cfg.RetryInitialInterval,
		RetryMaxInterval:     cfg.RetryMaxInterval,
	}, m, log.Named("worker"))

	return &App{
		UseCase: chop,
		Pool:    pool,
		Metrics: m,
		closers: closers,
	}, nil
}

// postgresStores применяет схему и создает репозитории. При ошибке соединение закрывается.
func postgresStores(ctx context.Context, db *sqlx.DB, log *zap.Logger) (*repo.RecordRepository, *repo.TaskRepository, error) {
	pgLog := log.Named("postgres")

	if err := postgres.Migrate(ctx, db, pgLog); err != nil {
		postgres.CloseDB(db, pgLog)
		return nil, nil, err
	}

	return repo.NewRecordRepository(db, log.Named("repository")), repo.NewTaskRepository(db, log.Named("queue")), nil
}

// Close освобождает ресурсы приложения
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
