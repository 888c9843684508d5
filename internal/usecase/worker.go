package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"data-chopper/internal/models/entities"
	"data-chopper/internal/models/ports"
	"data-chopper/internal/pkg/metrics"
)

// WorkerPoolConfig задает параметры исполнителей очереди
type WorkerPoolConfig struct {
	Concurrency          int
	PollInterval         time.Duration
	TTR                  time.Duration
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// WorkerPool забирает задачи из очереди и выполняет их с повторами
type WorkerPool struct {
	queue    ports.TaskQueue
	executor *TaskExecutor
	cfg      WorkerPoolConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewWorkerPool создает пул исполнителей
func NewWorkerPool(queue ports.TaskQueue, executor *TaskExecutor, cfg WorkerPoolConfig, m *metrics.Metrics, logger *zap.Logger) *WorkerPool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.TTR <= 0 {
		cfg.TTR = entities.TimeToRun
	}

	return &WorkerPool{
		queue:    queue,
		executor: executor,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Run запускает исполнителей и блокируется до отмены ctx.
// Начатые задачи доводятся до конца в пределах TTR.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.logger.Info("Starting worker pool",
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Duration("ttr", p.cfg.TTR))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.reapLoop(gctx)
	})

	for i := range p.cfg.Concurrency {
		g.Go(func() error {
			return p.workLoop(gctx, i)
		})
	}

	err := g.Wait()
	p.logger.Info("Worker pool stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *WorkerPool) workLoop(ctx context.Context, id int) error {
	log := p.logger.With(zap.Int("worker", id))

	for {
		if ctx.Err() != nil {
			return nil
		}

		processed, err := p.ProcessNext(ctx)
		if err != nil {
			log.Error("Failed to process task", zap.Error(err))
		}

		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

func (p *WorkerPool) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := p.queue.ReapAbandoned(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("Failed to reap abandoned tasks", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				p.logger.Warn("Reaped tasks that exceeded their time-to-run", zap.Int("count", n))
			}
		}
	}
}

// ProcessNext забирает и выполняет одну задачу. Возвращает false, если готовых задач нет.
func (p *WorkerPool) ProcessNext(ctx context.Context) (bool, error) {
	claimedAt := time.Now()
	task, err := p.queue.Claim(ctx, p.cfg.TTR)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	attempt := task.Attempts + 1
	log := p.logger.With(
		zap.String("task_id", task.ID),
		zap.String("run_id", task.RunID),
		zap.Int("attempt", attempt))

	// Задачу нельзя отменить посреди выполнения, ее ограничивает только TTR с момента захвата
	detached := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithDeadline(detached, claimedAt.Add(p.cfg.TTR))

	start := time.Now()
	outcome, execErr := p.executor.Execute(runCtx, task, attempt)
	cancel()
	p.metrics.TaskDuration.Observe(time.Since(start).Seconds())

	if execErr == nil {
		p.metrics.TaskAttempts.WithLabelValues(metrics.ResultSucceeded).Inc()
		return p.settled(log, "complete", task.ID, p.queue.Complete(detached, task.ID, attempt, outcome))
	}

	if entities.CanRetry(attempt) {
		delay := p.retryDelay(attempt)
		p.metrics.TaskAttempts.WithLabelValues(metrics.ResultRetried).Inc()
		log.Warn("Task attempt failed, will retry",
			zap.Duration("delay", delay),
			zap.Error(execErr))

		return p.settled(log, "retry", task.ID, p.queue.Retry(detached, task.ID, attempt, time.Now().Add(delay), execErr.Error()))
	}

	p.metrics.TaskAttempts.WithLabelValues(metrics.ResultFailed).Inc()
	log.Error("Task permanently failed, deletions already applied are kept",
		zap.String("description", task.Description()),
		zap.Error(execErr))

	return p.settled(log, "fail", task.ID, p.queue.Fail(detached, task.ID, attempt, execErr.Error()))
}

// settled разбирает результат перехода состояния. Если задачу уже забрал сборщик просроченных,
// результат попытки отбрасывается: задачей владеет следующая попытка.
func (p *WorkerPool) settled(log *zap.Logger, transition, taskID string, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, entities.ErrTaskLost):
		log.Warn("Task ownership lost, result discarded", zap.String("transition", transition))
		return true, nil
	default:
		return true, fmt.Errorf("%s task %s: %w", transition, taskID, err)
	}
}

// retryDelay возвращает экспоненциальную задержку перед попыткой attempt+1
func (p *WorkerPool) retryDelay(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryInitialInterval
	bo.MaxInterval = p.cfg.RetryMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	delay := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = bo.NextBackOff()
	}

	if delay < 0 {
		return p.cfg.RetryMaxInterval
	}
	return delay
}
