package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/mq"
)

const defaultPrefetch = 5

// WorkflowSource — чтение workflow и его шагов.
type WorkflowSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	ListSteps(ctx context.Context, workflowID uuid.UUID) ([]domain.Step, error)
}

// RunExecutor выполняет шаги workflow (engine.Engine).
type RunExecutor interface {
	Execute(ctx context.Context, workflowID uuid.UUID, steps []domain.Step) (*domain.Run, error)
}

// Worker выполняет runs по запросам из очереди runs.requested.
//
// Worker не хранит состояние runs: каждое сообщение — независимый вызов
// engine. Несколько экземпляров потребляют из одной очереди, prefetch
// ограничивает число неподтверждённых сообщений на экземпляр.
type Worker struct {
	workflows WorkflowSource
	engine    RunExecutor
	conn      *mq.Connection
	prefetch  int
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Config — конфигурация Worker.
type Config struct {
	Workflows WorkflowSource
	Engine    RunExecutor

	// Conn — соединение с RabbitMQ (нужно только для Start).
	Conn *mq.Connection

	// Prefetch — сколько сообщений обрабатывается одновременно (по умолчанию 5).
	Prefetch int

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		workflows: cfg.Workflows,
		engine:    cfg.Engine,
		conn:      cfg.Conn,
		prefetch:  prefetch,
		logger:    logger,
	}
}

// Start запускает потребление runs.requested в фоне.
//
// Сообщения обрабатываются prefetch consumers параллельно; каждый
// consumer выполняет свои runs последовательно.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	w.started = true

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.logger.Info("starting worker", "prefetch", w.prefetch)

	for i := 0; i < w.prefetch; i++ {
		consumer := mq.NewConsumer(w.conn, mq.ConsumerConfig{
			Queue:    mq.QueueRunsRequested,
			Handler:  w.HandleMessage,
			Prefetch: 1,
			Logger:   w.logger.With("consumer", i),
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("run consumer stopped", "error", err)
			}
		}()
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает consumers и ждёт завершения текущих runs.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	w.logger.Info("stopping worker...")
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}
