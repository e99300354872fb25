package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/site-notifier/internal/observability"
	"github.com/kursadbilgin/site-notifier/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// DispatchWorker runs queued dispatch requests through the dispatcher.
type DispatchWorker struct {
	consumer    queue.Consumer
	dispatcher  Dispatcher
	logger      *zap.Logger
	concurrency int
}

func NewDispatchWorker(
	consumer queue.Consumer,
	dispatcher Dispatcher,
	concurrency int,
	logger *zap.Logger,
) (*DispatchWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchWorker{
		consumer:    consumer,
		dispatcher:  dispatcher,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes the dispatch queue until context cancellation.
func (w *DispatchWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("dispatch worker started", zap.Int("workerId", workerID))

			err := w.consumer.Consume(groupCtx, w.processMessage)
			if err != nil {
				w.logger.Error("dispatch worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("dispatch worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *DispatchWorker) processMessage(ctx context.Context, msg queue.DispatchMessage) error {
	result, err := w.dispatcher.Dispatch(ctx, msg.Request)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", msg.RequestID, err)
	}

	observability.WithContextLogger(w.logger, ctx).Debug("queued dispatch processed",
		zap.String("notificationType", msg.Request.NotificationType.String()),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
	)
	return nil
}
