package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const jobTimeout = 10 * time.Minute

// Queue is the asynchronous executor for ingestion jobs. Each job carries a
// record identifier; submission is fire-and-forget and failures surface only
// in the log, matching at-least-once semantics where a retry is the
// operator's call (reprocess).
type Queue struct {
	pool   *ants.Pool
	svc    *Service
	logger *zap.Logger
}

func NewQueue(svc *Service, workers int, logger *zap.Logger) (*Queue, error) {
	if svc == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Queue{pool: pool, svc: svc, logger: logger}, nil
}

// Enqueue submits one ingestion job for the given record.
func (q *Queue) Enqueue(id uuid.UUID) error {
	err := q.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		q.logger.Info("ingestion job started", zap.String("record_id", id.String()))
		if err := q.svc.IngestByID(ctx, id); err != nil {
			q.logger.Error("ingestion job failed",
				zap.String("record_id", id.String()),
				zap.Error(err))
			return
		}
		q.logger.Info("ingestion job finished", zap.String("record_id", id.String()))
	})
	if err != nil {
		return fmt.Errorf("enqueue ingestion job: %w", err)
	}
	return nil
}

// Release shuts the worker pool down. Pending jobs are discarded.
func (q *Queue) Release() {
	q.pool.Release()
}
