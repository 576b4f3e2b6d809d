package storage

import (
	"context"
	"fmt"

	"flowswap/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// Multi writes each batch to every sink in order and stops at the first failure.
type Multi []Storage

func (m Multi) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	for i, sink := range m {
		if err := sink.PutLogBatch(ctx, logs); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}
