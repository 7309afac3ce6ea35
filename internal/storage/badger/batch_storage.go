package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// BatchStorage implements the BatchStorage interface for Badger
type BatchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBatchStorage creates a new BatchStorage instance
func NewBatchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BatchStorage {
	return &BatchStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BatchStorage) SaveBatch(ctx context.Context, batch *models.Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	if err := s.db.Store().Upsert(batch.ID, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

func (s *BatchStorage) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	var batch models.Batch
	if err := s.db.Store().Get(batchID, &batch); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("batch %s: %w", batchID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &batch, nil
}

func (s *BatchStorage) GetAllBatches(ctx context.Context) ([]*models.Batch, error) {
	var batches []models.Batch
	if err := s.db.Store().Find(&batches, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	result := make([]*models.Batch, len(batches))
	for i := range batches {
		result[i] = &batches[i]
	}
	return result, nil
}

func (s *BatchStorage) GetActiveBatches(ctx context.Context) ([]*models.Batch, error) {
	var batches []models.Batch
	query := badgerhold.Where("Status").In(models.JobStatusPending, models.JobStatusProcessing).
		SortBy("CreatedAt")
	if err := s.db.Store().Find(&batches, query); err != nil {
		return nil, fmt.Errorf("failed to list active batches: %w", err)
	}

	result := make([]*models.Batch, len(batches))
	for i := range batches {
		result[i] = &batches[i]
	}
	return result, nil
}

func (s *BatchStorage) DeleteBatch(ctx context.Context, batchID string) error {
	if err := s.db.Store().Delete(batchID, &models.Batch{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}

func (s *BatchStorage) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var batches []models.Batch
	query := badgerhold.Where("Status").In(models.JobStatusCompleted, models.JobStatusFailed).
		And("CompletedAt").Lt(cutoff)
	if err := s.db.Store().Find(&batches, query); err != nil {
		return 0, fmt.Errorf("failed to find expired batches: %w", err)
	}

	deleted := 0
	for i := range batches {
		if err := s.db.Store().Delete(batches[i].ID, &models.Batch{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete expired batch %s: %w", batches[i].ID, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *BatchStorage) CountBatches(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Batch{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count batches: %w", err)
	}
	return int(count), nil
}
