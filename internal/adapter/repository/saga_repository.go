package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
)

// SagaRepository persists cascade step completions so an interrupted delete
// can resume without redoing finished stages
type SagaRepository struct {
	db *gorm.DB
}

// NewSagaRepository creates a new saga repository
func NewSagaRepository(db *gorm.DB) *SagaRepository {
	return &SagaRepository{db: db}
}

// CompletedSteps returns the steps already recorded for a saga, keyed by step name
func (r *SagaRepository) CompletedSteps(ctx context.Context, sagaKey string) (map[string]entities.SagaStep, error) {
	var steps []entities.SagaStep
	err := r.db.WithContext(ctx).
		Where("saga_key = ?", sagaKey).
		Find(&steps).Error
	if err != nil {
		return nil, err
	}

	completed := make(map[string]entities.SagaStep, len(steps))
	for _, step := range steps {
		completed[step.Step] = step
	}
	return completed, nil
}

// MarkStep records one step's completion with its counts. Re-marking the
// same step updates the counts in place.
func (r *SagaRepository) MarkStep(ctx context.Context, sagaKey, step string, deleted, failed int64) error {
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO saga_steps (saga_key, step, deleted, failed, completed_at)
		      VALUES (?, ?, ?, ?, now())
		      ON CONFLICT (saga_key, step) DO UPDATE
		      SET deleted = EXCLUDED.deleted,
		          failed = EXCLUDED.failed,
		          completed_at = EXCLUDED.completed_at`, sagaKey, step, deleted, failed).Error
}

// Finish clears the saga's step log once the whole cascade succeeded
func (r *SagaRepository) Finish(ctx context.Context, sagaKey string) error {
	return r.db.WithContext(ctx).
		Where("saga_key = ?", sagaKey).
		Delete(&entities.SagaStep{}).Error
}

// PurgeOrphaned removes delete journals whose conversation row is already
// gone, left behind when a cascade crashed between its relational stage and
// Finish. Returns how many step rows were removed.
func (r *SagaRepository) PurgeOrphaned(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Exec(`DELETE FROM saga_steps s
		      WHERE s.saga_key LIKE 'conversation_delete:%'
		        AND NOT EXISTS (
		            SELECT 1 FROM conversations c
		            WHERE s.saga_key = 'conversation_delete:' || c.id::text
		        )`)
	return result.RowsAffected, result.Error
}
