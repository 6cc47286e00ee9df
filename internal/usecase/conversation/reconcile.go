package conversation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	domainrepo "github.com/speakerid-team/speaker-id/internal/domain/repositories"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/vector"
)

// reconcileGrace shields vectors whose relational update may still be in
// flight: an enable upserts the vector before recording the inclusion, so a
// sweep landing between the two would misread a fresh vector as an orphan.
const reconcileGrace = 15 * time.Minute

// Reconciler sweeps the vector index for utterance vectors the relational
// store no longer tracks. Orphans appear when an inclusion upsert succeeds
// but the follow-up relational update fails, or when a delete cascade dies
// between stages. It also purges delete journals whose conversation row is
// already gone.
type Reconciler struct {
	utteranceRepo domainrepo.UtteranceRepository
	sagaRepo      domainrepo.SagaRepository
	index         VectorIndex
	logger        *zap.Logger
}

// NewReconciler constructs the orphan sweep.
func NewReconciler(
	utteranceRepo domainrepo.UtteranceRepository,
	sagaRepo domainrepo.SagaRepository,
	index VectorIndex,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		utteranceRepo: utteranceRepo,
		sagaRepo:      sagaRepo,
		index:         index,
		logger:        logger,
	}
}

// Sweep runs one reconciliation pass and returns how many orphan vectors it
// removed. Only ids with the utterance_ prefix are candidates; speaker
// enrollment vectors are never touched, and vectors younger than the grace
// window are left for the next pass.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	tracked, err := r.utteranceRepo.AllVectorIDs(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(tracked))
	for _, id := range tracked {
		known[id] = true
	}

	// metadata query against a zero vector enumerates entries without
	// needing a real probe embedding
	matches, err := r.index.Query(ctx, vector.QueryRequest{
		Vector:          vector.ZeroVector(),
		TopK:            10000,
		IncludeMetadata: true,
	})
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-reconcileGrace)
	var orphans []string
	for _, match := range matches {
		if !strings.HasPrefix(match.ID, "utterance_") {
			continue
		}
		if known[match.ID] {
			continue
		}
		if createdAfter(match.Metadata, cutoff) {
			continue
		}
		orphans = append(orphans, match.ID)
	}

	if len(orphans) > 0 {
		if err := r.index.Delete(ctx, orphans); err != nil {
			return 0, err
		}
		if r.logger != nil {
			r.logger.Info("✅ Reconciliation removed orphan vectors",
				zap.Int("count", len(orphans)))
		}
	}

	if purged, err := r.sagaRepo.PurgeOrphaned(ctx); err != nil {
		if r.logger != nil {
			r.logger.Warn("Failed to purge stale delete journals", zap.Error(err))
		}
	} else if purged > 0 && r.logger != nil {
		r.logger.Info("✅ Reconciliation purged stale delete journals",
			zap.Int64("rows", purged))
	}

	return len(orphans), nil
}

// createdAfter reads the created_at metadata stamped on toggle-created
// vectors. Vectors without one predate the stamp and are treated as old.
func createdAfter(metadata map[string]interface{}, cutoff time.Time) bool {
	raw, _ := metadata["created_at"].(string)
	if raw == "" {
		return false
	}
	createdAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false
	}
	return createdAt.After(cutoff)
}

// Start runs Sweep on the given interval until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Sweep(ctx); err != nil && r.logger != nil {
					r.logger.Warn("Reconciliation sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
