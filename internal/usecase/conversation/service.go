package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
	domainrepo "github.com/speakerid-team/speaker-id/internal/domain/repositories"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/cache"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/external/transcriber"
	errs "github.com/speakerid-team/speaker-id/internal/usecase/errors"
	"github.com/speakerid-team/speaker-id/pkg/config"
)

// SourceTypeManualInclusion tags vectors created by the inclusion toggle.
const SourceTypeManualInclusion = "manual_inclusion"

// Delete cascade end states.
const (
	StatusDeleted          = "deleted"
	StatusPartiallyDeleted = "partially_deleted"
)

// IngestRequest carries one conversation's metadata and its utterance payloads.
type IngestRequest struct {
	ConversationKey string
	DisplayName     *string
	IdempotencyKey  *string
	DurationSeconds float64
	Metadata        map[string]interface{}
	Utterances      []UtteranceInput
}

// IngestResult reports what Ingest managed to persist.
type IngestResult struct {
	ConversationID    uuid.UUID `json:"conversation_id"`
	ConversationKey   string    `json:"conversation_key"`
	UtterancesWritten int       `json:"utterances_written"`
	UtterancesFailed  int       `json:"utterances_failed"`
	Deduplicated      bool      `json:"deduplicated"`
}

// ToggleResult is the inclusion state after a toggle call.
type ToggleResult struct {
	UtteranceID uuid.UUID `json:"utterance_id"`
	Included    bool      `json:"included_in_pinecone"`
	EmbeddingID *string   `json:"utterance_embedding_id"`
	Changed     bool      `json:"changed"`
}

// DeleteResult reports per-store deletion counts of a conversation cascade.
type DeleteResult struct {
	Status                      string `json:"status"`
	DeletedS3Objects            int64  `json:"deleted_s3_objects"`
	FailedS3Objects             int64  `json:"failed_s3_objects"`
	DeletedDBRows               int64  `json:"deleted_db_rows"`
	DeletedUtterances           int64  `json:"deleted_utterances"`
	DeletedWordTimestamps       int64  `json:"deleted_word_timestamps"`
	DeletedConversationSpeakers int64  `json:"deleted_conversation_speakers"`
	DeletedPineconeEmbeddings   int64  `json:"deleted_pinecone_embeddings"`
	FailedPineconeEmbeddings    int64  `json:"failed_pinecone_embeddings"`
}

// Detail is a conversation with its resolved utterances.
type Detail struct {
	Conversation *entities.Conversation          `json:"conversation"`
	Utterances   []entities.UtteranceWithSpeaker `json:"utterances"`
	Speakers     []string                        `json:"speakers"`
}

// ProcessRequest asks for a local audio file to be transcribed and ingested.
type ProcessRequest struct {
	ConversationKey string
	DisplayName     *string
	IdempotencyKey  *string
	LocalPath       string
}

// Service coordinates the relational store, object store and vector index.
type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
	ProcessAudio(ctx context.Context, req ProcessRequest) (*IngestResult, error)
	ToggleVectorInclusion(ctx context.Context, utteranceID uuid.UUID, desired bool) (*ToggleResult, error)
	DeleteConversation(ctx context.Context, conversationKey string) (*DeleteResult, error)
	List(ctx context.Context) ([]entities.ConversationSummary, error)
	Get(ctx context.Context, conversationKey string) (*Detail, error)
	UpdateDisplayName(ctx context.Context, conversationKey, displayName string) (*entities.Conversation, error)
	UpdateUtterance(ctx context.Context, utteranceID uuid.UUID, speakerName, text *string) (*entities.Utterance, error)
	UtteranceAudioURL(ctx context.Context, conversationKey, utteranceKey string) (string, error)
	OriginalAudioURL(ctx context.Context, conversationKey string) (string, error)
}

type service struct {
	conversationRepo domainrepo.ConversationRepository
	utteranceRepo    domainrepo.UtteranceRepository
	speakerRepo      domainrepo.SpeakerRepository
	sagaRepo         domainrepo.SagaRepository
	store            ObjectStore
	index            VectorIndex
	embedder         Embedder
	converter        Converter
	transcriber      transcriber.Transcriber
	resolver         *PathResolver
	locks            cache.Store
	cfg              *config.Config
	logger           *zap.Logger
}

// NewService constructs the mutation coordinator.
func NewService(
	conversationRepo domainrepo.ConversationRepository,
	utteranceRepo domainrepo.UtteranceRepository,
	speakerRepo domainrepo.SpeakerRepository,
	sagaRepo domainrepo.SagaRepository,
	store ObjectStore,
	index VectorIndex,
	embedder Embedder,
	converter Converter,
	trans transcriber.Transcriber,
	resolver *PathResolver,
	locks cache.Store,
	cfg *config.Config,
	logger *zap.Logger,
) Service {
	return &service{
		conversationRepo: conversationRepo,
		utteranceRepo:    utteranceRepo,
		speakerRepo:      speakerRepo,
		sagaRepo:         sagaRepo,
		store:            store,
		index:            index,
		embedder:         embedder,
		converter:        converter,
		transcriber:      trans,
		resolver:         resolver,
		locks:            locks,
		cfg:              cfg,
		logger:           logger,
	}
}

// Ingest creates the conversation row, then writes each utterance with its
// word timestamps. One failed utterance does not roll back the others;
// partial ingest is an accepted end-state reported in the result counts.
func (s *service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.ConversationKey == "" {
		return nil, fmt.Errorf("%w: conversation key is required", errs.ErrInvalidInput)
	}

	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" {
		existing, err := s.conversationRepo.FindByIdempotencyKey(ctx, *req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup failed: %w", err)
		}
		if existing != nil {
			if s.logger != nil {
				s.logger.Info("🔄 Ingest deduplicated by idempotency key",
					zap.String("conversation_key", existing.ConversationKey),
					zap.String("idempotency_key", *req.IdempotencyKey))
			}
			return &IngestResult{
				ConversationID:  existing.ID,
				ConversationKey: existing.ConversationKey,
				Deduplicated:    true,
			}, nil
		}
	}

	conv := entities.NewConversation(req.ConversationKey, req.DisplayName, req.IdempotencyKey, req.DurationSeconds)
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata is not serializable", errs.ErrInvalidInput)
		}
		conv.Metadata = datatypes.JSON(raw)
	}
	if err := s.conversationRepo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	result := &IngestResult{
		ConversationID:  conv.ID,
		ConversationKey: conv.ConversationKey,
	}

	for i, input := range req.Utterances {
		if err := s.writeUtterance(ctx, conv, input, i); err != nil {
			result.UtterancesFailed++
			if s.logger != nil {
				s.logger.Error("❌ Failed to persist utterance, continuing ingest",
					zap.String("conversation_key", conv.ConversationKey),
					zap.Int("index", i),
					zap.Error(err))
			}
			continue
		}
		result.UtterancesWritten++
	}

	if s.logger != nil {
		s.logger.Info("✅ Conversation ingested",
			zap.String("conversation_key", conv.ConversationKey),
			zap.Int("written", result.UtterancesWritten),
			zap.Int("failed", result.UtterancesFailed))
	}
	return result, nil
}

func (s *service) writeUtterance(ctx context.Context, conv *entities.Conversation, input UtteranceInput, index int) error {
	normalized, err := Normalize(input, conv.ConversationKey, index)
	if err != nil {
		return err
	}

	speakerID, err := s.speakerRepo.GetOrCreate(ctx, normalized.SpeakerName)
	if err != nil {
		return fmt.Errorf("failed to resolve speaker %q: %w", normalized.SpeakerName, err)
	}

	utterance := &entities.Utterance{
		ID:             uuid.New(),
		UtteranceKey:   normalized.UtteranceKey,
		ConversationID: conv.ID,
		SpeakerID:      speakerID,
		StartTime:      normalized.StartTime,
		EndTime:        normalized.EndTime,
		StartMs:        normalized.StartMs,
		EndMs:          normalized.EndMs,
		Text:           normalized.Text,
		Confidence:     normalized.Confidence,
		AudioFile:      normalized.AudioKey,
	}
	words := make([]entities.WordTimestamp, 0, len(normalized.Words))
	for _, w := range normalized.Words {
		words = append(words, entities.WordTimestamp{
			Word:       w.Text,
			StartMs:    w.StartMs,
			EndMs:      w.EndMs,
			Confidence: w.Confidence,
			Speaker:    w.Speaker,
		})
	}
	if _, err := s.utteranceRepo.CreateWithWords(ctx, utterance, words); err != nil {
		return fmt.Errorf("failed to write utterance: %w", err)
	}

	// junction row is a derived convenience, failures are not fatal
	if err := s.conversationRepo.LinkSpeaker(ctx, conv.ID, speakerID); err != nil && s.logger != nil {
		s.logger.Warn("Failed to link speaker to conversation",
			zap.String("conversation_key", conv.ConversationKey),
			zap.Error(err))
	}
	return nil
}

// ProcessAudio converts a local recording to WAV, uploads it, runs
// transcription with diarization, clips and uploads each utterance, and
// ingests the resulting segments.
func (s *service) ProcessAudio(ctx context.Context, req ProcessRequest) (*IngestResult, error) {
	if s.transcriber == nil {
		return nil, fmt.Errorf("transcription is not configured")
	}

	wavPath, err := s.converter.ConvertToWAV(ctx, req.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConversionFailed, err)
	}
	defer os.Remove(wavPath)

	originalKey := entities.OriginalAudioKey(req.ConversationKey)
	if err := s.store.UploadPath(ctx, originalKey, wavPath, "audio/wav"); err != nil {
		return nil, fmt.Errorf("%w: failed to upload original audio: %v", errs.ErrStorageFailed, err)
	}

	audioURL, err := s.store.GetFileURL(ctx, originalKey, s.cfg.Storage.PresignExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to presign original audio: %v", errs.ErrStorageFailed, err)
	}

	segments, err := s.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTranscriptionFailed, err)
	}

	scratch, err := os.MkdirTemp("", "utterances-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	inputs := make([]UtteranceInput, 0, len(segments))
	var durationMs int64
	for i, segment := range segments {
		if segment.EndMs > durationMs {
			durationMs = segment.EndMs
		}

		clipPath := filepath.Join(scratch, fmt.Sprintf("utterance_%03d.wav", i))
		clipKey := entities.UtteranceAudioKey(req.ConversationKey, i)
		if err := s.converter.ClipToWAV(ctx, wavPath, segment.StartMs, segment.EndMs, clipPath); err == nil {
			if err := s.store.UploadPath(ctx, clipKey, clipPath, "audio/wav"); err != nil && s.logger != nil {
				s.logger.Warn("Failed to upload utterance clip",
					zap.String("object_key", clipKey),
					zap.Error(err))
			}
		} else if s.logger != nil {
			s.logger.Warn("Failed to clip utterance audio",
				zap.String("conversation_key", req.ConversationKey),
				zap.Int("index", i),
				zap.Error(err))
		}

		words := make([]WordInput, 0, len(segment.Words))
		for _, w := range segment.Words {
			speaker := w.Speaker
			words = append(words, WordInput{
				Text:       w.Text,
				StartMs:    w.StartMs,
				EndMs:      w.EndMs,
				Confidence: w.Confidence,
				Speaker:    &speaker,
			})
		}
		inputs = append(inputs, UtteranceInput{Segment: &SegmentInput{
			Speaker:    segment.Speaker,
			Text:       segment.Text,
			StartMs:    segment.StartMs,
			EndMs:      segment.EndMs,
			Confidence: segment.Confidence,
			Words:      words,
		}})
	}

	return s.Ingest(ctx, IngestRequest{
		ConversationKey: req.ConversationKey,
		DisplayName:     req.DisplayName,
		IdempotencyKey:  req.IdempotencyKey,
		DurationSeconds: float64(durationMs) / 1000.0,
		Utterances:      inputs,
	})
}

// ToggleVectorInclusion flips whether an utterance's voiceprint lives in the
// vector index. Idempotent: asking for the current state changes nothing.
func (s *service) ToggleVectorInclusion(ctx context.Context, utteranceID uuid.UUID, desired bool) (*ToggleResult, error) {
	release, ok := cache.AcquireLock(ctx, s.locks, "toggle:"+utteranceID.String(), 2*time.Minute, 10*time.Second)
	if !ok {
		return nil, fmt.Errorf("%w: utterance %s is being toggled by another request", errs.ErrConflict, utteranceID)
	}
	defer release()

	utterance, err := s.utteranceRepo.FindByID(ctx, utteranceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load utterance: %w", err)
	}
	if utterance == nil {
		return nil, errs.ErrUtteranceNotFound
	}

	if utterance.IncludedInPinecone == desired {
		return &ToggleResult{
			UtteranceID: utteranceID,
			Included:    utterance.IncludedInPinecone,
			EmbeddingID: utterance.UtteranceEmbeddingID,
			Changed:     false,
		}, nil
	}

	if !desired {
		return s.disableInclusion(ctx, utterance)
	}
	return s.enableInclusion(ctx, utterance)
}

// disableInclusion deletes the index entry best-effort, then clears the
// relational flag regardless. A dangling untracked vector beats a stuck
// included flag.
func (s *service) disableInclusion(ctx context.Context, utterance *entities.Utterance) (*ToggleResult, error) {
	if utterance.UtteranceEmbeddingID != nil {
		if err := s.index.Delete(ctx, []string{*utterance.UtteranceEmbeddingID}); err != nil && s.logger != nil {
			s.logger.Warn("Failed to delete vector, clearing inclusion anyway",
				zap.String("embedding_id", *utterance.UtteranceEmbeddingID),
				zap.Error(err))
		}
	}

	if err := s.utteranceRepo.SetVectorInclusion(ctx, utterance.ID, false, nil); err != nil {
		return nil, fmt.Errorf("failed to clear inclusion flag: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("✅ Utterance removed from vector index",
			zap.String("utterance_id", utterance.ID.String()))
	}
	return &ToggleResult{UtteranceID: utterance.ID, Included: false, Changed: true}, nil
}

// enableInclusion resolves the audio, embeds it, upserts the vector and only
// then records the inclusion in the relational store, in that order.
func (s *service) enableInclusion(ctx context.Context, utterance *entities.Utterance) (*ToggleResult, error) {
	conv, err := s.conversationRepo.FindByID(ctx, utterance.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, errs.ErrConversationNotFound
	}
	speaker, err := s.speakerRepo.FindByID(ctx, utterance.SpeakerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load speaker: %w", err)
	}
	if speaker == nil {
		return nil, errs.ErrSpeakerNotFound
	}

	objectKey, err := s.resolver.ResolveStored(ctx, conv.ConversationKey, utterance.UtteranceKey, utterance.AudioFile)
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp("", "inclusion-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	localPath := filepath.Join(scratch, filepath.Base(objectKey))
	if err := s.store.Download(ctx, objectKey, localPath); err != nil {
		return nil, fmt.Errorf("%w: failed to download %s: %v", errs.ErrStorageFailed, objectKey, err)
	}

	values, err := s.embedder.EmbedFile(ctx, localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEmbeddingFailed, err)
	}

	embeddingID := NewEmbeddingID(speaker.Name)
	// created_at lets the reconciliation sweep skip vectors whose relational
	// update may still be in flight
	metadata := map[string]interface{}{
		"speaker_name": speaker.Name,
		"utterance_id": utterance.ID.String(),
		"source_type":  SourceTypeManualInclusion,
		"text":         utterance.Text,
		"created_at":   time.Now().UTC().Format(time.RFC3339),
	}

	upsert := func() error {
		return s.index.Upsert(ctx, embeddingID, values, metadata)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(upsert, policy); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrVectorIndexFailed, err)
	}

	if err := s.utteranceRepo.SetVectorInclusion(ctx, utterance.ID, true, &embeddingID); err != nil {
		// vector exists but the relational store does not know about it; the
		// reconciliation sweep removes these orphans
		if s.logger != nil {
			s.logger.Error("❌ Vector upserted but inclusion update failed, orphan vector left behind",
				zap.String("utterance_id", utterance.ID.String()),
				zap.String("embedding_id", embeddingID),
				zap.Error(err))
		}
		return nil, fmt.Errorf("failed to record inclusion: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("✅ Utterance added to vector index",
			zap.String("utterance_id", utterance.ID.String()),
			zap.String("embedding_id", embeddingID))
	}
	return &ToggleResult{
		UtteranceID: utterance.ID,
		Included:    true,
		EmbeddingID: &embeddingID,
		Changed:     true,
	}, nil
}

// NewEmbeddingID derives a vector id for an utterance voiceprint. The
// speaker name is embedded for debuggability; uniqueness comes from the
// random suffix.
func NewEmbeddingID(speakerName string) string {
	return fmt.Sprintf("utterance_%s_%s", sanitizeName(speakerName), uuid.NewString()[:8])
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// DeleteConversation runs the three-stage cascade: object-store keys, vector
// ids, then relational rows. The blob and vector stages are best-effort and
// counted; only a relational failure aborts. Completed stages are journaled
// so a rerun after a crash skips them.
func (s *service) DeleteConversation(ctx context.Context, conversationKey string) (*DeleteResult, error) {
	conv, err := s.conversationRepo.FindByKey(ctx, conversationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, errs.ErrConversationNotFound
	}

	sagaKey := "conversation_delete:" + conv.ID.String()
	completed, err := s.sagaRepo.CompletedSteps(ctx, sagaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load cascade journal: %w", err)
	}

	result := &DeleteResult{Status: StatusDeleted}

	// stage 1: object store
	if step, done := completed[entities.SagaStepObjects]; done {
		result.DeletedS3Objects = step.Deleted
		result.FailedS3Objects = step.Failed
	} else {
		deleted, failed := s.deleteObjects(ctx, conv.ConversationKey)
		result.DeletedS3Objects = deleted
		result.FailedS3Objects = failed
		if err := s.sagaRepo.MarkStep(ctx, sagaKey, entities.SagaStepObjects, deleted, failed); err != nil && s.logger != nil {
			s.logger.Warn("Failed to journal object-store stage", zap.Error(err))
		}
	}

	// stage 2: vector index
	if step, done := completed[entities.SagaStepVectors]; done {
		result.DeletedPineconeEmbeddings = step.Deleted
		result.FailedPineconeEmbeddings = step.Failed
	} else {
		deleted, failed := s.deleteVectors(ctx, conv.ID)
		result.DeletedPineconeEmbeddings = deleted
		result.FailedPineconeEmbeddings = failed
		if err := s.sagaRepo.MarkStep(ctx, sagaKey, entities.SagaStepVectors, deleted, failed); err != nil && s.logger != nil {
			s.logger.Warn("Failed to journal vector-index stage", zap.Error(err))
		}
	}

	// stage 3: relational rows, the authoritative record
	counts, err := s.conversationRepo.DeleteCascade(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete conversation rows: %w", err)
	}
	result.DeletedWordTimestamps = counts.WordTimestamps
	result.DeletedUtterances = counts.Utterances
	result.DeletedConversationSpeakers = counts.ConversationSpeakers
	result.DeletedDBRows = counts.WordTimestamps + counts.Utterances + counts.ConversationSpeakers + counts.Conversations

	if err := s.sagaRepo.MarkStep(ctx, sagaKey, entities.SagaStepRows, result.DeletedDBRows, 0); err != nil && s.logger != nil {
		s.logger.Warn("Failed to journal relational stage", zap.Error(err))
	}
	if err := s.sagaRepo.Finish(ctx, sagaKey); err != nil && s.logger != nil {
		// the journal is now orphaned; the reconciliation sweep purges it
		s.logger.Warn("Failed to clear cascade journal", zap.Error(err))
	}

	if result.FailedS3Objects > 0 || result.FailedPineconeEmbeddings > 0 {
		result.Status = StatusPartiallyDeleted
	}
	if s.logger != nil {
		s.logger.Info("✅ Conversation deleted",
			zap.String("conversation_key", conversationKey),
			zap.Int64("objects", result.DeletedS3Objects),
			zap.Int64("vectors", result.DeletedPineconeEmbeddings),
			zap.Int64("rows", result.DeletedDBRows))
	}
	return result, nil
}

func (s *service) deleteObjects(ctx context.Context, conversationKey string) (deleted, failed int64) {
	keys, err := s.store.ListKeys(ctx, entities.ObjectPrefix(conversationKey))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("❌ Failed to list conversation objects, leaving blobs behind",
				zap.String("conversation_key", conversationKey),
				zap.Error(err))
		}
		return 0, 0
	}
	removed, failedCount, err := s.store.RemoveKeys(ctx, keys)
	if err != nil && s.logger != nil {
		s.logger.Error("❌ Object deletion incomplete",
			zap.String("conversation_key", conversationKey),
			zap.Error(err))
	}
	return int64(removed), int64(failedCount)
}

func (s *service) deleteVectors(ctx context.Context, conversationID uuid.UUID) (deleted, failed int64) {
	ids, err := s.utteranceRepo.VectorIDsByConversation(ctx, conversationID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("❌ Failed to collect vector ids, leaving vectors behind", zap.Error(err))
		}
		return 0, 0
	}
	if len(ids) == 0 {
		return 0, 0
	}
	if err := s.index.Delete(ctx, ids); err != nil {
		if s.logger != nil {
			s.logger.Error("❌ Vector deletion failed, leaving vectors behind",
				zap.Int("count", len(ids)),
				zap.Error(err))
		}
		return 0, int64(len(ids))
	}
	return int64(len(ids)), 0
}

// List returns conversation summaries, newest first.
func (s *service) List(ctx context.Context) ([]entities.ConversationSummary, error) {
	return s.conversationRepo.List(ctx)
}

// Get returns one conversation with its utterances and distinct speakers.
func (s *service) Get(ctx context.Context, conversationKey string) (*Detail, error) {
	conv, err := s.conversationRepo.FindByKey(ctx, conversationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, errs.ErrConversationNotFound
	}

	utterances, err := s.utteranceRepo.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load utterances: %w", err)
	}

	seen := make(map[string]bool)
	speakers := make([]string, 0, 4)
	for _, u := range utterances {
		if u.SpeakerName != nil && !seen[*u.SpeakerName] {
			seen[*u.SpeakerName] = true
			speakers = append(speakers, *u.SpeakerName)
		}
	}

	return &Detail{Conversation: conv, Utterances: utterances, Speakers: speakers}, nil
}

// UpdateDisplayName sets the conversation's human-facing name.
func (s *service) UpdateDisplayName(ctx context.Context, conversationKey, displayName string) (*entities.Conversation, error) {
	conv, err := s.conversationRepo.FindByKey(ctx, conversationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, errs.ErrConversationNotFound
	}
	if err := s.conversationRepo.UpdateDisplayName(ctx, conv.ID, displayName); err != nil {
		return nil, fmt.Errorf("failed to update display name: %w", err)
	}
	conv.DisplayName = &displayName
	return conv, nil
}

// UpdateUtterance changes an utterance's speaker (by name, created on
// demand) and/or transcript text.
func (s *service) UpdateUtterance(ctx context.Context, utteranceID uuid.UUID, speakerName, text *string) (*entities.Utterance, error) {
	if speakerName == nil && text == nil {
		return nil, fmt.Errorf("%w: nothing to update", errs.ErrInvalidInput)
	}

	var speakerID *uuid.UUID
	if speakerName != nil {
		id, err := s.speakerRepo.GetOrCreate(ctx, *speakerName)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve speaker %q: %w", *speakerName, err)
		}
		speakerID = &id
	}

	updated, err := s.utteranceRepo.Update(ctx, utteranceID, speakerID, text)
	if err != nil {
		return nil, fmt.Errorf("failed to update utterance: %w", err)
	}
	if updated == nil {
		return nil, errs.ErrUtteranceNotFound
	}

	if speakerID != nil {
		if err := s.conversationRepo.LinkSpeaker(ctx, updated.ConversationID, *speakerID); err != nil && s.logger != nil {
			s.logger.Warn("Failed to link reassigned speaker", zap.Error(err))
		}
	}
	return updated, nil
}

// UtteranceAudioURL resolves the utterance's object key and presigns it.
// The key stored on the row is tried first; rows without one, or with a
// stale one, go through layout resolution.
func (s *service) UtteranceAudioURL(ctx context.Context, conversationKey, utteranceKey string) (string, error) {
	conv, err := s.conversationRepo.FindByKey(ctx, conversationKey)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return "", errs.ErrConversationNotFound
	}

	storedKey := ""
	utterance, err := s.utteranceRepo.FindByKey(ctx, conv.ID, utteranceKey)
	if err != nil {
		return "", fmt.Errorf("failed to load utterance: %w", err)
	}
	if utterance != nil {
		storedKey = utterance.AudioFile
	}

	objectKey, err := s.resolver.ResolveStored(ctx, conversationKey, utteranceKey, storedKey)
	if err != nil {
		return "", err
	}
	url, err := s.store.GetFileURL(ctx, objectKey, s.cfg.Storage.PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: failed to presign %s: %v", errs.ErrStorageFailed, objectKey, err)
	}
	return url, nil
}

// OriginalAudioURL presigns the conversation's source recording.
func (s *service) OriginalAudioURL(ctx context.Context, conversationKey string) (string, error) {
	conv, err := s.conversationRepo.FindByKey(ctx, conversationKey)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return "", errs.ErrConversationNotFound
	}

	objectKey := conv.OriginalAudio
	if objectKey == "" {
		objectKey = entities.OriginalAudioKey(conversationKey)
	}
	exists, err := s.store.Exists(ctx, objectKey)
	if err != nil {
		return "", fmt.Errorf("%w: existence check failed for %s: %v", errs.ErrStorageFailed, objectKey, err)
	}
	if !exists {
		return "", errs.ErrAudioNotFound
	}

	url, err := s.store.GetFileURL(ctx, objectKey, s.cfg.Storage.PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: failed to presign %s: %v", errs.ErrStorageFailed, objectKey, err)
	}
	return url, nil
}
