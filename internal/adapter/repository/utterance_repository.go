package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
)

// UtteranceRepository handles utterance and word-timestamp data operations
type UtteranceRepository struct {
	db   *gorm.DB
	caps *Capabilities
}

// NewUtteranceRepository creates a new utterance repository
func NewUtteranceRepository(db *gorm.DB, caps *Capabilities) *UtteranceRepository {
	return &UtteranceRepository{db: db, caps: caps}
}

// utteranceColumns builds the INSERT column map for one utterance, gated on
// which optional columns exist. hasInclusion and hasEmbeddingID come from
// the schema descriptor; split out so the mapping is testable without a
// database.
func utteranceColumns(u *entities.Utterance, hasInclusion, hasEmbeddingID bool) map[string]interface{} {
	values := map[string]interface{}{
		"id":              u.ID,
		"utterance_key":   u.UtteranceKey,
		"conversation_id": u.ConversationID,
		"speaker_id":      u.SpeakerID,
		"start_time":      u.StartTime,
		"end_time":        u.EndTime,
		"start_ms":        u.StartMs,
		"end_ms":          u.EndMs,
		"text":            u.Text,
		"confidence":      u.Confidence,
		"audio_file":      u.AudioFile,
	}
	if hasInclusion {
		values["included_in_pinecone"] = u.IncludedInPinecone
	}
	if hasEmbeddingID && u.UtteranceEmbeddingID != nil {
		values["utterance_embedding_id"] = *u.UtteranceEmbeddingID
	}
	return values
}

// CreateWithWords writes the utterance row and its word timestamps in one
// transaction and returns the new utterance id
func (r *UtteranceRepository) CreateWithWords(ctx context.Context, utterance *entities.Utterance, words []entities.WordTimestamp) (uuid.UUID, error) {
	if utterance == nil {
		return uuid.Nil, errors.New("utterance cannot be nil")
	}
	if utterance.ID == uuid.Nil {
		utterance.ID = uuid.New()
	}

	hasInclusion := r.caps.Has(ctx, "utterances", "included_in_pinecone")
	hasEmbeddingID := r.caps.Has(ctx, "utterances", "utterance_embedding_id")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		values := utteranceColumns(utterance, hasInclusion, hasEmbeddingID)
		if err := tx.Table("utterances").Create(values).Error; err != nil {
			return err
		}

		for i := range words {
			if words[i].ID == uuid.Nil {
				words[i].ID = uuid.New()
			}
			words[i].UtteranceID = utterance.ID
		}
		if len(words) > 0 {
			if err := tx.CreateInBatches(words, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return utterance.ID, nil
}

// FindByID retrieves an utterance by ID
func (r *UtteranceRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Utterance, error) {
	var utterance entities.Utterance
	if err := r.selectColumns(ctx).Where("id = ?", id).First(&utterance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &utterance, nil
}

// FindByKey looks up one utterance by its key within a conversation
func (r *UtteranceRepository) FindByKey(ctx context.Context, conversationID uuid.UUID, utteranceKey string) (*entities.Utterance, error) {
	var utterance entities.Utterance
	err := r.selectColumns(ctx).
		Where("conversation_id = ? AND utterance_key = ?", conversationID, utteranceKey).
		First(&utterance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &utterance, nil
}

// ListByConversation returns a conversation's utterances with speaker names,
// ordered by start time
func (r *UtteranceRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]entities.UtteranceWithSpeaker, error) {
	inclusionColumn := "FALSE"
	if r.caps.Has(ctx, "utterances", "included_in_pinecone") {
		inclusionColumn = "u.included_in_pinecone"
	}
	embeddingColumn := "NULL"
	if r.caps.Has(ctx, "utterances", "utterance_embedding_id") {
		embeddingColumn = "u.utterance_embedding_id"
	}

	var rows []struct {
		ID                   uuid.UUID
		UtteranceKey         string
		ConversationID       uuid.UUID
		SpeakerID            uuid.UUID
		StartTime            string
		EndTime              string
		StartMs              int64
		EndMs                int64
		Text                 string
		Confidence           float64
		AudioFile            string
		IncludedInPinecone   bool
		UtteranceEmbeddingID *string
		CreatedAt            time.Time
		SpeakerName          *string
	}
	err := r.db.WithContext(ctx).
		Raw(`SELECT u.id,
		            u.utterance_key,
		            u.conversation_id,
		            u.speaker_id,
		            u.start_time,
		            u.end_time,
		            u.start_ms,
		            u.end_ms,
		            u.text,
		            u.confidence,
		            u.audio_file,
		            `+inclusionColumn+` AS included_in_pinecone,
		            `+embeddingColumn+` AS utterance_embedding_id,
		            u.created_at,
		            s.name AS speaker_name
		     FROM utterances u
		     LEFT JOIN speakers s ON s.id = u.speaker_id
		     WHERE u.conversation_id = ?
		     ORDER BY u.start_ms ASC, u.utterance_key ASC`, conversationID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	utterances := make([]entities.UtteranceWithSpeaker, 0, len(rows))
	for _, row := range rows {
		utterances = append(utterances, entities.UtteranceWithSpeaker{
			Utterance: entities.Utterance{
				ID:                   row.ID,
				UtteranceKey:         row.UtteranceKey,
				ConversationID:       row.ConversationID,
				SpeakerID:            row.SpeakerID,
				StartTime:            row.StartTime,
				EndTime:              row.EndTime,
				StartMs:              row.StartMs,
				EndMs:                row.EndMs,
				Text:                 row.Text,
				Confidence:           row.Confidence,
				AudioFile:            row.AudioFile,
				IncludedInPinecone:   row.IncludedInPinecone,
				UtteranceEmbeddingID: row.UtteranceEmbeddingID,
				CreatedAt:            row.CreatedAt,
			},
			SpeakerName: row.SpeakerName,
		})
	}
	return utterances, nil
}

// Update changes an utterance's speaker and/or text and returns the fresh row
func (r *UtteranceRepository) Update(ctx context.Context, id uuid.UUID, speakerID *uuid.UUID, text *string) (*entities.Utterance, error) {
	updates := map[string]interface{}{}
	if speakerID != nil {
		updates["speaker_id"] = *speakerID
	}
	if text != nil {
		updates["text"] = *text
	}
	if len(updates) > 0 {
		result := r.db.WithContext(ctx).
			Model(&entities.Utterance{}).
			Where("id = ?", id).
			Updates(updates)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, nil
		}
	}
	return r.FindByID(ctx, id)
}

// SetVectorInclusion records whether the utterance's embedding lives in the
// vector index, and under which id
func (r *UtteranceRepository) SetVectorInclusion(ctx context.Context, id uuid.UUID, included bool, embeddingID *string) error {
	updates := map[string]interface{}{}
	if r.caps.Has(ctx, "utterances", "included_in_pinecone") {
		updates["included_in_pinecone"] = included
	}
	if r.caps.Has(ctx, "utterances", "utterance_embedding_id") {
		updates["utterance_embedding_id"] = embeddingID
	}
	if len(updates) == 0 {
		return errors.New("schema does not have vector inclusion columns")
	}
	return r.db.WithContext(ctx).
		Model(&entities.Utterance{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// VectorIDsByConversation returns the non-null embedding ids of one
// conversation's utterances
func (r *UtteranceRepository) VectorIDsByConversation(ctx context.Context, conversationID uuid.UUID) ([]string, error) {
	if !r.caps.Has(ctx, "utterances", "utterance_embedding_id") {
		return nil, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entities.Utterance{}).
		Where("conversation_id = ? AND utterance_embedding_id IS NOT NULL", conversationID).
		Pluck("utterance_embedding_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AllVectorIDs returns every tracked embedding id across all conversations
func (r *UtteranceRepository) AllVectorIDs(ctx context.Context) ([]string, error) {
	if !r.caps.Has(ctx, "utterances", "utterance_embedding_id") {
		return nil, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entities.Utterance{}).
		Where("utterance_embedding_id IS NOT NULL").
		Pluck("utterance_embedding_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// selectColumns restricts SELECTs to columns the live schema has
func (r *UtteranceRepository) selectColumns(ctx context.Context) *gorm.DB {
	cols := []string{
		"id", "utterance_key", "conversation_id", "speaker_id",
		"start_time", "end_time", "start_ms", "end_ms",
		"text", "confidence", "audio_file", "created_at",
	}
	if r.caps.Has(ctx, "utterances", "included_in_pinecone") {
		cols = append(cols, "included_in_pinecone")
	}
	if r.caps.Has(ctx, "utterances", "utterance_embedding_id") {
		cols = append(cols, "utterance_embedding_id")
	}
	return r.db.WithContext(ctx).Select(cols)
}
