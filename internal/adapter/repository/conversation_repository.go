package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
	repo "github.com/speakerid-team/speaker-id/internal/domain/repositories"
)

// ConversationRepository handles conversation data operations
type ConversationRepository struct {
	db   *gorm.DB
	caps *Capabilities
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB, caps *Capabilities) *ConversationRepository {
	return &ConversationRepository{db: db, caps: caps}
}

// Create inserts a conversation row, including only columns the live schema has
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if conversation.ID == uuid.Nil {
		conversation.ID = uuid.New()
	}

	values := map[string]interface{}{
		"id":               conversation.ID,
		"conversation_key": conversation.ConversationKey,
		"original_audio":   conversation.OriginalAudio,
		"duration_seconds": conversation.DurationSeconds,
		"date_processed":   conversation.DateProcessed,
		"created_at":       conversation.CreatedAt,
	}
	if len(conversation.Metadata) > 0 {
		values["metadata"] = conversation.Metadata
	}
	if r.caps.Has(ctx, "conversations", "display_name") && conversation.DisplayName != nil {
		values["display_name"] = *conversation.DisplayName
	}
	if r.caps.Has(ctx, "conversations", "idempotency_key") && conversation.IdempotencyKey != nil {
		values["idempotency_key"] = *conversation.IdempotencyKey
	}
	if conversation.CreatedAt.IsZero() {
		delete(values, "created_at")
	}

	return r.db.WithContext(ctx).Table("conversations").Create(values).Error
}

// FindByID retrieves a conversation by ID
func (r *ConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Conversation, error) {
	var conversation entities.Conversation
	if err := r.selectColumns(ctx).Where("id = ?", id).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

// FindByKey retrieves a conversation by its external key
func (r *ConversationRepository) FindByKey(ctx context.Context, conversationKey string) (*entities.Conversation, error) {
	var conversation entities.Conversation
	if err := r.selectColumns(ctx).Where("conversation_key = ?", conversationKey).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

// FindByIdempotencyKey retrieves a conversation by ingest idempotency token
func (r *ConversationRepository) FindByIdempotencyKey(ctx context.Context, idempotencyKey string) (*entities.Conversation, error) {
	if !r.caps.Has(ctx, "conversations", "idempotency_key") {
		return nil, nil
	}
	var conversation entities.Conversation
	if err := r.selectColumns(ctx).Where("idempotency_key = ?", idempotencyKey).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

// List returns every conversation with speaker and utterance counts, newest first
func (r *ConversationRepository) List(ctx context.Context) ([]entities.ConversationSummary, error) {
	nameColumn := "NULL"
	if r.caps.Has(ctx, "conversations", "display_name") {
		nameColumn = "c.display_name"
	}

	var rows []struct {
		ID              uuid.UUID
		ConversationKey string
		DisplayName     *string
		DurationSeconds float64
		DateProcessed   time.Time
		SpeakerCount    int64
		UtteranceCount  int64
		SpeakerNames    *string
	}
	err := r.db.WithContext(ctx).
		Raw(`SELECT c.id,
		            c.conversation_key,
		            `+nameColumn+` AS display_name,
		            c.duration_seconds,
		            c.date_processed,
		            COUNT(DISTINCT u.speaker_id) AS speaker_count,
		            COUNT(u.id) AS utterance_count,
		            STRING_AGG(DISTINCT s.name, ',') AS speaker_names
		     FROM conversations c
		     LEFT JOIN utterances u ON u.conversation_id = c.id
		     LEFT JOIN speakers s ON s.id = u.speaker_id
		     GROUP BY c.id, c.conversation_key, c.duration_seconds, c.date_processed`+r.nameGroupBy(ctx)+`
		     ORDER BY c.date_processed DESC`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]entities.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		summary := entities.ConversationSummary{
			ID:              row.ID,
			ConversationKey: row.ConversationKey,
			DisplayName:     row.DisplayName,
			DurationSeconds: row.DurationSeconds,
			DateProcessed:   row.DateProcessed,
			SpeakerCount:    row.SpeakerCount,
			UtteranceCount:  row.UtteranceCount,
			Speakers:        []string{},
		}
		if row.SpeakerNames != nil && *row.SpeakerNames != "" {
			summary.Speakers = strings.Split(*row.SpeakerNames, ",")
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (r *ConversationRepository) nameGroupBy(ctx context.Context) string {
	if r.caps.Has(ctx, "conversations", "display_name") {
		return ", c.display_name"
	}
	return ""
}

// UpdateDisplayName sets the conversation's human-facing name
func (r *ConversationRepository) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	if !r.caps.Has(ctx, "conversations", "display_name") {
		return errors.New("schema does not have conversations.display_name")
	}
	return r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ?", id).
		Update("display_name", displayName).Error
}

// LinkSpeaker recreates the derived junction row; duplicates are ignored
func (r *ConversationRepository) LinkSpeaker(ctx context.Context, conversationID, speakerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO conversations_speakers (conversation_id, speaker_id)
		      VALUES (?, ?)
		      ON CONFLICT DO NOTHING`, conversationID, speakerID).Error
}

// DeleteCascade removes word timestamps, utterances, junction rows and the
// conversation row in one transaction, counting each table's deletions
func (r *ConversationRepository) DeleteCascade(ctx context.Context, id uuid.UUID) (repo.CascadeCounts, error) {
	var counts repo.CascadeCounts
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(`DELETE FROM word_timestamps
		                   WHERE utterance_id IN (SELECT id FROM utterances WHERE conversation_id = ?)`, id)
		if result.Error != nil {
			return result.Error
		}
		counts.WordTimestamps = result.RowsAffected

		result = tx.Where("conversation_id = ?", id).Delete(&entities.Utterance{})
		if result.Error != nil {
			return result.Error
		}
		counts.Utterances = result.RowsAffected

		result = tx.Where("conversation_id = ?", id).Delete(&entities.ConversationSpeaker{})
		if result.Error != nil {
			return result.Error
		}
		counts.ConversationSpeakers = result.RowsAffected

		result = tx.Where("id = ?", id).Delete(&entities.Conversation{})
		if result.Error != nil {
			return result.Error
		}
		counts.Conversations = result.RowsAffected
		return nil
	})
	if err != nil {
		return repo.CascadeCounts{}, err
	}
	return counts, nil
}

// selectColumns restricts SELECTs to columns the live schema has
func (r *ConversationRepository) selectColumns(ctx context.Context) *gorm.DB {
	cols := []string{"id", "conversation_key", "original_audio", "duration_seconds", "date_processed", "metadata", "created_at"}
	if r.caps.Has(ctx, "conversations", "display_name") {
		cols = append(cols, "display_name")
	}
	if r.caps.Has(ctx, "conversations", "idempotency_key") {
		cols = append(cols, "idempotency_key")
	}
	return r.db.WithContext(ctx).Select(cols)
}
