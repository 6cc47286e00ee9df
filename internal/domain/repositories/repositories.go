package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
)

// SpeakerRepository handles speaker rows and their rollups.
type SpeakerRepository interface {
	// GetOrCreate resolves a speaker id by name, inserting on miss. Safe
	// under concurrent calls for the same new name.
	GetOrCreate(ctx context.Context, name string) (uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Speaker, error)
	FindByName(ctx context.Context, name string) (*entities.Speaker, error)
	List(ctx context.Context) ([]entities.SpeakerRollup, error)
	Details(ctx context.Context, id uuid.UUID) (*entities.SpeakerDetails, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	// ReassignUtterances moves every utterance of one speaker to another and
	// returns the number of rows updated.
	ReassignUtterances(ctx context.Context, from, to uuid.UUID) (int64, error)
	CountUtterances(ctx context.Context, id uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetPineconeLink(ctx context.Context, id uuid.UUID, pineconeSpeakerName *string) error
}

// CascadeCounts reports per-table row counts of a relational cascade.
type CascadeCounts struct {
	WordTimestamps       int64
	Utterances           int64
	ConversationSpeakers int64
	Conversations        int64
}

// ConversationRepository handles conversation rows and listing joins.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Conversation, error)
	FindByKey(ctx context.Context, conversationKey string) (*entities.Conversation, error)
	FindByIdempotencyKey(ctx context.Context, idempotencyKey string) (*entities.Conversation, error)
	List(ctx context.Context) ([]entities.ConversationSummary, error)
	UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error
	// LinkSpeaker recreates the derived junction row; conflicts are ignored.
	LinkSpeaker(ctx context.Context, conversationID, speakerID uuid.UUID) error
	// DeleteCascade removes word timestamps, utterances, junction rows and
	// the conversation row in one transaction.
	DeleteCascade(ctx context.Context, id uuid.UUID) (CascadeCounts, error)
}

// UtteranceRepository handles utterance rows and their word timestamps.
type UtteranceRepository interface {
	// CreateWithWords writes the utterance row and its word timestamps in one
	// transaction, including only columns the live schema has.
	CreateWithWords(ctx context.Context, utterance *entities.Utterance, words []entities.WordTimestamp) (uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Utterance, error)
	FindByKey(ctx context.Context, conversationID uuid.UUID, utteranceKey string) (*entities.Utterance, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]entities.UtteranceWithSpeaker, error)
	Update(ctx context.Context, id uuid.UUID, speakerID *uuid.UUID, text *string) (*entities.Utterance, error)
	SetVectorInclusion(ctx context.Context, id uuid.UUID, included bool, embeddingID *string) error
	VectorIDsByConversation(ctx context.Context, conversationID uuid.UUID) ([]string, error)
	AllVectorIDs(ctx context.Context) ([]string, error)
}

// SagaRepository persists cascade step completions.
type SagaRepository interface {
	CompletedSteps(ctx context.Context, sagaKey string) (map[string]entities.SagaStep, error)
	MarkStep(ctx context.Context, sagaKey, step string, deleted, failed int64) error
	Finish(ctx context.Context, sagaKey string) error
	// PurgeOrphaned drops journals whose conversation row no longer exists.
	PurgeOrphaned(ctx context.Context) (int64, error)
}
