package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Conversation is a recorded session. The row's UUID is the database
// identity; ConversationKey is the external reference string used in
// object-store key layouts.
type Conversation struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ConversationKey string         `json:"conversation_id" gorm:"column:conversation_key;type:varchar(255);not null;index"`
	IdempotencyKey  *string        `json:"-" gorm:"type:varchar(255);uniqueIndex"`
	OriginalAudio   string         `json:"original_audio" gorm:"type:text"`
	DisplayName     *string        `json:"display_name,omitempty" gorm:"type:text"`
	DurationSeconds float64        `json:"duration_seconds"`
	DateProcessed   time.Time      `json:"date_processed"`
	Metadata        datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;default:'{}'"`
	CreatedAt       time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Conversation) TableName() string {
	return "conversations"
}

// NewConversation creates a conversation row with the canonical
// original-audio object key.
func NewConversation(conversationKey string, displayName, idempotencyKey *string, durationSeconds float64) *Conversation {
	return &Conversation{
		ID:              uuid.New(),
		ConversationKey: conversationKey,
		IdempotencyKey:  idempotencyKey,
		OriginalAudio:   OriginalAudioKey(conversationKey),
		DisplayName:     displayName,
		DurationSeconds: durationSeconds,
		DateProcessed:   time.Now().UTC(),
	}
}

// ConversationSummary is the listing row with derived counts.
type ConversationSummary struct {
	ID              uuid.UUID `json:"id"`
	ConversationKey string    `json:"conversation_id"`
	DisplayName     *string   `json:"display_name"`
	DurationSeconds float64   `json:"duration"`
	DateProcessed   time.Time `json:"created_at"`
	SpeakerCount    int64     `json:"speaker_count"`
	UtteranceCount  int64     `json:"utterance_count"`
	Speakers        []string  `json:"speakers"`
}

// ConversationSpeaker is the derived junction row. Membership is
// authoritative via utterances; this table is a convenience association
// recreated opportunistically.
type ConversationSpeaker struct {
	ConversationID uuid.UUID `json:"conversation_id" gorm:"type:uuid;primaryKey"`
	SpeakerID      uuid.UUID `json:"speaker_id" gorm:"type:uuid;primaryKey"`
}

// TableName specifies the table name for GORM
func (ConversationSpeaker) TableName() string {
	return "conversations_speakers"
}

// ObjectPrefix is the object-store prefix owning all of a conversation's blobs.
func ObjectPrefix(conversationKey string) string {
	return fmt.Sprintf("conversations/%s/", conversationKey)
}

// OriginalAudioKey is the canonical object key for the source recording.
func OriginalAudioKey(conversationKey string) string {
	return fmt.Sprintf("conversations/%s/original_audio.wav", conversationKey)
}

// UtteranceAudioKey is the canonical object key for one utterance clip.
func UtteranceAudioKey(conversationKey string, index int) string {
	return fmt.Sprintf("conversations/%s/utterances/utterance_%03d.wav", conversationKey, index)
}
