package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Utterance is one speaker turn within a conversation. The time range in
// milliseconds is immutable; the derived clock strings and the transcript
// text are not. IncludedInPinecone is true iff UtteranceEmbeddingID is
// non-nil and a matching entry is expected in the vector index.
type Utterance struct {
	ID                   uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UtteranceKey         string    `json:"utterance_id" gorm:"column:utterance_key;type:varchar(64)"`
	ConversationID       uuid.UUID `json:"conversation_id" gorm:"type:uuid;not null;index"`
	SpeakerID            uuid.UUID `json:"speaker_id" gorm:"type:uuid;not null;index"`
	StartTime            string    `json:"start_time" gorm:"type:varchar(16)"`
	EndTime              string    `json:"end_time" gorm:"type:varchar(16)"`
	StartMs              int64     `json:"start_ms" gorm:"not null"`
	EndMs                int64     `json:"end_ms" gorm:"not null"`
	Text                 string    `json:"text" gorm:"type:text"`
	Confidence           float64   `json:"confidence" gorm:"default:0.0"`
	AudioFile            string    `json:"audio_file" gorm:"type:text"`
	IncludedInPinecone   bool      `json:"included_in_pinecone" gorm:"default:false"`
	UtteranceEmbeddingID *string   `json:"utterance_embedding_id,omitempty" gorm:"type:varchar(255)"`
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Utterance) TableName() string {
	return "utterances"
}

// DurationMs returns the utterance length in milliseconds.
func (u *Utterance) DurationMs() int64 {
	return u.EndMs - u.StartMs
}

// UtteranceWithSpeaker is an utterance joined with its speaker's name.
type UtteranceWithSpeaker struct {
	Utterance
	SpeakerName *string `json:"speaker_name"`
}

// FormatClock renders milliseconds as HH:MM:SS, flooring sub-second remainder.
func FormatClock(ms int64) string {
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes%60, seconds%60)
}
