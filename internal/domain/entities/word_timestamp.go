package entities

import (
	"time"

	"github.com/google/uuid"
)

// WordTimestamp is a single word with timing inside one utterance. Rows are
// written in the same unit of work as their parent utterance and never
// updated afterwards; they go away only when the cascade removes them.
type WordTimestamp struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UtteranceID uuid.UUID `json:"utterance_id" gorm:"type:uuid;not null;index"`
	Word        string    `json:"word" gorm:"type:text;not null"`
	StartMs     int64     `json:"start_ms" gorm:"not null"`
	EndMs       int64     `json:"end_ms" gorm:"not null"`
	Confidence  float64   `json:"confidence" gorm:"default:0.0"`
	Speaker     *string   `json:"speaker,omitempty" gorm:"type:varchar(64)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (WordTimestamp) TableName() string {
	return "word_timestamps"
}
