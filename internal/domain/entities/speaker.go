package entities

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSpeakerName is assigned when a segment arrives without a speaker.
const DefaultSpeakerName = "Unknown_Speaker"

// Speaker represents a known voice. Names are unique; the optional
// PineconeSpeakerName links the row to a speaker label in the vector index.
type Speaker struct {
	ID                  uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name                string    `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Description         *string   `json:"description,omitempty" gorm:"type:text"`
	PineconeSpeakerName *string   `json:"pinecone_speaker_name,omitempty" gorm:"type:varchar(255)"`
	CreatedAt           time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Speaker) TableName() string {
	return "speakers"
}

// SpeakerRollup is the aggregated listing row for a speaker.
type SpeakerRollup struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	PineconeSpeakerName *string   `json:"pinecone_speaker_name"`
	UtteranceCount      int64     `json:"utterance_count"`
	TotalDurationMs     int64     `json:"total_duration"`
}

// SpeakerDetails extends the rollup with averages and recent activity.
type SpeakerDetails struct {
	ID               uuid.UUID         `json:"id"`
	Name             string            `json:"name"`
	UtteranceCount   int64             `json:"utterance_count"`
	TotalDurationMs  int64             `json:"total_duration"`
	AvgDurationMs    int64             `json:"avg_duration"`
	RecentUtterances []RecentUtterance `json:"recent_utterances"`
}

// RecentUtterance is one entry in a speaker's recent-activity list.
type RecentUtterance struct {
	Text             string  `json:"text"`
	StartMs          int64   `json:"start_time"`
	EndMs            int64   `json:"end_time"`
	ConversationName *string `json:"conversation_name"`
	ConversationKey  string  `json:"conversation_id"`
}
