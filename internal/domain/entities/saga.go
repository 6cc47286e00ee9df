package entities

import (
	"time"

	"github.com/google/uuid"
)

// Cascade step names for the conversation delete saga.
const (
	SagaStepObjects = "objects"
	SagaStepVectors = "vectors"
	SagaStepRows    = "rows"
)

// SagaStep is one completed step of a multi-store cascade. The step log is
// persisted so a cascade interrupted mid-flight can be resumed without
// re-running already-completed stages.
type SagaStep struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SagaKey     string    `json:"saga_key" gorm:"type:varchar(255);not null;index:idx_saga_steps_key"`
	Step        string    `json:"step" gorm:"type:varchar(64);not null"`
	Deleted     int64     `json:"deleted"`
	Failed      int64     `json:"failed"`
	CompletedAt time.Time `json:"completed_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (SagaStep) TableName() string {
	return "saga_steps"
}
