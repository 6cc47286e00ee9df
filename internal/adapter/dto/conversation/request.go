package conversation

import uc "github.com/speakerid-team/speaker-id/internal/usecase/conversation"

// IngestRequest is the JSON body for POST /conversations.
type IngestRequest struct {
	ConversationKey string                 `json:"conversation_id" validate:"required,objectkeysafe"`
	DisplayName     *string                `json:"display_name,omitempty"`
	IdempotencyKey  *string                `json:"idempotency_key,omitempty"`
	DurationSeconds float64                `json:"duration_seconds"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Utterances      []uc.UtteranceInput    `json:"utterances" validate:"required,min=1"`
}

// UpdateDisplayNameRequest renames a conversation.
type UpdateDisplayNameRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
}

// UpdateUtteranceRequest changes an utterance's speaker and/or text.
type UpdateUtteranceRequest struct {
	SpeakerName *string `json:"speaker_name,omitempty"`
	Text        *string `json:"text,omitempty"`
}

// ToggleInclusionRequest sets the desired vector-inclusion state.
type ToggleInclusionRequest struct {
	Included bool `json:"included_in_pinecone"`
}
