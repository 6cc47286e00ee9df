package speaker

// RenameRequest changes a speaker's unique name.
type RenameRequest struct {
	Name string `json:"name" validate:"required"`
}

// ReassignRequest moves every utterance of one speaker to another.
type ReassignRequest struct {
	ToSpeakerID  string `json:"to_speaker_id" validate:"required,uuid"`
	DeleteSource bool   `json:"delete_source"`
}

// LinkRequest sets or clears the speaker's vector-index label.
type LinkRequest struct {
	PineconeSpeakerName *string `json:"pinecone_speaker_name"`
}
