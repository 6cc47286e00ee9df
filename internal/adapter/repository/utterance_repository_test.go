package repository

import (
	"testing"

	"github.com/google/uuid"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
)

func TestUtteranceColumns_OmitsAbsentSchemaColumns(t *testing.T) {
	embeddingID := "utterance_Alice_12345678"
	utterance := &entities.Utterance{
		ID:                   uuid.New(),
		UtteranceKey:         "utterance_000",
		ConversationID:       uuid.New(),
		SpeakerID:            uuid.New(),
		StartMs:              0,
		EndMs:                2000,
		Text:                 "hello",
		IncludedInPinecone:   true,
		UtteranceEmbeddingID: &embeddingID,
	}

	values := utteranceColumns(utterance, false, false)
	if _, ok := values["included_in_pinecone"]; ok {
		t.Fatal("included_in_pinecone present despite absent column")
	}
	if _, ok := values["utterance_embedding_id"]; ok {
		t.Fatal("utterance_embedding_id present despite absent column")
	}
	// base columns always written
	for _, col := range []string{"id", "utterance_key", "conversation_id", "speaker_id", "start_ms", "end_ms", "text"} {
		if _, ok := values[col]; !ok {
			t.Fatalf("base column %s missing", col)
		}
	}
}

func TestUtteranceColumns_IncludesTrackedColumnsWhenPresent(t *testing.T) {
	embeddingID := "utterance_Bob_deadbeef"
	utterance := &entities.Utterance{
		ID:                   uuid.New(),
		IncludedInPinecone:   true,
		UtteranceEmbeddingID: &embeddingID,
	}

	values := utteranceColumns(utterance, true, true)
	if values["included_in_pinecone"] != true {
		t.Fatalf("inclusion flag not written: %v", values["included_in_pinecone"])
	}
	if values["utterance_embedding_id"] != embeddingID {
		t.Fatalf("embedding id not written: %v", values["utterance_embedding_id"])
	}
}

func TestUtteranceColumns_NilEmbeddingIDNeverWritten(t *testing.T) {
	utterance := &entities.Utterance{ID: uuid.New()}

	values := utteranceColumns(utterance, true, true)
	if _, ok := values["utterance_embedding_id"]; ok {
		t.Fatal("nil embedding id must not produce a column value")
	}
}
