package errors

import "errors"

// Common errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrConflict      = errors.New("resource conflict")
)

// Conversation errors
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrAudioNotFound        = errors.New("audio file not found")
	ErrUtteranceNotFound    = errors.New("utterance not found")
)

// Speaker errors
var (
	ErrSpeakerNotFound      = errors.New("speaker not found")
	ErrSpeakerHasUtterances = errors.New("speaker still has utterances")
	ErrSpeakerNotLinked     = errors.New("speaker has no vector index link")
)

// Vector index errors
var (
	ErrEmbeddingNotFound    = errors.New("embedding not found in vector index")
	ErrIndexSpeakerExists   = errors.New("speaker already exists in vector index")
	ErrIndexSpeakerNotFound = errors.New("speaker not found in vector index")
)

// Upstream errors
var (
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrEmbeddingFailed     = errors.New("embedding extraction failed")
	ErrConversionFailed    = errors.New("audio conversion failed")
	ErrStorageFailed       = errors.New("object storage operation failed")
	ErrVectorIndexFailed   = errors.New("vector index operation failed")
)
