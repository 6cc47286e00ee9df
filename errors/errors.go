package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies an application error category.
type ErrorCode int

const (
	ErrorCode_INTERNAL ErrorCode = iota + 1
	ErrorCode_INVALID_ARGUMENT
	ErrorCode_NOT_FOUND
	ErrorCode_CONFLICT
	ErrorCode_UPSTREAM_FAILURE
	ErrorCode_PARTIAL_FAILURE
	ErrorCode_HTTP_OK
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCode_INTERNAL:         "INTERNAL",
	ErrorCode_INVALID_ARGUMENT: "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:        "NOT_FOUND",
	ErrorCode_CONFLICT:         "CONFLICT",
	ErrorCode_UPSTREAM_FAILURE: "UPSTREAM_FAILURE",
	ErrorCode_PARTIAL_FAILURE:  "PARTIAL_FAILURE",
	ErrorCode_HTTP_OK:          "OK",
}

// String returns the symbolic name for the code.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_CODE_%d", int(c))
}

// AppError là custom error type cho application
type AppError struct {
	Raw       error
	HTTPCode  int
	Code      ErrorCode
	Message   string
	Details   map[string]string
	Timestamp time.Time
}

// Error implements error interface
func (e AppError) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code.String(), e.Message, e.Raw)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap exposes the wrapped error for errors.Is/As chains.
func (e AppError) Unwrap() error {
	return e.Raw
}

// WithDetail adds a detail to the error
func (e AppError) WithDetail(key, value string) AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// General Errors

func ErrInternal(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTERNAL,
		Message:  "Internal server error",
	}
}

func ErrInvalidArgument(message string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_ARGUMENT,
		Message:  message,
	}
}

func ErrNotFound(resource string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  fmt.Sprintf("%s not found", resource),
	}
}

func ErrAlreadyExists(resource string) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_CONFLICT,
		Message:  fmt.Sprintf("%s already exists", resource),
	}
}

// Speaker Errors

func ErrSpeakerNotFound(speakerID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  "Speaker not found",
	}.WithDetail("speaker_id", speakerID)
}

func ErrSpeakerHasUtterances(name string, count int64) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_CONFLICT,
		Message:  fmt.Sprintf("Cannot delete speaker %q: %d utterances still assigned", name, count),
	}.WithDetail("utterance_count", fmt.Sprintf("%d", count))
}

func ErrSpeakerNotLinked(speakerID string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_ARGUMENT,
		Message:  "Speaker is not linked to any index speaker",
	}.WithDetail("speaker_id", speakerID)
}

// Conversation Errors

func ErrConversationNotFound(conversationID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  "Conversation not found",
	}.WithDetail("conversation_id", conversationID)
}

func ErrUtteranceNotFound(utteranceID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  "Utterance not found",
	}.WithDetail("utterance_id", utteranceID)
}

func ErrAudioNotFound(conversationKey string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  "Audio object not found in storage",
	}.WithDetail("conversation_key", conversationKey)
}

// Vector Index Errors

func ErrEmbeddingNotFound(embeddingID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  "Embedding not found in index",
	}.WithDetail("embedding_id", embeddingID)
}

func ErrIndexSpeakerExists(name string) AppError {
	return AppError{
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_CONFLICT,
		Message:  fmt.Sprintf("Index speaker %q already exists", name),
	}
}

func ErrIndexSpeakerNotFound(name string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  fmt.Sprintf("Index speaker %q does not exist", name),
	}
}

// Upstream Errors

func ErrStorageFailed(operation string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadGateway,
		Code:     ErrorCode_UPSTREAM_FAILURE,
		Message:  fmt.Sprintf("Storage operation failed: %s", operation),
	}
}

func ErrVectorIndexFailed(operation string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadGateway,
		Code:     ErrorCode_UPSTREAM_FAILURE,
		Message:  fmt.Sprintf("Vector index operation failed: %s", operation),
	}
}

func ErrEmbeddingFailed(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadGateway,
		Code:     ErrorCode_UPSTREAM_FAILURE,
		Message:  "Embedding generation failed",
	}
}

func ErrTranscriptionFailed(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadGateway,
		Code:     ErrorCode_UPSTREAM_FAILURE,
		Message:  "Audio transcription failed",
	}
}

func ErrConversionFailed(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_UPSTREAM_FAILURE,
		Message:  "Audio conversion failed",
	}
}

// Partial Failure

// ErrPartialFailure marks a composite mutation that finished with some
// sub-store deletions failing. Callers report it with counts, not as a
// hard failure.
func ErrPartialFailure(operation string, failed int) AppError {
	return AppError{
		HTTPCode: http.StatusOK,
		Code:     ErrorCode_PARTIAL_FAILURE,
		Message:  fmt.Sprintf("%s completed with %d sub-store failures", operation, failed),
	}.WithDetail("failed_count", fmt.Sprintf("%d", failed))
}
