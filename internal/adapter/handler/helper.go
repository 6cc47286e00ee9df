package handler

import (
	stdErrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/speakerid-team/speaker-id/errors"
	usecaseErrors "github.com/speakerid-team/speaker-id/internal/usecase/errors"
)

// Response shapes
type success struct {
	Code    interface{} `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type errs struct {
	Code    interface{} `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Info    string      `json:"info,omitempty"`
}

// getRequestID tries to read X-Request-ID from the request
func getRequestID(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().Header.Get("X-Request-ID")
}

// handleSuccess writes a standardized success response
func handleSuccess(c echo.Context, logger *zap.Logger, data interface{}) error {
	resp := success{
		Code:    int(errors.ErrorCode_HTTP_OK),
		Message: "success",
		Data:    data,
	}

	if logger != nil {
		logger.Info("http.response.success",
			zap.String("request_id", getRequestID(c)),
			zap.String("path", c.Path()),
		)
	}

	return c.JSON(http.StatusOK, resp)
}

// handleError centralizes error handling and logging
func handleError(c echo.Context, logger *zap.Logger, err error) error {
	reqID := getRequestID(c)

	appErr, ok := toAppError(err)
	if !ok {
		appErr = errors.ErrInternal(err)
	}

	if logger != nil {
		logger.Error("http.response.error",
			zap.String("request_id", reqID),
			zap.String("path", c.Path()),
			zap.Any("app_code", appErr.Code),
			zap.Error(err),
		)
	}

	info := ""
	if appErr.Raw != nil {
		info = appErr.Raw.Error()
	}

	body := errs{
		Code:    appErr.Code,
		Message: appErr.Message,
		Info:    info,
	}
	return c.JSON(appErr.HTTPCode, body)
}

// toAppError maps service-layer sentinel errors onto the transport error
// taxonomy. Errors already shaped as AppError pass through unchanged.
func toAppError(err error) (errors.AppError, bool) {
	var appErr errors.AppError
	if stdErrors.As(err, &appErr) {
		return appErr, true
	}

	switch {
	case stdErrors.Is(err, usecaseErrors.ErrInvalidInput):
		return errors.ErrInvalidArgument(err.Error()), true
	case stdErrors.Is(err, usecaseErrors.ErrConversationNotFound):
		return errors.ErrConversationNotFound(""), true
	case stdErrors.Is(err, usecaseErrors.ErrUtteranceNotFound):
		return errors.ErrUtteranceNotFound(""), true
	case stdErrors.Is(err, usecaseErrors.ErrSpeakerNotFound):
		return errors.ErrSpeakerNotFound(""), true
	case stdErrors.Is(err, usecaseErrors.ErrAudioNotFound):
		return errors.ErrAudioNotFound(""), true
	case stdErrors.Is(err, usecaseErrors.ErrEmbeddingNotFound):
		return errors.ErrEmbeddingNotFound(""), true
	case stdErrors.Is(err, usecaseErrors.ErrNotFound):
		return errors.ErrNotFound("resource"), true
	case stdErrors.Is(err, usecaseErrors.ErrAlreadyExists), stdErrors.Is(err, usecaseErrors.ErrConflict):
		return errors.ErrAlreadyExists("resource"), true
	case stdErrors.Is(err, usecaseErrors.ErrSpeakerHasUtterances):
		return errors.ErrSpeakerHasUtterances("", 0), true
	case stdErrors.Is(err, usecaseErrors.ErrSpeakerNotLinked):
		return errors.ErrSpeakerNotLinked(""), true
	case stdErrors.Is(err, usecaseErrors.ErrIndexSpeakerExists):
		return errors.ErrIndexSpeakerExists(""), true
	case stdErrors.Is(err, usecaseErrors.ErrIndexSpeakerNotFound):
		return errors.ErrIndexSpeakerNotFound(""), true
	case stdErrors.Is(err, usecaseErrors.ErrTranscriptionFailed):
		return errors.ErrTranscriptionFailed(err), true
	case stdErrors.Is(err, usecaseErrors.ErrEmbeddingFailed):
		return errors.ErrEmbeddingFailed(err), true
	case stdErrors.Is(err, usecaseErrors.ErrConversionFailed):
		return errors.ErrConversionFailed(err), true
	case stdErrors.Is(err, usecaseErrors.ErrStorageFailed):
		return errors.ErrStorageFailed("storage", err), true
	case stdErrors.Is(err, usecaseErrors.ErrVectorIndexFailed):
		return errors.ErrVectorIndexFailed("vector index", err), true
	}
	return errors.AppError{}, false
}
