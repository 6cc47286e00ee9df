package handler

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/speakerid-team/speaker-id/errors"
	dto "github.com/speakerid-team/speaker-id/internal/adapter/dto/conversation"
	conversationUsecase "github.com/speakerid-team/speaker-id/internal/usecase/conversation"
)

// Conversation handles conversation-related HTTP requests
type Conversation struct {
	service conversationUsecase.Service
	logger  *zap.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(service conversationUsecase.Service, logger *zap.Logger) *Conversation {
	return &Conversation{service: service, logger: logger}
}

// Ingest handles POST /conversations
func (h *Conversation) Ingest(c echo.Context) error {
	var req dto.IngestRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}
	if err := c.Validate(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}

	result, err := h.service.Ingest(c.Request().Context(), conversationUsecase.IngestRequest{
		ConversationKey: req.ConversationKey,
		DisplayName:     req.DisplayName,
		IdempotencyKey:  req.IdempotencyKey,
		DurationSeconds: req.DurationSeconds,
		Metadata:        req.Metadata,
		Utterances:      req.Utterances,
	})
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, result)
}

// Process handles POST /conversations/process: multipart audio upload that
// is transcribed, clipped and ingested in one call.
func (h *Conversation) Process(c echo.Context) error {
	conversationKey := c.FormValue("conversation_id")
	if conversationKey == "" {
		return handleError(c, h.logger, errors.ErrInvalidArgument("conversation_id is required"))
	}

	var displayName, idempotencyKey *string
	if v := c.FormValue("display_name"); v != "" {
		displayName = &v
	}
	if v := c.FormValue("idempotency_key"); v != "" {
		idempotencyKey = &v
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument("audio file is required"))
	}
	src, err := fileHeader.Open()
	if err != nil {
		return handleError(c, h.logger, err)
	}
	defer src.Close()

	scratch, err := os.MkdirTemp("", "upload-*")
	if err != nil {
		return handleError(c, h.logger, err)
	}
	defer os.RemoveAll(scratch)

	localPath := filepath.Join(scratch, filepath.Base(fileHeader.Filename))
	dst, err := os.Create(localPath)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return handleError(c, h.logger, err)
	}
	dst.Close()

	result, err := h.service.ProcessAudio(c.Request().Context(), conversationUsecase.ProcessRequest{
		ConversationKey: conversationKey,
		DisplayName:     displayName,
		IdempotencyKey:  idempotencyKey,
		LocalPath:       localPath,
	})
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, result)
}

// List handles GET /conversations
func (h *Conversation) List(c echo.Context) error {
	summaries, err := h.service.List(c.Request().Context())
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, summaries)
}

// Get handles GET /conversations/:key
func (h *Conversation) Get(c echo.Context) error {
	detail, err := h.service.Get(c.Request().Context(), c.Param("key"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, detail)
}

// UpdateDisplayName handles PATCH /conversations/:key
func (h *Conversation) UpdateDisplayName(c echo.Context) error {
	var req dto.UpdateDisplayNameRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}
	if err := c.Validate(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}

	conv, err := h.service.UpdateDisplayName(c.Request().Context(), c.Param("key"), req.DisplayName)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, conv)
}

// Delete handles DELETE /conversations/:key
func (h *Conversation) Delete(c echo.Context) error {
	result, err := h.service.DeleteConversation(c.Request().Context(), c.Param("key"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	if result.Status == conversationUsecase.StatusPartiallyDeleted {
		failed := int(result.FailedS3Objects + result.FailedPineconeEmbeddings)
		appErr := errors.ErrPartialFailure("conversation delete", failed)
		if h.logger != nil {
			h.logger.Warn("⚠️ Conversation delete finished with failures",
				zap.String("conversation_key", c.Param("key")),
				zap.Int("failed", failed),
			)
		}
		return c.JSON(appErr.HTTPCode, success{
			Code:    int(appErr.Code),
			Message: appErr.Message,
			Data:    result,
		})
	}
	return handleSuccess(c, h.logger, result)
}

// OriginalAudio handles GET /conversations/:key/audio with a redirect to a
// presigned URL
func (h *Conversation) OriginalAudio(c echo.Context) error {
	url, err := h.service.OriginalAudioURL(c.Request().Context(), c.Param("key"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.Redirect(http.StatusFound, url)
}

// UtteranceAudio handles GET /conversations/:key/utterances/:utterance/audio
func (h *Conversation) UtteranceAudio(c echo.Context) error {
	url, err := h.service.UtteranceAudioURL(c.Request().Context(), c.Param("key"), c.Param("utterance"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.Redirect(http.StatusFound, url)
}

// UpdateUtterance handles PATCH /utterances/:id
func (h *Conversation) UpdateUtterance(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument("invalid utterance id"))
	}

	var req dto.UpdateUtteranceRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}

	utterance, err := h.service.UpdateUtterance(c.Request().Context(), id, req.SpeakerName, req.Text)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, utterance)
}

// ToggleInclusion handles PUT /utterances/:id/inclusion
func (h *Conversation) ToggleInclusion(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument("invalid utterance id"))
	}

	var req dto.ToggleInclusionRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}

	result, err := h.service.ToggleVectorInclusion(c.Request().Context(), id, req.Included)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, result)
}
