package handler

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/speakerid-team/speaker-id/errors"
	dto "github.com/speakerid-team/speaker-id/internal/adapter/dto/speaker"
	speakerUsecase "github.com/speakerid-team/speaker-id/internal/usecase/speaker"
)

// Speaker handles speaker-related HTTP requests
type Speaker struct {
	service speakerUsecase.Service
	logger  *zap.Logger
}

// NewSpeakerHandler creates a new speaker handler
func NewSpeakerHandler(service speakerUsecase.Service, logger *zap.Logger) *Speaker {
	return &Speaker{service: service, logger: logger}
}

// List handles GET /speakers
func (h *Speaker) List(c echo.Context) error {
	rollups, err := h.service.List(c.Request().Context())
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, rollups)
}

// Details handles GET /speakers/:id
func (h *Speaker) Details(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument("invalid speaker id"))
	}

	details, err := h.service.Details(c.Request().Context(), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, details)
}

// Rename handles PATCH /speakers/:id
func (h *Speaker) Rename(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument("invalid speaker id"))
	}

	var req dto.RenameRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}
	if err := c.Validate(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}

	speaker, err := h.service.Rename(c.Request().Context(), id, req.Name)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, speaker)
}

// Reassign handles POST /speakers/:id/reassign
func (h *Speaker) Reassign(c echo.Context) error {
	from, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument("invalid speaker id"))
	}

	var req dto.ReassignRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}
	if err := c.Validate(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}
	to, err := uuid.Parse(req.ToSpeakerID)
	if err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument("invalid target speaker id"))
	}

	result, err := h.service.Reassign(c.Request().Context(), from, to, req.DeleteSource)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, result)
}

// Delete handles DELETE /speakers/:id
func (h *Speaker) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument("invalid speaker id"))
	}

	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, map[string]string{"status": "deleted"})
}

// SetLink handles PUT /speakers/:id/pinecone-link
func (h *Speaker) SetLink(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument("invalid speaker id"))
	}

	var req dto.LinkRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, errors.ErrInvalidArgument(err.Error()))
	}

	speaker, err := h.service.SetPineconeLink(c.Request().Context(), id, req.PineconeSpeakerName)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, speaker)
}
