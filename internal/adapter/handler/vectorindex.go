package handler

import (
	"io"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/speakerid-team/speaker-id/errors"
	conversationUsecase "github.com/speakerid-team/speaker-id/internal/usecase/conversation"
	vectorindexUsecase "github.com/speakerid-team/speaker-id/internal/usecase/vectorindex"
)

// VectorIndex handles speaker-enrollment HTTP requests against the
// similarity index
type VectorIndex struct {
	service    vectorindexUsecase.Service
	reconciler *conversationUsecase.Reconciler
	logger     *zap.Logger
}

// NewVectorIndexHandler creates a new vector index handler
func NewVectorIndexHandler(service vectorindexUsecase.Service, reconciler *conversationUsecase.Reconciler, logger *zap.Logger) *VectorIndex {
	return &VectorIndex{service: service, reconciler: reconciler, logger: logger}
}

// Reconcile handles POST /index/reconcile, an on-demand orphan sweep
func (h *VectorIndex) Reconcile(c echo.Context) error {
	removed, err := h.reconciler.Sweep(c.Request().Context())
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, map[string]interface{}{"removed_vectors": removed})
}

// ListSpeakers handles GET /index/speakers
func (h *VectorIndex) ListSpeakers(c echo.Context) error {
	speakers, err := h.service.ListSpeakers(c.Request().Context())
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, speakers)
}

// AddSpeaker handles POST /index/speakers (multipart: name + audio file)
func (h *VectorIndex) AddSpeaker(c echo.Context) error {
	return h.enroll(c, true)
}

// AddEmbedding handles POST /index/speakers/:name/embeddings
func (h *VectorIndex) AddEmbedding(c echo.Context) error {
	return h.enroll(c, false)
}

func (h *VectorIndex) enroll(c echo.Context, newSpeaker bool) error {
	name := c.Param("name")
	if name == "" {
		name = c.FormValue("name")
	}
	if name == "" {
		return handleError(c, h.logger, errors.ErrInvalidArgument("speaker name is required"))
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

	scratch, err := os.MkdirTemp("", "enroll-*")
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

	ctx := c.Request().Context()
	var embeddingID string
	if newSpeaker {
		embeddingID, err = h.service.AddSpeaker(ctx, name, localPath)
	} else {
		embeddingID, err = h.service.AddEmbedding(ctx, name, localPath)
	}
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, map[string]string{
		"speaker_name": name,
		"embedding_id": embeddingID,
	})
}

// DeleteSpeaker handles DELETE /index/speakers/:name
func (h *VectorIndex) DeleteSpeaker(c echo.Context) error {
	deleted, err := h.service.DeleteSpeaker(c.Request().Context(), c.Param("name"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, map[string]interface{}{
		"speaker_name":       c.Param("name"),
		"deleted_embeddings": deleted,
	})
}

// DeleteEmbedding handles DELETE /index/embeddings/:id
func (h *VectorIndex) DeleteEmbedding(c echo.Context) error {
	if err := h.service.DeleteEmbedding(c.Request().Context(), c.Param("id")); err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, map[string]string{"status": "deleted"})
}
