package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/speakerid-team/speaker-id/errors"
	conversationUsecase "github.com/speakerid-team/speaker-id/internal/usecase/conversation"
)

// stubConversationService embeds the interface so only the methods a test
// exercises need overriding; anything else panics.
type stubConversationService struct {
	conversationUsecase.Service
	deleteResult *conversationUsecase.DeleteResult
	deleteErr    error
}

func (s *stubConversationService) DeleteConversation(context.Context, string) (*conversationUsecase.DeleteResult, error) {
	return s.deleteResult, s.deleteErr
}

func deleteRequest(t *testing.T, service conversationUsecase.Service) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/conversations/conv-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/conversations/:key")
	c.SetParamNames("key")
	c.SetParamValues("conv-1")

	h := NewConversationHandler(service, nil)
	return rec, h.Delete(c)
}

func TestDelete_CleanResultUsesSuccessEnvelope(t *testing.T) {
	rec, err := deleteRequest(t, &stubConversationService{
		deleteResult: &conversationUsecase.DeleteResult{
			Status:           conversationUsecase.StatusDeleted,
			DeletedS3Objects: 3,
			DeletedDBRows:    5,
		},
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["code"] != float64(errors.ErrorCode_HTTP_OK) {
		t.Fatalf("unexpected code %v", body["code"])
	}
}

func TestDelete_PartialFailureReportedWithCounts(t *testing.T) {
	rec, err := deleteRequest(t, &stubConversationService{
		deleteResult: &conversationUsecase.DeleteResult{
			Status:                    conversationUsecase.StatusPartiallyDeleted,
			DeletedS3Objects:          2,
			FailedS3Objects:           1,
			FailedPineconeEmbeddings:  1,
			DeletedPineconeEmbeddings: 0,
			DeletedDBRows:             4,
		},
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	// partial completion is still a 200; the envelope code carries the outcome
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["code"] != float64(errors.ErrorCode_PARTIAL_FAILURE) {
		t.Fatalf("partial delete must surface the partial-failure code, got %v", body["code"])
	}
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("result payload missing: %v", body)
	}
	if data["status"] != conversationUsecase.StatusPartiallyDeleted {
		t.Fatalf("unexpected payload status %v", data["status"])
	}
	if data["failed_s3_objects"] != float64(1) || data["failed_pinecone_embeddings"] != float64(1) {
		t.Fatalf("failure counts missing from payload: %v", data)
	}
}
