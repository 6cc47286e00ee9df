package vectorindex

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/speakerid-team/speaker-id/internal/infrastructure/vector"
	conversationuc "github.com/speakerid-team/speaker-id/internal/usecase/conversation"
	errs "github.com/speakerid-team/speaker-id/internal/usecase/errors"
)

// SourceTypeEnrollment tags vectors created by direct speaker enrollment.
const SourceTypeEnrollment = "enrollment"

// IndexSpeaker is one enrolled speaker with its embedding count.
type IndexSpeaker struct {
	Name           string `json:"name"`
	EmbeddingCount int    `json:"embedding_count"`
}

// Service manages speaker enrollment vectors in the similarity index. These
// are the reference voiceprints that utterance vectors are matched against;
// their ids carry the speaker_ prefix, keeping them disjoint from the
// utterance_ namespace the inclusion toggle writes to.
type Service interface {
	ListSpeakers(ctx context.Context) ([]IndexSpeaker, error)
	// HasSpeaker reports whether the name has at least one enrollment vector.
	HasSpeaker(ctx context.Context, name string) (bool, error)
	// AddSpeaker enrolls a new speaker from a local audio file. Refused when
	// the name already has embeddings.
	AddSpeaker(ctx context.Context, name, audioPath string) (string, error)
	// AddEmbedding adds one more voiceprint to an already enrolled speaker.
	AddEmbedding(ctx context.Context, name, audioPath string) (string, error)
	DeleteSpeaker(ctx context.Context, name string) (int, error)
	DeleteEmbedding(ctx context.Context, embeddingID string) error
}

type service struct {
	index     conversationuc.VectorIndex
	embedder  conversationuc.Embedder
	converter conversationuc.Converter
	logger    *zap.Logger
}

// NewService constructs the vector-index admin service.
func NewService(
	index conversationuc.VectorIndex,
	embedder conversationuc.Embedder,
	converter conversationuc.Converter,
	logger *zap.Logger,
) Service {
	return &service{
		index:     index,
		embedder:  embedder,
		converter: converter,
		logger:    logger,
	}
}

// speakerVectors enumerates enrollment vectors, optionally filtered to one name.
func (s *service) speakerVectors(ctx context.Context, name string) ([]vector.Match, error) {
	req := vector.QueryRequest{
		Vector:          vector.ZeroVector(),
		TopK:            1000,
		IncludeMetadata: true,
	}
	if name != "" {
		req.Filter = map[string]interface{}{"speaker_name": name}
	}

	matches, err := s.index.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrVectorIndexFailed, err)
	}

	enrolled := matches[:0]
	for _, match := range matches {
		if strings.HasPrefix(match.ID, "speaker_") {
			enrolled = append(enrolled, match)
		}
	}
	return enrolled, nil
}

func (s *service) ListSpeakers(ctx context.Context) ([]IndexSpeaker, error) {
	matches, err := s.speakerVectors(ctx, "")
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, match := range matches {
		name, _ := match.Metadata["speaker_name"].(string)
		if name == "" {
			continue
		}
		counts[name]++
	}

	speakers := make([]IndexSpeaker, 0, len(counts))
	for name, count := range counts {
		speakers = append(speakers, IndexSpeaker{Name: name, EmbeddingCount: count})
	}
	sort.Slice(speakers, func(i, j int) bool { return speakers[i].Name < speakers[j].Name })
	return speakers, nil
}

func (s *service) HasSpeaker(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("%w: speaker name is required", errs.ErrInvalidInput)
	}
	matches, err := s.speakerVectors(ctx, name)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func (s *service) AddSpeaker(ctx context.Context, name, audioPath string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: speaker name is required", errs.ErrInvalidInput)
	}

	existing, err := s.speakerVectors(ctx, name)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return "", fmt.Errorf("%w: %q", errs.ErrIndexSpeakerExists, name)
	}

	return s.enroll(ctx, name, audioPath)
}

func (s *service) AddEmbedding(ctx context.Context, name, audioPath string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: speaker name is required", errs.ErrInvalidInput)
	}

	existing, err := s.speakerVectors(ctx, name)
	if err != nil {
		return "", err
	}
	if len(existing) == 0 {
		return "", fmt.Errorf("%w: %q", errs.ErrIndexSpeakerNotFound, name)
	}

	return s.enroll(ctx, name, audioPath)
}

func (s *service) enroll(ctx context.Context, name, audioPath string) (string, error) {
	wavPath, err := s.converter.ConvertToWAV(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrConversionFailed, err)
	}
	defer os.Remove(wavPath)

	values, err := s.embedder.EmbedFile(ctx, wavPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrEmbeddingFailed, err)
	}

	embeddingID := fmt.Sprintf("speaker_%s_%s", sanitizeName(name), uuid.NewString()[:8])
	metadata := map[string]interface{}{
		"speaker_name": name,
		"source_type":  SourceTypeEnrollment,
	}
	if err := s.index.Upsert(ctx, embeddingID, values, metadata); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrVectorIndexFailed, err)
	}

	if s.logger != nil {
		s.logger.Info("✅ Speaker embedding enrolled",
			zap.String("speaker_name", name),
			zap.String("embedding_id", embeddingID))
	}
	return embeddingID, nil
}

func (s *service) DeleteSpeaker(ctx context.Context, name string) (int, error) {
	matches, err := s.speakerVectors(ctx, name)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w: %q", errs.ErrIndexSpeakerNotFound, name)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match.ID)
	}
	if err := s.index.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrVectorIndexFailed, err)
	}

	if s.logger != nil {
		s.logger.Info("✅ Index speaker deleted",
			zap.String("speaker_name", name),
			zap.Int("embeddings", len(ids)))
	}
	return len(ids), nil
}

func (s *service) DeleteEmbedding(ctx context.Context, embeddingID string) error {
	if embeddingID == "" {
		return fmt.Errorf("%w: embedding id is required", errs.ErrInvalidInput)
	}

	found, err := s.index.Fetch(ctx, []string{embeddingID})
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrVectorIndexFailed, err)
	}
	if _, ok := found[embeddingID]; !ok {
		return errs.ErrEmbeddingNotFound
	}

	if err := s.index.Delete(ctx, []string{embeddingID}); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrVectorIndexFailed, err)
	}
	return nil
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
