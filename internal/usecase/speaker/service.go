package speaker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
	domainrepo "github.com/speakerid-team/speaker-id/internal/domain/repositories"
	errs "github.com/speakerid-team/speaker-id/internal/usecase/errors"
)

// ReassignResult reports a bulk utterance move between speakers.
type ReassignResult struct {
	FromSpeakerID  uuid.UUID `json:"from_speaker_id"`
	ToSpeakerID    uuid.UUID `json:"to_speaker_id"`
	UtterancesMove int64     `json:"utterances_moved"`
	SourceDeleted  bool      `json:"source_deleted"`
}

// Service manages speakers and their vector-index links.
type Service interface {
	GetOrCreate(ctx context.Context, name string) (uuid.UUID, error)
	List(ctx context.Context) ([]entities.SpeakerRollup, error)
	Details(ctx context.Context, id uuid.UUID) (*entities.SpeakerDetails, error)
	Rename(ctx context.Context, id uuid.UUID, newName string) (*entities.Speaker, error)
	// Reassign moves every utterance from one speaker to another, deleting
	// the emptied source row when deleteSource is set.
	Reassign(ctx context.Context, from, to uuid.UUID, deleteSource bool) (*ReassignResult, error)
	// Delete removes a speaker; refused while the speaker still owns utterances.
	Delete(ctx context.Context, id uuid.UUID) error
	SetPineconeLink(ctx context.Context, id uuid.UUID, pineconeSpeakerName *string) (*entities.Speaker, error)
}

// IndexLookup answers whether a label is enrolled in the vector index.
type IndexLookup interface {
	HasSpeaker(ctx context.Context, name string) (bool, error)
}

type service struct {
	speakerRepo domainrepo.SpeakerRepository
	index       IndexLookup
	logger      *zap.Logger
}

// NewService constructs the speaker service. index may be nil when no
// vector index is configured; links are then stored unverified.
func NewService(speakerRepo domainrepo.SpeakerRepository, index IndexLookup, logger *zap.Logger) Service {
	return &service{speakerRepo: speakerRepo, index: index, logger: logger}
}

func (s *service) GetOrCreate(ctx context.Context, name string) (uuid.UUID, error) {
	if name == "" {
		return uuid.Nil, fmt.Errorf("%w: speaker name is required", errs.ErrInvalidInput)
	}
	return s.speakerRepo.GetOrCreate(ctx, name)
}

func (s *service) List(ctx context.Context) ([]entities.SpeakerRollup, error) {
	return s.speakerRepo.List(ctx)
}

func (s *service) Details(ctx context.Context, id uuid.UUID) (*entities.SpeakerDetails, error) {
	details, err := s.speakerRepo.Details(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load speaker details: %w", err)
	}
	if details == nil {
		return nil, errs.ErrSpeakerNotFound
	}
	return details, nil
}

func (s *service) Rename(ctx context.Context, id uuid.UUID, newName string) (*entities.Speaker, error) {
	if newName == "" {
		return nil, fmt.Errorf("%w: speaker name is required", errs.ErrInvalidInput)
	}

	existing, err := s.speakerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load speaker: %w", err)
	}
	if existing == nil {
		return nil, errs.ErrSpeakerNotFound
	}
	if existing.Name == newName {
		return existing, nil
	}

	taken, err := s.speakerRepo.FindByName(ctx, newName)
	if err != nil {
		return nil, fmt.Errorf("failed to check name: %w", err)
	}
	if taken != nil {
		return nil, fmt.Errorf("%w: speaker %q", errs.ErrAlreadyExists, newName)
	}

	if err := s.speakerRepo.Rename(ctx, id, newName); err != nil {
		return nil, fmt.Errorf("failed to rename speaker: %w", err)
	}
	existing.Name = newName
	if s.logger != nil {
		s.logger.Info("✅ Speaker renamed",
			zap.String("speaker_id", id.String()),
			zap.String("name", newName))
	}
	return existing, nil
}

func (s *service) Reassign(ctx context.Context, from, to uuid.UUID, deleteSource bool) (*ReassignResult, error) {
	if from == to {
		return nil, fmt.Errorf("%w: source and target speakers are the same", errs.ErrInvalidInput)
	}
	for _, id := range []uuid.UUID{from, to} {
		speaker, err := s.speakerRepo.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load speaker: %w", err)
		}
		if speaker == nil {
			return nil, errs.ErrSpeakerNotFound
		}
	}

	moved, err := s.speakerRepo.ReassignUtterances(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign utterances: %w", err)
	}

	result := &ReassignResult{
		FromSpeakerID:  from,
		ToSpeakerID:    to,
		UtterancesMove: moved,
	}
	if deleteSource {
		if err := s.Delete(ctx, from); err != nil {
			return nil, err
		}
		result.SourceDeleted = true
	}

	if s.logger != nil {
		s.logger.Info("✅ Utterances reassigned",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Int64("moved", moved))
	}
	return result, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	speaker, err := s.speakerRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load speaker: %w", err)
	}
	if speaker == nil {
		return errs.ErrSpeakerNotFound
	}

	count, err := s.speakerRepo.CountUtterances(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count utterances: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %d utterances still reference %s", errs.ErrSpeakerHasUtterances, count, speaker.Name)
	}

	if err := s.speakerRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete speaker: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("✅ Speaker deleted", zap.String("speaker_id", id.String()))
	}
	return nil
}

func (s *service) SetPineconeLink(ctx context.Context, id uuid.UUID, pineconeSpeakerName *string) (*entities.Speaker, error) {
	speaker, err := s.speakerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load speaker: %w", err)
	}
	if speaker == nil {
		return nil, errs.ErrSpeakerNotFound
	}

	if pineconeSpeakerName != nil && s.index != nil {
		enrolled, err := s.index.HasSpeaker(ctx, *pineconeSpeakerName)
		if err != nil {
			return nil, fmt.Errorf("failed to check index speaker: %w", err)
		}
		if !enrolled {
			return nil, fmt.Errorf("%w: %q", errs.ErrIndexSpeakerNotFound, *pineconeSpeakerName)
		}
	}

	if err := s.speakerRepo.SetPineconeLink(ctx, id, pineconeSpeakerName); err != nil {
		return nil, fmt.Errorf("failed to update vector index link: %w", err)
	}
	speaker.PineconeSpeakerName = pineconeSpeakerName
	return speaker, nil
}
