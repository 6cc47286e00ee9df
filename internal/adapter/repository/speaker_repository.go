package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
)

// SpeakerRepository handles speaker data operations
type SpeakerRepository struct {
	db    *gorm.DB
	caps  *Capabilities
	group singleflight.Group
}

// NewSpeakerRepository creates a new speaker repository
func NewSpeakerRepository(db *gorm.DB, caps *Capabilities) *SpeakerRepository {
	return &SpeakerRepository{db: db, caps: caps}
}

// GetOrCreate resolves a speaker id by name, inserting the row on first
// sight. The upsert closes the check-then-insert race: two concurrent calls
// for the same new name both land on the same row. Singleflight collapses
// the in-process duplicates before they reach the database.
func (r *SpeakerRepository) GetOrCreate(ctx context.Context, name string) (uuid.UUID, error) {
	result, err, _ := r.group.Do(name, func() (interface{}, error) {
		var id uuid.UUID
		err := r.db.WithContext(ctx).
			Raw(`INSERT INTO speakers (id, name)
			     VALUES (?, ?)
			     ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			     RETURNING id`, uuid.New(), name).
			Scan(&id).Error
		if err != nil {
			return uuid.Nil, err
		}
		return id, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return result.(uuid.UUID), nil
}

// FindByID retrieves a speaker by ID
func (r *SpeakerRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Speaker, error) {
	var speaker entities.Speaker
	if err := r.selectColumns(ctx).Where("id = ?", id).First(&speaker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &speaker, nil
}

// FindByName retrieves a speaker by unique name
func (r *SpeakerRepository) FindByName(ctx context.Context, name string) (*entities.Speaker, error) {
	var speaker entities.Speaker
	if err := r.selectColumns(ctx).Where("name = ?", name).First(&speaker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &speaker, nil
}

// List returns every speaker with utterance count and total speaking time
func (r *SpeakerRepository) List(ctx context.Context) ([]entities.SpeakerRollup, error) {
	linkColumn := "NULL"
	if r.caps.Has(ctx, "speakers", "pinecone_speaker_name") {
		linkColumn = "s.pinecone_speaker_name"
	}

	var rollups []entities.SpeakerRollup
	err := r.db.WithContext(ctx).
		Raw(`SELECT s.id,
		            s.name,
		            `+linkColumn+` AS pinecone_speaker_name,
		            COUNT(u.id) AS utterance_count,
		            COALESCE(SUM(u.end_ms - u.start_ms), 0) AS total_duration_ms
		     FROM speakers s
		     LEFT JOIN utterances u ON u.speaker_id = s.id
		     GROUP BY s.id, s.name`+r.linkGroupBy(ctx)+`
		     ORDER BY s.name`).
		Scan(&rollups).Error
	if err != nil {
		return nil, err
	}
	return rollups, nil
}

func (r *SpeakerRepository) linkGroupBy(ctx context.Context) string {
	if r.caps.Has(ctx, "speakers", "pinecone_speaker_name") {
		return ", s.pinecone_speaker_name"
	}
	return ""
}

// Details returns one speaker's aggregates plus their ten most recent utterances
func (r *SpeakerRepository) Details(ctx context.Context, id uuid.UUID) (*entities.SpeakerDetails, error) {
	speaker, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if speaker == nil {
		return nil, nil
	}

	details := &entities.SpeakerDetails{
		ID:   speaker.ID,
		Name: speaker.Name,
	}

	var stats struct {
		UtteranceCount  int64
		TotalDurationMs int64
	}
	err = r.db.WithContext(ctx).
		Raw(`SELECT COUNT(id) AS utterance_count,
		            COALESCE(SUM(end_ms - start_ms), 0) AS total_duration_ms
		     FROM utterances
		     WHERE speaker_id = ?`, id).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	details.UtteranceCount = stats.UtteranceCount
	details.TotalDurationMs = stats.TotalDurationMs
	if stats.UtteranceCount > 0 {
		details.AvgDurationMs = stats.TotalDurationMs / stats.UtteranceCount
	}

	nameColumn := "NULL"
	if r.caps.Has(ctx, "conversations", "display_name") {
		nameColumn = "c.display_name"
	}
	err = r.db.WithContext(ctx).
		Raw(`SELECT u.text,
		            u.start_ms,
		            u.end_ms,
		            `+nameColumn+` AS conversation_name,
		            c.conversation_key
		     FROM utterances u
		     JOIN conversations c ON c.id = u.conversation_id
		     WHERE u.speaker_id = ?
		     ORDER BY u.created_at DESC
		     LIMIT 5`, id).
		Scan(&details.RecentUtterances).Error
	if err != nil {
		return nil, err
	}

	return details, nil
}

// Rename updates a speaker's unique name
func (r *SpeakerRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	return r.db.WithContext(ctx).
		Model(&entities.Speaker{}).
		Where("id = ?", id).
		Update("name", name).Error
}

// ReassignUtterances moves every utterance from one speaker to another and
// returns the number of rows moved
func (r *SpeakerRepository) ReassignUtterances(ctx context.Context, from, to uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Utterance{}).
		Where("speaker_id = ?", from).
		Update("speaker_id", to)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountUtterances returns how many utterances reference the speaker
func (r *SpeakerRepository) CountUtterances(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.Utterance{}).
		Where("speaker_id = ?", id).
		Count(&count).Error
	return count, err
}

// Delete removes the speaker row and its junction entries
func (r *SpeakerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("speaker_id = ?", id).Delete(&entities.ConversationSpeaker{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entities.Speaker{}).Error
	})
}

// SetPineconeLink sets or clears the speaker's vector-index label
func (r *SpeakerRepository) SetPineconeLink(ctx context.Context, id uuid.UUID, pineconeSpeakerName *string) error {
	if !r.caps.Has(ctx, "speakers", "pinecone_speaker_name") {
		return errors.New("schema does not have speakers.pinecone_speaker_name")
	}
	return r.db.WithContext(ctx).
		Model(&entities.Speaker{}).
		Where("id = ?", id).
		Update("pinecone_speaker_name", pineconeSpeakerName).Error
}

// selectColumns restricts SELECTs to columns the live schema has, so older
// deployments without the link column still scan cleanly.
func (r *SpeakerRepository) selectColumns(ctx context.Context) *gorm.DB {
	cols := []string{"id", "name", "description", "created_at"}
	if r.caps.Has(ctx, "speakers", "pinecone_speaker_name") {
		cols = append(cols, "pinecone_speaker_name")
	}
	return r.db.WithContext(ctx).Select(cols)
}
