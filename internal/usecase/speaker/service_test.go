package speaker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
	errs "github.com/speakerid-team/speaker-id/internal/usecase/errors"
)

type fakeRepo struct {
	byID           map[uuid.UUID]*entities.Speaker
	byName         map[string]uuid.UUID
	utteranceCount map[uuid.UUID]int64
	reassigned     int64
	deleted        []uuid.UUID
	linked         map[uuid.UUID]*string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:           map[uuid.UUID]*entities.Speaker{},
		byName:         map[string]uuid.UUID{},
		utteranceCount: map[uuid.UUID]int64{},
		linked:         map[uuid.UUID]*string{},
	}
}

func (f *fakeRepo) add(name string) uuid.UUID {
	id := uuid.New()
	f.byID[id] = &entities.Speaker{ID: id, Name: name}
	f.byName[name] = id
	return id
}

func (f *fakeRepo) GetOrCreate(_ context.Context, name string) (uuid.UUID, error) {
	if id, ok := f.byName[name]; ok {
		return id, nil
	}
	return f.add(name), nil
}

func (f *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entities.Speaker, error) {
	return f.byID[id], nil
}

func (f *fakeRepo) FindByName(_ context.Context, name string) (*entities.Speaker, error) {
	if id, ok := f.byName[name]; ok {
		return f.byID[id], nil
	}
	return nil, nil
}

func (f *fakeRepo) List(context.Context) ([]entities.SpeakerRollup, error) { return nil, nil }
func (f *fakeRepo) Details(context.Context, uuid.UUID) (*entities.SpeakerDetails, error) {
	return nil, nil
}

func (f *fakeRepo) Rename(_ context.Context, id uuid.UUID, name string) error {
	speaker := f.byID[id]
	delete(f.byName, speaker.Name)
	speaker.Name = name
	f.byName[name] = id
	return nil
}

func (f *fakeRepo) ReassignUtterances(_ context.Context, from, to uuid.UUID) (int64, error) {
	moved := f.utteranceCount[from]
	f.utteranceCount[to] += moved
	f.utteranceCount[from] = 0
	f.reassigned = moved
	return moved, nil
}

func (f *fakeRepo) CountUtterances(_ context.Context, id uuid.UUID) (int64, error) {
	return f.utteranceCount[id], nil
}

func (f *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	speaker := f.byID[id]
	delete(f.byName, speaker.Name)
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRepo) SetPineconeLink(_ context.Context, id uuid.UUID, name *string) error {
	f.linked[id] = name
	return nil
}

func TestRename_RejectsTakenName(t *testing.T) {
	repo := newFakeRepo()
	aliceID := repo.add("Alice")
	repo.add("Bob")

	service := NewService(repo, nil, nil)
	_, err := service.Rename(context.Background(), aliceID, "Bob")
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if repo.byID[aliceID].Name != "Alice" {
		t.Fatal("rejected rename still applied")
	}
}

func TestRename_SameNameIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	id := repo.add("Alice")

	service := NewService(repo, nil, nil)
	renamed, err := service.Rename(context.Background(), id, "Alice")
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if renamed.Name != "Alice" {
		t.Fatalf("unexpected name %q", renamed.Name)
	}
}

func TestRename_UnknownSpeaker(t *testing.T) {
	service := NewService(newFakeRepo(), nil, nil)
	_, err := service.Rename(context.Background(), uuid.New(), "Anyone")
	if !errors.Is(err, errs.ErrSpeakerNotFound) {
		t.Fatalf("expected ErrSpeakerNotFound, got %v", err)
	}
}

func TestDelete_RefusedWhileUtterancesRemain(t *testing.T) {
	repo := newFakeRepo()
	id := repo.add("Alice")
	repo.utteranceCount[id] = 3

	service := NewService(repo, nil, nil)
	err := service.Delete(context.Background(), id)
	if !errors.Is(err, errs.ErrSpeakerHasUtterances) {
		t.Fatalf("expected ErrSpeakerHasUtterances, got %v", err)
	}
	if len(repo.deleted) != 0 {
		t.Fatal("speaker deleted despite remaining utterances")
	}
}

func TestDelete_EmptySpeaker(t *testing.T) {
	repo := newFakeRepo()
	id := repo.add("Alice")

	service := NewService(repo, nil, nil)
	if err := service.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(repo.deleted) != 1 {
		t.Fatal("speaker row not removed")
	}
}

func TestReassign_MovesUtterancesAndDeletesSource(t *testing.T) {
	repo := newFakeRepo()
	from := repo.add("Speaker_00")
	to := repo.add("Alice")
	repo.utteranceCount[from] = 5

	service := NewService(repo, nil, nil)
	result, err := service.Reassign(context.Background(), from, to, true)
	if err != nil {
		t.Fatalf("reassign failed: %v", err)
	}
	if result.UtterancesMove != 5 {
		t.Fatalf("expected 5 moved, got %d", result.UtterancesMove)
	}
	if !result.SourceDeleted {
		t.Fatal("source not deleted")
	}
	if repo.utteranceCount[to] != 5 {
		t.Fatal("target did not receive utterances")
	}
}

func TestReassign_SameSpeakerRejected(t *testing.T) {
	repo := newFakeRepo()
	id := repo.add("Alice")

	service := NewService(repo, nil, nil)
	_, err := service.Reassign(context.Background(), id, id, false)
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

type fakeIndexLookup struct {
	enrolled map[string]bool
}

func (f *fakeIndexLookup) HasSpeaker(_ context.Context, name string) (bool, error) {
	return f.enrolled[name], nil
}

func TestSetPineconeLink(t *testing.T) {
	repo := newFakeRepo()
	id := repo.add("Alice")
	link := "alice_voiceprint"
	lookup := &fakeIndexLookup{enrolled: map[string]bool{link: true}}

	service := NewService(repo, lookup, nil)
	updated, err := service.SetPineconeLink(context.Background(), id, &link)
	if err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if updated.PineconeSpeakerName == nil || *updated.PineconeSpeakerName != link {
		t.Fatal("link not reflected on returned speaker")
	}

	cleared, err := service.SetPineconeLink(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("unlink failed: %v", err)
	}
	if cleared.PineconeSpeakerName != nil {
		t.Fatal("link not cleared")
	}
}

func TestSetPineconeLink_RejectsUnenrolledLabel(t *testing.T) {
	repo := newFakeRepo()
	id := repo.add("Alice")
	link := "nobody"

	service := NewService(repo, &fakeIndexLookup{enrolled: map[string]bool{}}, nil)
	_, err := service.SetPineconeLink(context.Background(), id, &link)
	if !errors.Is(err, errs.ErrIndexSpeakerNotFound) {
		t.Fatalf("expected ErrIndexSpeakerNotFound, got %v", err)
	}
	if _, ok := repo.linked[id]; ok {
		t.Fatal("unverified link was stored")
	}
}
