package conversation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
	domainrepo "github.com/speakerid-team/speaker-id/internal/domain/repositories"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/cache"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/vector"
	errs "github.com/speakerid-team/speaker-id/internal/usecase/errors"
	"github.com/speakerid-team/speaker-id/pkg/config"
)

// ---- fakes ----

type fakeSpeakerRepo struct {
	byName map[string]uuid.UUID
	byID   map[uuid.UUID]*entities.Speaker
	calls  int
}

func newFakeSpeakerRepo() *fakeSpeakerRepo {
	return &fakeSpeakerRepo{
		byName: map[string]uuid.UUID{},
		byID:   map[uuid.UUID]*entities.Speaker{},
	}
}

func (f *fakeSpeakerRepo) GetOrCreate(_ context.Context, name string) (uuid.UUID, error) {
	f.calls++
	if id, ok := f.byName[name]; ok {
		return id, nil
	}
	id := uuid.New()
	f.byName[name] = id
	f.byID[id] = &entities.Speaker{ID: id, Name: name}
	return id, nil
}

func (f *fakeSpeakerRepo) FindByID(_ context.Context, id uuid.UUID) (*entities.Speaker, error) {
	return f.byID[id], nil
}

func (f *fakeSpeakerRepo) FindByName(_ context.Context, name string) (*entities.Speaker, error) {
	if id, ok := f.byName[name]; ok {
		return f.byID[id], nil
	}
	return nil, nil
}

func (f *fakeSpeakerRepo) List(context.Context) ([]entities.SpeakerRollup, error) { return nil, nil }
func (f *fakeSpeakerRepo) Details(context.Context, uuid.UUID) (*entities.SpeakerDetails, error) {
	return nil, nil
}
func (f *fakeSpeakerRepo) Rename(context.Context, uuid.UUID, string) error { return nil }
func (f *fakeSpeakerRepo) ReassignUtterances(context.Context, uuid.UUID, uuid.UUID) (int64, error) {
	return 0, nil
}
func (f *fakeSpeakerRepo) CountUtterances(context.Context, uuid.UUID) (int64, error) { return 0, nil }
func (f *fakeSpeakerRepo) Delete(context.Context, uuid.UUID) error                   { return nil }
func (f *fakeSpeakerRepo) SetPineconeLink(context.Context, uuid.UUID, *string) error { return nil }

type fakeConversationRepo struct {
	byID          map[uuid.UUID]*entities.Conversation
	byKey         map[string]*entities.Conversation
	byIdempotency map[string]*entities.Conversation
	cascade       domainrepo.CascadeCounts
	cascadeErr    error
	linked        int
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		byID:          map[uuid.UUID]*entities.Conversation{},
		byKey:         map[string]*entities.Conversation{},
		byIdempotency: map[string]*entities.Conversation{},
	}
}

func (f *fakeConversationRepo) Create(_ context.Context, c *entities.Conversation) error {
	f.byID[c.ID] = c
	f.byKey[c.ConversationKey] = c
	if c.IdempotencyKey != nil {
		f.byIdempotency[*c.IdempotencyKey] = c
	}
	return nil
}

func (f *fakeConversationRepo) FindByID(_ context.Context, id uuid.UUID) (*entities.Conversation, error) {
	return f.byID[id], nil
}

func (f *fakeConversationRepo) FindByKey(_ context.Context, key string) (*entities.Conversation, error) {
	return f.byKey[key], nil
}

func (f *fakeConversationRepo) FindByIdempotencyKey(_ context.Context, key string) (*entities.Conversation, error) {
	return f.byIdempotency[key], nil
}

func (f *fakeConversationRepo) List(context.Context) ([]entities.ConversationSummary, error) {
	return nil, nil
}
func (f *fakeConversationRepo) UpdateDisplayName(context.Context, uuid.UUID, string) error {
	return nil
}
func (f *fakeConversationRepo) LinkSpeaker(context.Context, uuid.UUID, uuid.UUID) error {
	f.linked++
	return nil
}

func (f *fakeConversationRepo) DeleteCascade(_ context.Context, id uuid.UUID) (domainrepo.CascadeCounts, error) {
	if f.cascadeErr != nil {
		return domainrepo.CascadeCounts{}, f.cascadeErr
	}
	if c, ok := f.byID[id]; ok {
		delete(f.byKey, c.ConversationKey)
		delete(f.byID, id)
	}
	return f.cascade, nil
}

type createdUtterance struct {
	utterance entities.Utterance
	words     []entities.WordTimestamp
}

type fakeUtteranceRepo struct {
	created      []createdUtterance
	calls        int
	failOn       int // 1-based index of CreateWithWords call to fail, 0 = never
	byID         map[uuid.UUID]*entities.Utterance
	vectorIDs    []string
	allVectorIDs []string
	inclusionErr error
	setCalls     []struct {
		ID       uuid.UUID
		Included bool
		VectorID *string
	}
}

func newFakeUtteranceRepo() *fakeUtteranceRepo {
	return &fakeUtteranceRepo{byID: map[uuid.UUID]*entities.Utterance{}}
}

func (f *fakeUtteranceRepo) CreateWithWords(_ context.Context, u *entities.Utterance, words []entities.WordTimestamp) (uuid.UUID, error) {
	f.calls++
	if f.failOn > 0 && f.calls == f.failOn {
		return uuid.Nil, errors.New("simulated write failure")
	}
	f.created = append(f.created, createdUtterance{utterance: *u, words: words})
	f.byID[u.ID] = u
	return u.ID, nil
}

func (f *fakeUtteranceRepo) FindByID(_ context.Context, id uuid.UUID) (*entities.Utterance, error) {
	return f.byID[id], nil
}

func (f *fakeUtteranceRepo) FindByKey(_ context.Context, conversationID uuid.UUID, utteranceKey string) (*entities.Utterance, error) {
	for _, u := range f.byID {
		if u.ConversationID == conversationID && u.UtteranceKey == utteranceKey {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUtteranceRepo) ListByConversation(context.Context, uuid.UUID) ([]entities.UtteranceWithSpeaker, error) {
	return nil, nil
}

func (f *fakeUtteranceRepo) Update(context.Context, uuid.UUID, *uuid.UUID, *string) (*entities.Utterance, error) {
	return nil, nil
}

func (f *fakeUtteranceRepo) SetVectorInclusion(_ context.Context, id uuid.UUID, included bool, vectorID *string) error {
	if f.inclusionErr != nil {
		return f.inclusionErr
	}
	f.setCalls = append(f.setCalls, struct {
		ID       uuid.UUID
		Included bool
		VectorID *string
	}{id, included, vectorID})
	if u, ok := f.byID[id]; ok {
		u.IncludedInPinecone = included
		u.UtteranceEmbeddingID = vectorID
	}
	return nil
}

func (f *fakeUtteranceRepo) VectorIDsByConversation(context.Context, uuid.UUID) ([]string, error) {
	return f.vectorIDs, nil
}

func (f *fakeUtteranceRepo) AllVectorIDs(context.Context) ([]string, error) {
	return f.allVectorIDs, nil
}

type fakeSagaRepo struct {
	steps    map[string]map[string]entities.SagaStep
	finished []string
	stale    map[string]bool // saga keys whose conversation row is gone
}

func newFakeSagaRepo() *fakeSagaRepo {
	return &fakeSagaRepo{
		steps: map[string]map[string]entities.SagaStep{},
		stale: map[string]bool{},
	}
}

func (f *fakeSagaRepo) CompletedSteps(_ context.Context, key string) (map[string]entities.SagaStep, error) {
	out := map[string]entities.SagaStep{}
	for step, s := range f.steps[key] {
		out[step] = s
	}
	return out, nil
}

func (f *fakeSagaRepo) MarkStep(_ context.Context, key, step string, deleted, failed int64) error {
	if f.steps[key] == nil {
		f.steps[key] = map[string]entities.SagaStep{}
	}
	f.steps[key][step] = entities.SagaStep{SagaKey: key, Step: step, Deleted: deleted, Failed: failed}
	return nil
}

func (f *fakeSagaRepo) Finish(_ context.Context, key string) error {
	f.finished = append(f.finished, key)
	delete(f.steps, key)
	return nil
}

func (f *fakeSagaRepo) PurgeOrphaned(context.Context) (int64, error) {
	var purged int64
	for key := range f.steps {
		if f.stale[key] {
			delete(f.steps, key)
			purged++
		}
	}
	return purged, nil
}

type fakeStore struct {
	objects    map[string][]byte
	failRemove map[string]bool
	listErr    error
	listCalls  int
	downloads  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, failRemove: map[string]bool{}}
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) Download(_ context.Context, key, localPath string) error {
	data, ok := f.objects[key]
	if !ok {
		return fmt.Errorf("no such object %s", key)
	}
	f.downloads++
	return os.WriteFile(localPath, data, 0o644)
}

func (f *fakeStore) UploadPath(_ context.Context, key, localPath, _ string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) GetFileURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", fmt.Errorf("no such object %s", key)
	}
	return "http://store.local/" + key, nil
}

func (f *fakeStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *fakeStore) RemoveKeys(_ context.Context, keys []string) (int, int, error) {
	deleted, failed := 0, 0
	for _, key := range keys {
		if f.failRemove[key] {
			failed++
			continue
		}
		delete(f.objects, key)
		deleted++
	}
	if failed > 0 {
		return deleted, failed, fmt.Errorf("%d removals failed", failed)
	}
	return deleted, failed, nil
}

type fakeIndex struct {
	vectors    map[string]vector.Vector
	upsertErr  error
	deleteErr  error
	upserts    []string
	deletes    [][]string
	upsertMeta map[string]map[string]interface{}
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		vectors:    map[string]vector.Vector{},
		upsertMeta: map[string]map[string]interface{}{},
	}
}

func (f *fakeIndex) Upsert(_ context.Context, id string, values []float32, metadata map[string]interface{}) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, id)
	f.vectors[id] = vector.Vector{ID: id, Values: values, Metadata: metadata}
	f.upsertMeta[id] = metadata
	return nil
}

func (f *fakeIndex) Delete(_ context.Context, ids []string) error {
	f.deletes = append(f.deletes, ids)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, id := range ids {
		delete(f.vectors, id)
	}
	return nil
}

func (f *fakeIndex) Query(_ context.Context, req vector.QueryRequest) ([]vector.Match, error) {
	var matches []vector.Match
	for id, v := range f.vectors {
		matches = append(matches, vector.Match{ID: id, Metadata: v.Metadata})
	}
	return matches, nil
}

func (f *fakeIndex) Fetch(_ context.Context, ids []string) (map[string]vector.Vector, error) {
	out := map[string]vector.Vector{}
	for _, id := range ids {
		if v, ok := f.vectors[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedFile(_ context.Context, path string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, vector.Dimension), nil
}

type fixture struct {
	service    Service
	speakers   *fakeSpeakerRepo
	convs      *fakeConversationRepo
	utterances *fakeUtteranceRepo
	sagas      *fakeSagaRepo
	store      *fakeStore
	index      *fakeIndex
	embedder   *fakeEmbedder
}

func newFixture() *fixture {
	f := &fixture{
		speakers:   newFakeSpeakerRepo(),
		convs:      newFakeConversationRepo(),
		utterances: newFakeUtteranceRepo(),
		sagas:      newFakeSagaRepo(),
		store:      newFakeStore(),
		index:      newFakeIndex(),
		embedder:   &fakeEmbedder{},
	}
	locks := cache.NewMemoryStore()
	cfg := &config.Config{}
	cfg.Storage.PresignExpiry = time.Hour
	resolver := NewPathResolver(f.store, nil, nil)
	f.service = NewService(
		f.convs, f.utterances, f.speakers, f.sagas,
		f.store, f.index, f.embedder, nil, nil,
		resolver, locks, cfg, nil,
	)
	return f
}

// seedConversation adds a conversation with one utterance whose audio blob
// sits at the canonical key.
func (f *fixture) seedConversation(t *testing.T, key string, included bool) (*entities.Conversation, *entities.Utterance) {
	t.Helper()
	conv := entities.NewConversation(key, nil, nil, 10)
	if err := f.convs.Create(context.Background(), conv); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	speakerID, _ := f.speakers.GetOrCreate(context.Background(), "Alice")
	utterance := &entities.Utterance{
		ID:             uuid.New(),
		UtteranceKey:   "utterance_000",
		ConversationID: conv.ID,
		SpeakerID:      speakerID,
		StartMs:        0,
		EndMs:          2000,
		Text:           "hello world",
		AudioFile:      entities.UtteranceAudioKey(key, 0),
	}
	if included {
		embeddingID := "utterance_Alice_deadbeef"
		utterance.IncludedInPinecone = true
		utterance.UtteranceEmbeddingID = &embeddingID
	}
	f.utterances.byID[utterance.ID] = utterance
	f.store.objects[entities.UtteranceAudioKey(key, 0)] = []byte("RIFFfake")
	return conv, utterance
}

// ---- ingest ----

func TestIngest_PersistsUtterancesAndWords(t *testing.T) {
	f := newFixture()

	result, err := f.service.Ingest(context.Background(), IngestRequest{
		ConversationKey: "conv-alice",
		DurationSeconds: 12.5,
		Utterances: []UtteranceInput{
			{Segment: &SegmentInput{
				Speaker: "Alice", Text: "hello", StartMs: 0, EndMs: 2000,
				Words: []WordInput{{Text: "hello", StartMs: 0, EndMs: 2000}},
			}},
			{Segment: &SegmentInput{Speaker: "Alice", Text: "again", StartMs: 2000, EndMs: 4000}},
		},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.UtterancesWritten != 2 || result.UtterancesFailed != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(f.utterances.created) != 2 {
		t.Fatalf("expected 2 utterance writes, got %d", len(f.utterances.created))
	}
	if len(f.utterances.created[0].words) != 1 {
		t.Fatalf("words not persisted with utterance")
	}
	// same speaker resolves to one row
	if len(f.speakers.byName) != 1 {
		t.Fatalf("expected 1 speaker, got %d", len(f.speakers.byName))
	}
	first := f.utterances.created[0].utterance
	if first.StartTime != "00:00:00" || first.EndTime != "00:00:02" {
		t.Fatalf("derived clock strings wrong: %q-%q", first.StartTime, first.EndTime)
	}
	if f.convs.linked == 0 {
		t.Fatal("junction rows never recreated")
	}
}

func TestIngest_PartialFailureContinues(t *testing.T) {
	f := newFixture()
	f.utterances.failOn = 2

	result, err := f.service.Ingest(context.Background(), IngestRequest{
		ConversationKey: "conv-partial",
		Utterances: []UtteranceInput{
			{Segment: &SegmentInput{Speaker: "A", Text: "one", StartMs: 0, EndMs: 1000}},
			{Segment: &SegmentInput{Speaker: "B", Text: "two", StartMs: 1000, EndMs: 2000}},
			{Segment: &SegmentInput{Speaker: "C", Text: "three", StartMs: 2000, EndMs: 3000}},
		},
	})
	if err != nil {
		t.Fatalf("partial ingest must not fail outright: %v", err)
	}
	if result.UtterancesWritten != 2 || result.UtterancesFailed != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.ConversationID == uuid.Nil {
		t.Fatal("conversation id missing despite forward progress")
	}
}

func TestIngest_IdempotencyKeyDeduplicates(t *testing.T) {
	f := newFixture()
	key := "retry-token-1"

	first, err := f.service.Ingest(context.Background(), IngestRequest{
		ConversationKey: "conv-idem",
		IdempotencyKey:  &key,
		Utterances: []UtteranceInput{
			{Segment: &SegmentInput{Speaker: "A", Text: "x", StartMs: 0, EndMs: 500}},
		},
	})
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	second, err := f.service.Ingest(context.Background(), IngestRequest{
		ConversationKey: "conv-idem",
		IdempotencyKey:  &key,
		Utterances: []UtteranceInput{
			{Segment: &SegmentInput{Speaker: "A", Text: "x", StartMs: 0, EndMs: 500}},
		},
	})
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if !second.Deduplicated {
		t.Fatal("retry with same idempotency key must deduplicate")
	}
	if second.ConversationID != first.ConversationID {
		t.Fatal("deduplicated ingest returned a different conversation")
	}
	if len(f.utterances.created) != 1 {
		t.Fatalf("retry wrote utterances again: %d", len(f.utterances.created))
	}
}

// ---- toggle ----

func TestToggle_EnableUpsertsBeforeRelationalUpdate(t *testing.T) {
	f := newFixture()
	_, utterance := f.seedConversation(t, "conv-1", false)

	result, err := f.service.ToggleVectorInclusion(context.Background(), utterance.ID, true)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !result.Changed || !result.Included || result.EmbeddingID == nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.HasPrefix(*result.EmbeddingID, "utterance_Alice_") {
		t.Fatalf("embedding id %q missing speaker-derived prefix", *result.EmbeddingID)
	}
	if len(f.index.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(f.index.upserts))
	}

	meta := f.index.upsertMeta[f.index.upserts[0]]
	if meta["speaker_name"] != "Alice" || meta["source_type"] != SourceTypeManualInclusion {
		t.Fatalf("unexpected metadata %v", meta)
	}
	if meta["utterance_id"] != utterance.ID.String() {
		t.Fatalf("metadata utterance_id mismatch: %v", meta["utterance_id"])
	}
	if meta["text"] != "hello world" {
		t.Fatalf("metadata text mismatch: %v", meta["text"])
	}

	if len(f.utterances.setCalls) != 1 || !f.utterances.setCalls[0].Included {
		t.Fatal("relational inclusion never recorded")
	}
	if f.store.downloads != 1 {
		t.Fatal("audio was not downloaded for embedding")
	}
}

func TestToggle_IdempotentWhenStateMatches(t *testing.T) {
	f := newFixture()
	_, utterance := f.seedConversation(t, "conv-2", true)

	result, err := f.service.ToggleVectorInclusion(context.Background(), utterance.ID, true)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if result.Changed {
		t.Fatal("matching desired state must be a no-op")
	}
	if len(f.index.upserts) != 0 || len(f.index.deletes) != 0 {
		t.Fatal("no-op toggle touched the index")
	}
	if f.embedder.calls != 0 {
		t.Fatal("no-op toggle invoked the embedder")
	}
}

func TestToggle_DisableClearsFlagEvenWhenIndexDeleteFails(t *testing.T) {
	f := newFixture()
	_, utterance := f.seedConversation(t, "conv-3", true)
	f.index.deleteErr = errors.New("index down")

	result, err := f.service.ToggleVectorInclusion(context.Background(), utterance.ID, false)
	if err != nil {
		t.Fatalf("disable must tolerate index failure: %v", err)
	}
	if result.Included {
		t.Fatal("inclusion flag not cleared")
	}
	if len(f.index.deletes) != 1 {
		t.Fatal("index delete never attempted")
	}
	if len(f.utterances.setCalls) != 1 || f.utterances.setCalls[0].Included {
		t.Fatal("relational state not cleared")
	}
	if f.utterances.setCalls[0].VectorID != nil {
		t.Fatal("vector id not cleared")
	}
}

func TestToggle_RelationalFailureAfterUpsertSurfacesError(t *testing.T) {
	f := newFixture()
	_, utterance := f.seedConversation(t, "conv-4", false)
	f.utterances.inclusionErr = errors.New("db gone")

	_, err := f.service.ToggleVectorInclusion(context.Background(), utterance.ID, true)
	if err == nil {
		t.Fatal("expected error when relational update fails")
	}
	// orphan vector is left in the index for the reconciliation sweep
	if len(f.index.upserts) != 1 {
		t.Fatal("vector should have been upserted before the failing update")
	}
}

func TestToggle_UnknownUtterance(t *testing.T) {
	f := newFixture()
	_, err := f.service.ToggleVectorInclusion(context.Background(), uuid.New(), true)
	if !errors.Is(err, errs.ErrUtteranceNotFound) {
		t.Fatalf("expected ErrUtteranceNotFound, got %v", err)
	}
}

// ---- delete ----

func TestDeleteConversation_CountsEveryStore(t *testing.T) {
	f := newFixture()
	conv, _ := f.seedConversation(t, "conv-del", true)

	// three blobs under the prefix, one refuses to delete
	f.store.objects[entities.OriginalAudioKey("conv-del")] = []byte("orig")
	f.store.objects[entities.UtteranceAudioKey("conv-del", 1)] = []byte("u1")
	f.store.failRemove[entities.UtteranceAudioKey("conv-del", 1)] = true

	f.utterances.vectorIDs = []string{"utterance_Alice_aaaa0000", "utterance_Alice_bbbb1111"}
	f.convs.cascade = domainrepo.CascadeCounts{
		WordTimestamps:       5,
		Utterances:           3,
		ConversationSpeakers: 2,
		Conversations:        1,
	}

	result, err := f.service.DeleteConversation(context.Background(), "conv-del")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if result.Status != StatusPartiallyDeleted {
		t.Fatalf("expected %q, got %q", StatusPartiallyDeleted, result.Status)
	}
	if result.DeletedS3Objects != 2 || result.FailedS3Objects != 1 {
		t.Fatalf("object counts wrong: %+v", result)
	}
	if result.DeletedPineconeEmbeddings != 2 {
		t.Fatalf("vector count wrong: %+v", result)
	}
	if result.DeletedUtterances != 3 || result.DeletedWordTimestamps != 5 || result.DeletedConversationSpeakers != 2 {
		t.Fatalf("relational counts wrong: %+v", result)
	}
	if result.DeletedDBRows != 11 {
		t.Fatalf("db row total wrong: %d", result.DeletedDBRows)
	}
	if _, ok := f.convs.byID[conv.ID]; ok {
		t.Fatal("conversation row survived the cascade")
	}
	if len(f.sagas.finished) != 1 {
		t.Fatal("saga journal not cleared after success")
	}
}

func TestDeleteConversation_VectorFailureNeverAbortsRows(t *testing.T) {
	f := newFixture()
	f.seedConversation(t, "conv-vfail", true)
	f.utterances.vectorIDs = []string{"utterance_Alice_cccc2222"}
	f.index.deleteErr = errors.New("index down")
	f.convs.cascade = domainrepo.CascadeCounts{Utterances: 1, Conversations: 1}

	result, err := f.service.DeleteConversation(context.Background(), "conv-vfail")
	if err != nil {
		t.Fatalf("vector failure must not abort delete: %v", err)
	}
	if result.DeletedPineconeEmbeddings != 0 {
		t.Fatalf("failed vector deletes counted as deleted: %+v", result)
	}
	if result.FailedPineconeEmbeddings != 1 {
		t.Fatalf("failed vector deletes not surfaced: %+v", result)
	}
	if result.Status != StatusPartiallyDeleted {
		t.Fatalf("vector failure must degrade status, got %q", result.Status)
	}
	if result.DeletedDBRows != 2 {
		t.Fatalf("relational delete skipped: %+v", result)
	}
}

func TestDeleteConversation_ResumeSkipsJournaledSteps(t *testing.T) {
	f := newFixture()
	conv, _ := f.seedConversation(t, "conv-resume", false)
	f.convs.cascade = domainrepo.CascadeCounts{Utterances: 1, Conversations: 1}

	sagaKey := "conversation_delete:" + conv.ID.String()
	if err := f.sagas.MarkStep(context.Background(), sagaKey, entities.SagaStepObjects, 4, 0); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	result, err := f.service.DeleteConversation(context.Background(), "conv-resume")
	if err != nil {
		t.Fatalf("resumed delete failed: %v", err)
	}
	if f.store.listCalls != 0 {
		t.Fatal("journaled object stage re-ran")
	}
	if result.DeletedS3Objects != 4 {
		t.Fatalf("journaled counts not reused: %+v", result)
	}
}

func TestDeleteConversation_Unknown(t *testing.T) {
	f := newFixture()
	_, err := f.service.DeleteConversation(context.Background(), "ghost")
	if !errors.Is(err, errs.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

// ---- audio urls ----

func TestOriginalAudioURL_ChecksExistence(t *testing.T) {
	f := newFixture()
	f.seedConversation(t, "conv-url", false)

	// no original blob uploaded: existence check must fail closed
	_, err := f.service.OriginalAudioURL(context.Background(), "conv-url")
	if !errors.Is(err, errs.ErrAudioNotFound) {
		t.Fatalf("expected ErrAudioNotFound, got %v", err)
	}

	f.store.objects[entities.OriginalAudioKey("conv-url")] = []byte("orig")
	url, err := f.service.OriginalAudioURL(context.Background(), "conv-url")
	if err != nil {
		t.Fatalf("url lookup failed: %v", err)
	}
	if !strings.Contains(url, "original_audio.wav") {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestUtteranceAudioURL_ResolvesLegacyLayout(t *testing.T) {
	f := newFixture()
	f.seedConversation(t, "conv-legacy", false)

	// blob only exists under the legacy two-digit layout
	delete(f.store.objects, entities.UtteranceAudioKey("conv-legacy", 0))
	f.store.objects["conversations/conv-legacy/utterances/utterance_00.wav"] = []byte("old")

	url, err := f.service.UtteranceAudioURL(context.Background(), "conv-legacy", "utterance_000")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !strings.Contains(url, "utterance_00.wav") {
		t.Fatalf("legacy layout not resolved: %q", url)
	}
}

// ---- stored audio keys ----

func TestUtteranceAudioURL_PrefersStoredKey(t *testing.T) {
	f := newFixture()
	_, utterance := f.seedConversation(t, "conv-stored", false)

	// key recorded at ingest lives outside every conventional layout
	storedKey := "conversations/conv-stored/clips/custom_clip.wav"
	utterance.AudioFile = storedKey
	delete(f.store.objects, entities.UtteranceAudioKey("conv-stored", 0))
	f.store.objects[storedKey] = []byte("clip")

	url, err := f.service.UtteranceAudioURL(context.Background(), "conv-stored", "utterance_000")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !strings.Contains(url, "clips/custom_clip.wav") {
		t.Fatalf("stored key not used: %q", url)
	}
}

func TestToggle_EnableUsesStoredAudioKey(t *testing.T) {
	f := newFixture()
	_, utterance := f.seedConversation(t, "conv-stored-toggle", false)

	storedKey := "conversations/conv-stored-toggle/clips/custom_clip.wav"
	utterance.AudioFile = storedKey
	delete(f.store.objects, entities.UtteranceAudioKey("conv-stored-toggle", 0))
	f.store.objects[storedKey] = []byte("RIFFclip")

	result, err := f.service.ToggleVectorInclusion(context.Background(), utterance.ID, true)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !result.Included {
		t.Fatalf("unexpected result %+v", result)
	}
	if f.store.downloads != 1 {
		t.Fatal("stored audio key was not downloaded for embedding")
	}
}

// ---- reconciliation ----

func TestReconciler_RemovesOnlyUntrackedUtteranceVectors(t *testing.T) {
	f := newFixture()
	f.index.vectors["utterance_Alice_11111111"] = vector.Vector{ID: "utterance_Alice_11111111"}
	f.index.vectors["utterance_Bob_22222222"] = vector.Vector{ID: "utterance_Bob_22222222"}
	f.index.vectors["speaker_Carol_33333333"] = vector.Vector{ID: "speaker_Carol_33333333"}
	f.utterances.allVectorIDs = []string{"utterance_Alice_11111111"}

	reconciler := NewReconciler(f.utterances, f.sagas, f.index, nil)
	removed, err := reconciler.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 orphan removed, got %d", removed)
	}
	if _, ok := f.index.vectors["utterance_Bob_22222222"]; ok {
		t.Fatal("orphan vector survived sweep")
	}
	if _, ok := f.index.vectors["utterance_Alice_11111111"]; !ok {
		t.Fatal("tracked vector was removed")
	}
	if _, ok := f.index.vectors["speaker_Carol_33333333"]; !ok {
		t.Fatal("enrollment vector was removed")
	}
}

func TestReconciler_GraceWindowSparesFreshVectors(t *testing.T) {
	f := newFixture()
	fresh := time.Now().UTC().Format(time.RFC3339)
	old := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	f.index.vectors["utterance_Dave_44444444"] = vector.Vector{
		ID:       "utterance_Dave_44444444",
		Metadata: map[string]interface{}{"created_at": fresh},
	}
	f.index.vectors["utterance_Erin_55555555"] = vector.Vector{
		ID:       "utterance_Erin_55555555",
		Metadata: map[string]interface{}{"created_at": old},
	}

	reconciler := NewReconciler(f.utterances, f.sagas, f.index, nil)
	removed, err := reconciler.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 orphan removed, got %d", removed)
	}
	if _, ok := f.index.vectors["utterance_Dave_44444444"]; !ok {
		t.Fatal("vector inside the grace window was removed")
	}
	if _, ok := f.index.vectors["utterance_Erin_55555555"]; ok {
		t.Fatal("aged orphan survived sweep")
	}
}

func TestReconciler_PurgesStaleDeleteJournals(t *testing.T) {
	f := newFixture()
	liveKey := "conversation_delete:" + uuid.NewString()
	staleKey := "conversation_delete:" + uuid.NewString()
	if err := f.sagas.MarkStep(context.Background(), liveKey, entities.SagaStepObjects, 1, 0); err != nil {
		t.Fatalf("seed journal: %v", err)
	}
	if err := f.sagas.MarkStep(context.Background(), staleKey, entities.SagaStepRows, 3, 0); err != nil {
		t.Fatalf("seed journal: %v", err)
	}
	f.sagas.stale[staleKey] = true

	reconciler := NewReconciler(f.utterances, f.sagas, f.index, nil)
	if _, err := reconciler.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if _, ok := f.sagas.steps[staleKey]; ok {
		t.Fatal("stale journal survived sweep")
	}
	if _, ok := f.sagas.steps[liveKey]; !ok {
		t.Fatal("journal for an in-flight delete was purged")
	}
}
