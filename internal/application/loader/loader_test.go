package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkb-qa-api/internal/domain/entity"
	"medkb-qa-api/internal/domain/repository"
	"medkb-qa-api/internal/infrastructure/persistence/milvus"
)

type captureEntityRepo struct {
	repository.EntityRepository
	created []*entity.MedicalEntity
}

func (r *captureEntityRepo) BatchCreate(_ context.Context, es []*entity.MedicalEntity) error {
	r.created = es
	return nil
}

type captureRelationRepo struct {
	repository.RelationRepository
	created []*entity.MedicalRelation
}

func (r *captureRelationRepo) BatchCreate(_ context.Context, rs []*entity.MedicalRelation) error {
	r.created = rs
	return nil
}

type fakeTxRunner struct {
	calls int
}

func (f *fakeTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeFactEmbedder struct {
	batches [][]string
}

func (f *fakeFactEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeFactIndex struct {
	ensured  bool
	deleted  []string
	inserted []*milvus.MedicalFact
}

func (f *fakeFactIndex) EnsureMedicalFactsCollection(context.Context) error {
	f.ensured = true
	return nil
}

func (f *fakeFactIndex) DeleteFactsByEntity(_ context.Context, entityID string) error {
	f.deleted = append(f.deleted, entityID)
	return nil
}

func (f *fakeFactIndex) InsertFacts(_ context.Context, facts []*milvus.MedicalFact) error {
	f.inserted = facts
	return nil
}

type fakeAnswerCache struct {
	invalidations int
	err           error
}

func (f *fakeAnswerCache) InvalidateAnswers(context.Context) error {
	f.invalidations++
	return f.err
}

func testSeed() *SeedFile {
	return &SeedFile{
		Entities: []SeedEntity{
			{Name: "Influenza", Type: "disease", Description: "A viral illness.", Aliases: []string{"flu"}},
			{Name: "Fever", Type: "symptom", Description: "Raised body temperature."},
		},
		Relations: []SeedRelation{
			{Source: "Influenza", Target: "Fever", Type: "has_symptom", Confidence: 0.9},
		},
	}
}

func TestLoadRefreshesStaleVectors(t *testing.T) {
	entityRepo := &captureEntityRepo{}
	relationRepo := &captureRelationRepo{}
	tx := &fakeTxRunner{}
	index := &fakeFactIndex{}
	l := NewLoader(entityRepo, relationRepo, tx, &fakeFactEmbedder{}, index, &fakeAnswerCache{})

	require.NoError(t, l.Load(context.Background(), testSeed()))

	assert.Equal(t, 1, tx.calls)
	require.Len(t, entityRepo.created, 2)
	require.Len(t, relationRepo.created, 1)

	assert.True(t, index.ensured)
	require.Len(t, index.inserted, 2)
	for _, f := range index.inserted {
		assert.NotEmpty(t, f.Vector)
	}

	// 重导入时同一实体的旧片段在插入前被清除
	ids := []string{index.inserted[0].EntityID, index.inserted[1].EntityID}
	assert.ElementsMatch(t, ids, index.deleted)
}

func TestLoadInvalidatesAnswerCache(t *testing.T) {
	cache := &fakeAnswerCache{}
	l := NewLoader(&captureEntityRepo{}, &captureRelationRepo{}, &fakeTxRunner{},
		&fakeFactEmbedder{}, &fakeFactIndex{}, cache)

	require.NoError(t, l.Load(context.Background(), testSeed()))
	assert.Equal(t, 1, cache.invalidations)
}

func TestLoadToleratesCacheInvalidationFailure(t *testing.T) {
	cache := &fakeAnswerCache{err: errors.New("redis down")}
	l := NewLoader(&captureEntityRepo{}, &captureRelationRepo{}, &fakeTxRunner{},
		&fakeFactEmbedder{}, &fakeFactIndex{}, cache)

	// 缓存失效失败不阻断导入
	assert.NoError(t, l.Load(context.Background(), testSeed()))
	assert.Equal(t, 1, cache.invalidations)
}

func TestLoadWithoutCache(t *testing.T) {
	l := NewLoader(&captureEntityRepo{}, &captureRelationRepo{}, &fakeTxRunner{},
		&fakeFactEmbedder{}, &fakeFactIndex{}, nil)

	assert.NoError(t, l.Load(context.Background(), testSeed()))
}

func TestBuildEntitiesResolvesAliases(t *testing.T) {
	entities, byName, err := buildEntities([]SeedEntity{
		{Name: "Influenza", Type: "disease", Description: "A viral illness.", Aliases: []string{"flu"}},
		{ID: "e-2", Name: "Fever", Type: "symptom"},
	})
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.NotEmpty(t, entities[0].ID, "missing IDs are generated")
	assert.Equal(t, "e-2", entities[1].ID)

	assert.Same(t, entities[0], byName["influenza"])
	assert.Same(t, entities[0], byName["flu"])
	assert.Same(t, entities[1], byName["fever"])
}

func TestBuildEntitiesRejectsUnnamed(t *testing.T) {
	_, _, err := buildEntities([]SeedEntity{{Description: "no name"}})
	assert.Error(t, err)
}

func TestBuildRelationsResolvesByNameAndAlias(t *testing.T) {
	entities, byName, err := buildEntities([]SeedEntity{
		{Name: "Influenza", Type: "disease", Aliases: []string{"flu"}},
		{Name: "Oseltamivir", Type: "treatment"},
	})
	require.NoError(t, err)

	relations, err := buildRelations([]SeedRelation{
		{Source: "Oseltamivir", Target: "flu", Type: "treats", Confidence: 0.9},
	}, byName)
	require.NoError(t, err)
	require.Len(t, relations, 1)

	assert.Equal(t, entities[1].ID, relations[0].SourceID)
	assert.Equal(t, entities[0].ID, relations[0].TargetID)
	assert.Equal(t, entity.RelationTreats, relations[0].Type)
	assert.Equal(t, 0.9, relations[0].Confidence)
}

func TestBuildRelationsRejectsUnknownEndpoint(t *testing.T) {
	_, byName, err := buildEntities([]SeedEntity{{Name: "Influenza", Type: "disease"}})
	require.NoError(t, err)

	_, err = buildRelations([]SeedRelation{
		{Source: "Influenza", Target: "Unicorn Pox", Type: "related_to"},
	}, byName)
	assert.Error(t, err)
}

func TestBuildRelationsDefaultsConfidence(t *testing.T) {
	_, byName, err := buildEntities([]SeedEntity{
		{Name: "Influenza", Type: "disease"},
		{Name: "Fever", Type: "symptom"},
	})
	require.NoError(t, err)

	relations, err := buildRelations([]SeedRelation{
		{Source: "Influenza", Target: "Fever", Type: "has_symptom"},
	}, byName)
	require.NoError(t, err)
	assert.Equal(t, 1.0, relations[0].Confidence)
}

func TestFactTextJoinsDescriptionAndRelations(t *testing.T) {
	flu := &entity.MedicalEntity{ID: "e-1", Name: "Influenza", Type: entity.EntityTypeDisease, Description: "A viral illness."}
	fever := &entity.MedicalEntity{ID: "e-2", Name: "Fever", Type: entity.EntityTypeSymptom}
	byID := map[string]*entity.MedicalEntity{"e-1": flu, "e-2": fever}
	relations := []*entity.MedicalRelation{
		{ID: "r-1", SourceID: "e-1", TargetID: "e-2", Type: entity.RelationHasSymptom},
	}

	text := factText(flu, relations, byID)
	assert.Equal(t, "Influenza: A viral illness.\nFever is a symptom of Influenza", text)
}

func TestFactTextEmptyForBareEntity(t *testing.T) {
	bare := &entity.MedicalEntity{ID: "e-9", Name: "Cough", Type: entity.EntityTypeSymptom}
	assert.Empty(t, factText(bare, nil, nil))
}
