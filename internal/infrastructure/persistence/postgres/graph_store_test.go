package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkb-qa-api/internal/application/pipeline"
	"medkb-qa-api/internal/domain/entity"
)

type fakeEntityRepo struct {
	byID   map[string]*entity.MedicalEntity
	byName map[string]*entity.MedicalEntity
}

func newFakeEntityRepo(entities ...*entity.MedicalEntity) *fakeEntityRepo {
	r := &fakeEntityRepo{
		byID:   map[string]*entity.MedicalEntity{},
		byName: map[string]*entity.MedicalEntity{},
	}
	for _, e := range entities {
		r.byID[e.ID] = e
		r.byName[strings.ToLower(e.Name)] = e
		for _, alias := range e.Aliases {
			r.byName[strings.ToLower(alias)] = e
		}
	}
	return r
}

func (r *fakeEntityRepo) Create(_ context.Context, _ *entity.MedicalEntity) error       { return nil }
func (r *fakeEntityRepo) BatchCreate(_ context.Context, _ []*entity.MedicalEntity) error { return nil }

func (r *fakeEntityRepo) GetByID(_ context.Context, id string) (*entity.MedicalEntity, error) {
	return r.byID[id], nil
}

func (r *fakeEntityRepo) GetByIDs(_ context.Context, ids []string) ([]*entity.MedicalEntity, error) {
	out := make([]*entity.MedicalEntity, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEntityRepo) FindByName(_ context.Context, name string) (*entity.MedicalEntity, error) {
	return r.byName[strings.ToLower(name)], nil
}

func (r *fakeEntityRepo) SearchByName(_ context.Context, keyword string, limit int) ([]*entity.MedicalEntity, error) {
	var out []*entity.MedicalEntity
	lowered := strings.ToLower(keyword)
	for _, e := range r.byID {
		if strings.Contains(strings.ToLower(e.Name), lowered) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeRelationRepo struct {
	relations []*entity.MedicalRelation
}

func (r *fakeRelationRepo) Create(_ context.Context, _ *entity.MedicalRelation) error { return nil }
func (r *fakeRelationRepo) BatchCreate(_ context.Context, _ []*entity.MedicalRelation) error {
	return nil
}

func (r *fakeRelationRepo) FindByEntityAndTypes(ctx context.Context, entityID string, types []entity.RelationType) ([]*entity.MedicalRelation, error) {
	if len(types) == 0 {
		return r.FindNeighbors(ctx, entityID)
	}
	allowed := map[entity.RelationType]struct{}{}
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	var out []*entity.MedicalRelation
	for _, rel := range r.relations {
		if rel.SourceID != entityID && rel.TargetID != entityID {
			continue
		}
		if _, ok := allowed[rel.Type]; ok {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (r *fakeRelationRepo) FindNeighbors(_ context.Context, entityID string) ([]*entity.MedicalRelation, error) {
	var out []*entity.MedicalRelation
	for _, rel := range r.relations {
		if rel.SourceID == entityID || rel.TargetID == entityID {
			out = append(out, rel)
		}
	}
	return out, nil
}

func testGraph() (*fakeEntityRepo, *fakeRelationRepo) {
	flu := &entity.MedicalEntity{ID: "e-flu", Name: "Influenza", Type: entity.EntityTypeDisease, Description: "A viral illness.", Aliases: pq.StringArray{"flu"}}
	fever := &entity.MedicalEntity{ID: "e-fever", Name: "Fever", Type: entity.EntityTypeSymptom, Description: "Raised body temperature."}
	drug := &entity.MedicalEntity{ID: "e-osel", Name: "Oseltamivir", Type: entity.EntityTypeTreatment, Description: "An antiviral medication."}

	relations := &fakeRelationRepo{relations: []*entity.MedicalRelation{
		{ID: "r-1", SourceID: "e-flu", TargetID: "e-fever", Type: entity.RelationHasSymptom},
		{ID: "r-2", SourceID: "e-osel", TargetID: "e-flu", Type: entity.RelationTreats},
		// 环: fever 关联回 flu
		{ID: "r-3", SourceID: "e-fever", TargetID: "e-flu", Type: entity.RelationRelatedTo},
	}}
	return newFakeEntityRepo(flu, fever, drug), relations
}

func TestRelatedEntitiesVisitsCycleOnce(t *testing.T) {
	entities, relations := testGraph()
	store := NewGraphStore(nil, entities, relations)

	related, err := store.RelatedEntities(context.Background(), "e-flu", 3, nil)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, r := range related {
		seen[r.Entity.ID] += 1
	}
	// 即使图中有环，每个实体也只出现一次，起点不会回到结果里
	for id, count := range seen {
		assert.Equal(t, 1, count, "entity %s expanded more than once", id)
	}
	assert.NotContains(t, seen, "e-flu")
	assert.Contains(t, seen, "e-fever")
	assert.Contains(t, seen, "e-osel")
}

func TestRelatedEntitiesHonorsTypeFilter(t *testing.T) {
	entities, relations := testGraph()
	store := NewGraphStore(nil, entities, relations)

	related, err := store.RelatedEntities(context.Background(), "e-flu", 1, []entity.RelationType{entity.RelationTreats})
	require.NoError(t, err)

	require.Len(t, related, 1)
	assert.Equal(t, "e-osel", related[0].Entity.ID)
	assert.Equal(t, 1, related[0].Depth)
}

func TestExecuteEncodesDiseaseFactForTreatmentIntent(t *testing.T) {
	entities, relations := testGraph()
	store := NewGraphStore(nil, entities, relations)

	records, err := store.Execute(context.Background(), &pipeline.GraphQuery{
		Entities: []string{"flu"},
		Intent:   pipeline.IntentTreatment,
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	fact, _, ok := pipeline.DecodeFact(records[0].Content)
	require.True(t, ok, "treatment queries over diseases produce structured records")
	assert.Equal(t, "Influenza", fact.Disease)
	require.Len(t, fact.Treatments, 1)
	assert.Equal(t, "Oseltamivir", fact.Treatments[0].Name)
	assert.Equal(t, "Influenza", records[0].Metadata["entity_name"])
}

func TestExecutePlainRecordForSymptomIntent(t *testing.T) {
	entities, relations := testGraph()
	store := NewGraphStore(nil, entities, relations)

	records, err := store.Execute(context.Background(), &pipeline.GraphQuery{
		Entities: []string{"Influenza"},
		Intent:   pipeline.IntentSymptoms,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, _, ok := pipeline.DecodeFact(records[0].Content)
	assert.False(t, ok)
	assert.Contains(t, records[0].Content, "Influenza: A viral illness.")
	assert.Contains(t, records[0].Content, "Fever is a symptom of Influenza")
}

func TestExecuteResolvesUnknownNameByFuzzyMatch(t *testing.T) {
	entities, relations := testGraph()
	store := NewGraphStore(nil, entities, relations)

	records, err := store.Execute(context.Background(), &pipeline.GraphQuery{
		Entities: []string{"influen"},
		Intent:   pipeline.IntentInformation,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "e-flu", records[0].EntityID)
}
