package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
)

// fakeMatrixStore is a minimal in-memory MatrixStore double scoped to the
// read paths KickoffGenerationPhase.Execute and chunk planning depend on.
type fakeMatrixStore struct {
	levels []guide.Level
	comps  []guide.Competency
}

func (f *fakeMatrixStore) UpsertLevel(ctx context.Context, guideID, code string, position int) (guide.Level, error) {
	return guide.Level{}, nil
}

func (f *fakeMatrixStore) UpsertCompetency(ctx context.Context, guideID, name string, position int) (guide.Competency, error) {
	return guide.Competency{}, nil
}

func (f *fakeMatrixStore) UpsertCell(ctx context.Context, guideID, competencyID, levelID, definitionText, sourceArtifactID string) (guide.GuideCell, error) {
	return guide.GuideCell{}, nil
}

func (f *fakeMatrixStore) ListLevels(ctx context.Context, guideID string) ([]guide.Level, error) {
	return f.levels, nil
}

func (f *fakeMatrixStore) ListCompetencies(ctx context.Context, guideID string) ([]guide.Competency, error) {
	return f.comps, nil
}

func (f *fakeMatrixStore) ListCells(ctx context.Context, guideID, levelID string, competencyIDs []string) ([]guide.GuideCell, error) {
	return nil, nil
}

func threeLevelsFourComps() *fakeMatrixStore {
	return &fakeMatrixStore{
		levels: []guide.Level{{ID: "l1", Code: "L3"}, {ID: "l2", Code: "L4"}, {ID: "l3", Code: "L5"}},
		comps: []guide.Competency{
			{ID: "c1", Name: "Incident Response"},
			{ID: "c2", Name: "Mentorship"},
			{ID: "c3", Name: "System Design"},
			{ID: "c4", Name: "Cross-team Communication"},
		},
	}
}

func TestKickoffGenerationPhase_ClaimsAndPlansOneChunkPerLevel(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusMatrixParsed})
	matrix := threeLevelsFourComps()

	p := &KickoffGenerationPhase{Guides: guides, Matrix: matrix}
	result, err := p.Execute(context.Background(), "g1", DefaultChunkSize)
	require.NoError(t, err)

	assert.Equal(t, guide.StatusGeneratingExamples, result.Status)
	assert.Equal(t, guide.StatusGeneratingExamples, guides.guides["g1"].Status)
	// 4 competencies fit in a single chunk (<=8), one chunk per level.
	assert.Len(t, result.Plan, 3)
	for _, c := range result.Plan {
		assert.Equal(t, 0, c.Start)
		assert.Equal(t, 4, c.End)
	}
}

func TestKickoffGenerationPhase_DuplicateDeliveryIsNoOp(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusMatrixParsed})
	matrix := threeLevelsFourComps()
	p := &KickoffGenerationPhase{Guides: guides, Matrix: matrix}

	first, err := p.Execute(context.Background(), "g1", DefaultChunkSize)
	require.NoError(t, err)
	require.NotEmpty(t, first.Plan)

	// Second delivery of the same kickoff_generation task finds the guide
	// already past MATRIX_PARSED: no plan, just the current status.
	second, err := p.Execute(context.Background(), "g1", DefaultChunkSize)
	require.NoError(t, err)
	assert.Equal(t, guide.StatusGeneratingExamples, second.Status)
	assert.Empty(t, second.Plan)
}

func TestKickoffGenerationPhase_AlreadyDoneIsNoOp(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusDone})
	matrix := threeLevelsFourComps()
	p := &KickoffGenerationPhase{Guides: guides, Matrix: matrix}

	result, err := p.Execute(context.Background(), "g1", DefaultChunkSize)
	require.NoError(t, err)
	assert.Equal(t, guide.StatusDone, result.Status)
	assert.Empty(t, result.Plan)
}

func TestKickoffGenerationPhase_NotYetParsedIsRejected(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusParsingMatrix})
	matrix := threeLevelsFourComps()
	p := &KickoffGenerationPhase{Guides: guides, Matrix: matrix}

	_, err := p.Execute(context.Background(), "g1", DefaultChunkSize)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeValidation, appErr.Code)
}

func TestKickoffGenerationPhase_LargeMatrixUsesMultipleChunksPerLevel(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusMatrixParsed})
	comps := make([]guide.Competency, 10)
	for i := range comps {
		comps[i] = guide.Competency{ID: string(rune('a' + i)), Name: "Competency"}
	}
	matrix := &fakeMatrixStore{levels: []guide.Level{{ID: "l1", Code: "L3"}}, comps: comps}

	p := &KickoffGenerationPhase{Guides: guides, Matrix: matrix}
	result, err := p.Execute(context.Background(), "g1", 6)
	require.NoError(t, err)

	// 10 competencies, chunk size 6 (>8 keeps the default): two chunks.
	assert.Len(t, result.Plan, 2)
	assert.Equal(t, 0, result.Plan[0].Start)
	assert.Equal(t, 6, result.Plan[0].End)
	assert.Equal(t, 6, result.Plan[1].Start)
	assert.Equal(t, 10, result.Plan[1].End)
}
