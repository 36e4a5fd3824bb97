package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
)

// fakeGuideStore is a minimal in-memory GuideStore double scoped to what
// the finalize and kickoff tests exercise: GetGuide, UpdateStatus, and
// Claim (a compare-and-set on the stored status, used by kickoff_test.go).
type fakeGuideStore struct {
	guides map[string]guide.Guide
}

func newFakeGuideStore(g guide.Guide) *fakeGuideStore {
	return &fakeGuideStore{guides: map[string]guide.Guide{g.ID: g}}
}

func (f *fakeGuideStore) GetGuide(ctx context.Context, guideID string) (guide.Guide, error) {
	g, ok := f.guides[guideID]
	if !ok {
		return guide.Guide{}, apperr.NewNotFound("guide not found")
	}
	return g, nil
}

func (f *fakeGuideStore) GetCompany(ctx context.Context, companyID string) (guide.Company, error) {
	return guide.Company{}, nil
}

func (f *fakeGuideStore) Claim(ctx context.Context, guideID string, from, to guide.Status) (bool, error) {
	g := f.guides[guideID]
	if g.Status != from {
		return false, nil
	}
	g.Status = to
	f.guides[guideID] = g
	return true, nil
}

func (f *fakeGuideStore) UpdateStatus(ctx context.Context, guideID string, status guide.Status, errorMessage string) error {
	g := f.guides[guideID]
	g.Status = status
	g.ErrorMessage = errorMessage
	f.guides[guideID] = g
	return nil
}

func (f *fakeGuideStore) UpsertArtifact(ctx context.Context, guideID string, artifactType guide.ArtifactType, contentJSON map[string]any) (guide.Artifact, error) {
	return guide.Artifact{}, nil
}

func (f *fakeGuideStore) GetArtifact(ctx context.Context, guideID string, artifactType guide.ArtifactType) (guide.Artifact, bool, error) {
	return guide.Artifact{}, false, nil
}

func (f *fakeGuideStore) CreateParseRun(ctx context.Context, run guide.ParseRun) error { return nil }

// fakeGenerationStore is a minimal in-memory GenerationStore double driven
// entirely by the counters FinalizePhase.Execute reads.
type fakeGenerationStore struct {
	totalCells int
	total      int
	success    int
}

func (f *fakeGenerationStore) GetCellGeneration(ctx context.Context, cellID, promptName, promptVersion string) (guide.CellGeneration, bool, error) {
	return guide.CellGeneration{}, false, nil
}

func (f *fakeGenerationStore) UpsertCellGeneration(ctx context.Context, cg guide.CellGeneration) error {
	return nil
}

func (f *fakeGenerationStore) CountTotalForGuide(ctx context.Context, guideID, promptName, promptVersion string) (int, error) {
	return f.total, nil
}

func (f *fakeGenerationStore) CountSuccessForGuide(ctx context.Context, guideID, promptName, promptVersion string) (int, error) {
	return f.success, nil
}

func (f *fakeGenerationStore) CountCellsForGuide(ctx context.Context, guideID string) (int, error) {
	return f.totalCells, nil
}

func TestFinalizePhase_IncompleteLeavesStatusUnchanged(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusGeneratingExamples})
	gens := &fakeGenerationStore{totalCells: 10, total: 6, success: 6}

	p := &FinalizePhase{Guides: guides, Generations: gens}
	result, err := p.Execute(context.Background(), "g1", "v1")
	require.NoError(t, err)

	assert.Equal(t, guide.StatusGeneratingExamples, result.Status)
	assert.Equal(t, guide.StatusGeneratingExamples, guides.guides["g1"].Status)
}

func TestFinalizePhase_CompleteAllSuccessMarksDone(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusGeneratingExamples})
	gens := &fakeGenerationStore{totalCells: 10, total: 10, success: 10}

	p := &FinalizePhase{Guides: guides, Generations: gens}
	result, err := p.Execute(context.Background(), "g1", "v1")
	require.NoError(t, err)

	assert.Equal(t, guide.StatusDone, result.Status)
	assert.Equal(t, 10, result.Success)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, guide.StatusDone, guides.guides["g1"].Status)
}

func TestFinalizePhase_CompleteWithFailuresMarksFailedGeneration(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusGeneratingExamples})
	gens := &fakeGenerationStore{totalCells: 10, total: 10, success: 8}

	p := &FinalizePhase{Guides: guides, Generations: gens}
	result, err := p.Execute(context.Background(), "g1", "v1")
	require.NoError(t, err)

	assert.Equal(t, guide.StatusFailedGeneration, result.Status)
	assert.Equal(t, 8, result.Success)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, guide.StatusFailedGeneration, guides.guides["g1"].Status)
}

func TestFinalizePhase_AlreadyTerminalIsNoOp(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusDone})
	gens := &fakeGenerationStore{totalCells: 10, total: 10, success: 10}

	p := &FinalizePhase{Guides: guides, Generations: gens}
	result, err := p.Execute(context.Background(), "g1", "v1")
	require.NoError(t, err)

	assert.Equal(t, guide.StatusDone, result.Status)
	assert.Zero(t, result.Total, "terminal short-circuit should not even query counters")
}

func TestFinalizePhase_ZeroCellsNeverFinalizes(t *testing.T) {
	guides := newFakeGuideStore(guide.Guide{ID: "g1", Status: guide.StatusGeneratingExamples})
	gens := &fakeGenerationStore{totalCells: 0, total: 0, success: 0}

	p := &FinalizePhase{Guides: guides, Generations: gens}
	result, err := p.Execute(context.Background(), "g1", "v1")
	require.NoError(t, err)

	assert.Equal(t, guide.StatusGeneratingExamples, result.Status)
	assert.Equal(t, guide.StatusGeneratingExamples, guides.guides["g1"].Status)
}
