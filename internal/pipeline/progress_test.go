package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/domain"
)

func threeSteps() *catalog.Catalog {
	return catalog.MustNew(
		catalog.Step{Key: "a", Label: "Step A", Endpoint: "/a", Kind: domain.PayloadStructured},
		catalog.Step{Key: "b", Endpoint: "/b", Kind: domain.PayloadStructured},
		catalog.Step{Key: "c", Endpoint: "/c", Kind: domain.PayloadStructured},
	)
}

// --- ProgressTracker Tests ---

func TestProgressTracker_InitialState(t *testing.T) {
	p := NewProgressTracker(threeSteps())

	assert.Equal(t, map[string]domain.StepStatus{
		"a": domain.StepStatusPending,
		"b": domain.StepStatusPending,
		"c": domain.StepStatusPending,
	}, p.Map())

	snap := p.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "Step A", snap[0].Label)
	assert.Equal(t, "b", snap[1].Label)
}

func TestProgressTracker_Transitions(t *testing.T) {
	p := NewProgressTracker(threeSteps())

	require.NoError(t, p.Transition("a", domain.StepStatusInFlight))
	assert.Equal(t, "a", p.InFlight())

	// PENDING → COMPLETED недопустим
	assert.ErrorIs(t, p.Transition("b", domain.StepStatusCompleted), ErrInvalidTransition)

	// Второй шаг в IN_FLIGHT недопустим
	assert.ErrorIs(t, p.Transition("b", domain.StepStatusInFlight), ErrStepInFlight)

	require.NoError(t, p.Transition("a", domain.StepStatusCompleted))
	assert.Empty(t, p.InFlight())

	// Из COMPLETED выхода нет
	assert.ErrorIs(t, p.Transition("a", domain.StepStatusInFlight), ErrInvalidTransition)

	assert.ErrorIs(t, p.Transition("zzz", domain.StepStatusInFlight), ErrUnknownStep)
}

func TestProgressTracker_NoProgressAfterFailure(t *testing.T) {
	p := NewProgressTracker(threeSteps())

	require.NoError(t, p.Transition("a", domain.StepStatusInFlight))
	require.NoError(t, p.Transition("a", domain.StepStatusFailed))
	assert.Equal(t, "a", p.Failed())

	assert.ErrorIs(t, p.Transition("b", domain.StepStatusInFlight), ErrRunAborted)

	status, _ := p.Status("b")
	assert.Equal(t, domain.StepStatusPending, status)
	assert.Equal(t, 2, p.Count(domain.StepStatusPending))
}

// --- Context Tests ---

func TestContext_ResultsKeepInsertionOrder(t *testing.T) {
	pc := NewContext("job", nil)
	pc.setResult("z", 1)
	pc.setResult("a", 2)
	pc.setResult("z", 3)

	assert.Equal(t, []NamedResult{{Key: "z", Value: 3}, {Key: "a", Value: 2}}, pc.Results())

	m := pc.ResultMap()
	m["a"] = 100
	v, _ := pc.Result("a")
	assert.Equal(t, 2, v)
}

// --- DeriveJobName Tests ---

func TestDeriveJobName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		exts []string
		want string
	}{
		{"las", "Main_St.las", nil, "Main_St"},
		{"one extension only", "tile.tar.gz", nil, "tile.tar"},
		{"no extension", "README", nil, "README"},
		{"dot file", ".las", nil, ".las"},
		{"directory stripped", "/data/in/Main_St.las", nil, "Main_St"},
		{"matching ext", "Main_St.LAS", []string{".las", ".laz"}, "Main_St"},
		{"ext without dot", "Main_St.laz", []string{"laz"}, "Main_St"},
		{"non-matching ext", "Main_St.txt", []string{".las"}, "Main_St.txt"},
		{"empty", "", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveJobName(tt.in, tt.exts...))
		})
	}
}

func TestHasExtension(t *testing.T) {
	assert.True(t, HasExtension("Main_St.las"))
	assert.True(t, HasExtension("Main_St.LAS", ".las", ".laz"))
	assert.True(t, HasExtension("scan.laz", "las", "laz"))
	assert.False(t, HasExtension("notes.txt", ".las"))
	assert.False(t, HasExtension("README", ".las"))
}
