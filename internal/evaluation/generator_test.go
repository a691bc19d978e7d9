package evaluation

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitystory/humanstudy/internal/model"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func testConfig() *model.EvaluationConfig {
	return &model.EvaluationConfig{
		Papers: []model.Method{
			{ID: "infinitystory", Name: "InfinityStory", Directory: "infinitystory"},
			{ID: "movieagent", Name: "MovieAgent", Directory: "movieagent"},
			{ID: "videogenofthought", Name: "VideoGen-of-Thought", Directory: "vgot"},
			{ID: "animdirector", Name: "AnimDirector", Directory: "anim"},
		},
		EvaluationClips: []string{"ep1.mp4", "ep2.mp4", "ep3.mp4", "ep4.mp4", "ep5.mp4", "ep6.mp4"},
		EvaluationSections: []model.Section{
			{ID: "motion", Name: "Motion Smoothness", Order: 2},
			{ID: "background", Name: "Background Consistency", Order: 1},
			{ID: "characters", Name: "Character Consistency", Order: 3},
		},
		ClipsPerSection: 2,
		WholisticCriteria: []model.Criterion{
			{ID: "narrative", Name: "Narrative"},
			{ID: "quality", Name: "Quality"},
		},
	}
}

func TestGenerateComparisonsInvariants(t *testing.T) {
	cfg := testConfig()

	for seed := uint64(0); seed < 50; seed++ {
		units, err := GenerateComparisons(cfg, ComparisonOptions{}, seeded(seed))
		require.NoError(t, err)
		require.Len(t, units, DefaultComparisonCount)

		for i, u := range units {
			assert.Equal(t, i, u.EpisodeIndex)
			assert.Equal(t, cfg.EvaluationClips[i], u.Episode)

			seen := map[string]bool{}
			hasReference := false
			for j, slot := range model.Slots {
				id := u.Mapping[slot]
				assert.Equal(t, u.Methods[j].ID, id)
				assert.False(t, seen[id], "method %s repeated in unit %d", id, i)
				seen[id] = true
				if id == DefaultReferenceMethod {
					hasReference = true
				}
			}
			assert.True(t, hasReference)
			assert.Len(t, seen, 3)
		}
	}
}

func TestGenerateComparisonsFewerEpisodesThanRequested(t *testing.T) {
	cfg := testConfig()
	cfg.EvaluationClips = cfg.EvaluationClips[:2]

	units, err := GenerateComparisons(cfg, ComparisonOptions{Episodes: 4}, seeded(1))
	require.NoError(t, err)
	assert.Len(t, units, 2)
}

func TestGenerateComparisonsFailsFast(t *testing.T) {
	cfg := testConfig()

	_, err := GenerateComparisons(cfg, ComparisonOptions{ReferenceID: "missing"}, seeded(1))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Papers = cfg.Papers[:2]
	units, err := GenerateComparisons(cfg, ComparisonOptions{}, seeded(1))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Nil(t, units)
}

func TestSlotAssignmentIsNotTiedToIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.Papers = cfg.Papers[:3]
	r := seeded(42)

	counts := map[model.Slot]int{}
	const rounds = 300
	for i := 0; i < rounds; i++ {
		units, err := GenerateComparisons(cfg, ComparisonOptions{Episodes: 1}, r)
		require.NoError(t, err)
		for slot, id := range units[0].Mapping {
			if id == DefaultReferenceMethod {
				counts[slot]++
			}
		}
	}

	for _, slot := range model.Slots {
		assert.Greater(t, counts[slot], rounds/6, "reference rarely placed in slot %s", slot)
	}
}

func TestGenerateSegmentTasks(t *testing.T) {
	cfg := testConfig()

	tasks, err := GenerateSegmentTasks(cfg, seeded(7))
	require.NoError(t, err)
	require.Len(t, tasks, len(cfg.EvaluationSections)*len(cfg.Papers)*cfg.ClipsPerSection)

	perSection := len(cfg.Papers) * cfg.ClipsPerSection
	wantOrder := []string{"background", "motion", "characters"}
	for i, task := range tasks {
		assert.Equal(t, wantOrder[i/perSection], task.Section.ID)
		assert.Contains(t, cfg.EvaluationClips[:cfg.ClipsPerSection], task.Clip)
	}

	unique := map[model.TaskRef]bool{}
	for _, task := range tasks {
		unique[task.Ref()] = true
	}
	assert.Len(t, unique, len(tasks))
}

func TestGenerateSegmentTasksDefaultsClipsPerSection(t *testing.T) {
	cfg := testConfig()
	cfg.ClipsPerSection = 0

	tasks, err := GenerateSegmentTasks(cfg, seeded(7))
	require.NoError(t, err)
	assert.Len(t, tasks, len(cfg.EvaluationSections)*len(cfg.Papers)*model.DefaultClipsPerSection)
}

func TestGenerateSegmentTasksFailsWithoutSections(t *testing.T) {
	cfg := testConfig()
	cfg.EvaluationSections = nil

	_, err := GenerateSegmentTasks(cfg, seeded(1))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRestoreSegmentTasksKeepsPersistedOrder(t *testing.T) {
	cfg := testConfig()
	tasks, err := GenerateSegmentTasks(cfg, seeded(3))
	require.NoError(t, err)
	order := TaskOrder(tasks)

	reordered := testConfig()
	reordered.Papers = []model.Method{cfg.Papers[3], cfg.Papers[1], cfg.Papers[0], cfg.Papers[2]}

	restored, err := RestoreSegmentTasks(reordered, order)
	require.NoError(t, err)
	require.Len(t, restored, len(order))
	assert.Equal(t, order, TaskOrder(restored))
}

func TestRestoreSegmentTasksDropsStaleTasks(t *testing.T) {
	cfg := testConfig()
	tasks, err := GenerateSegmentTasks(cfg, seeded(3))
	require.NoError(t, err)
	order := TaskOrder(tasks)

	shrunk := testConfig()
	shrunk.Papers = shrunk.Papers[:3]

	restored, err := RestoreSegmentTasks(shrunk, order)
	require.NoError(t, err)

	var want []model.TaskRef
	for _, ref := range order {
		if ref.MethodID != "animdirector" {
			want = append(want, ref)
		}
	}
	assert.Equal(t, want, TaskOrder(restored))
}
