package extract

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/loom/model"
)

func TestAlfredCaptions(t *testing.T) {
	dir := t.TempDir()

	writeFixture(t, filepath.Join(dir, "train", "task", "trial_x", "traj_data.json"), `{
		"task_id": "trial_x",
		"turk_annotations": {"anns": [
			{"high_descs": ["Walk to the mug. ", "Pick up the mug"]},
			{"high_descs": ["Go to mug.", "Grab mug", "Put mug on desk"]}
		]}
	}`)

	outputDir := filepath.Join(dir, "captions")
	extractor := NewAlfredCaptions([]string{filepath.Join(dir, "train")}, outputDir)

	assert.Equal(t, model.DatasetALFRED, extractor.Dataset())
	assert.Equal(t, model.AnnotationCaption, extractor.Annotation())

	written, err := extractor.Run(context.Background())
	require.NoError(t, err)

	// Two subgoal files plus the merged whole-task file.
	assert.Equal(t, 3, written)

	captions := readPayload[[]model.Caption](t, filepath.Join(outputDir, "trial_x_0.json"))
	require.Len(t, captions, 2)
	assert.Equal(t, "Walk to the mug.", captions[0].Text)
	assert.Equal(t, "Go to mug.", captions[1].Text)

	captions = readPayload[[]model.Caption](t, filepath.Join(outputDir, "trial_x_1.json"))
	require.Len(t, captions, 2)
	assert.Equal(t, "Pick up the mug.", captions[0].Text)
	assert.Equal(t, "Grab mug.", captions[1].Text)

	// The merged caption keeps each annotator's full instruction list.
	merged := readPayload[[]model.Caption](t, filepath.Join(outputDir, "trial_x.json"))
	require.Len(t, merged, 2)
	assert.Equal(t, "Walk to the mug. Pick up the mug.", merged[0].Text)
	assert.Equal(t, "Go to mug. Grab mug. Put mug on desk.", merged[1].Text)
}

const alfredPlanFixture = `{
	"task_id": "trial_x",
	"turk_annotations": {"anns": [
		{"high_descs": ["Walk to the mug.", "Put the mug on the desk."]}
	]},
	"plan": {
		"high_pddl": [
			{"discrete_action": {"action": "GotoLocation", "args": ["mug"]}, "planner_action": {"action": "GotoLocation"}, "high_idx": 0},
			{"discrete_action": {"action": "PickupObject", "args": ["mug"]}, "planner_action": {"action": "PickupObject"}, "high_idx": 1},
			{"discrete_action": {"action": "PutObject", "args": ["mug", "desk"]}, "planner_action": {"action": "PutObject"}, "high_idx": 2},
			{"discrete_action": {"action": "NoOp", "args": []}, "planner_action": {"action": "End"}, "high_idx": 3}
		],
		"low_actions": [
			{"discrete_action": {"action": "MoveAhead_25", "args": {}}, "high_idx": 0},
			{"discrete_action": {"action": "RotateLeft_90", "args": {}}, "high_idx": 0},
			{"discrete_action": {"action": "PickupObject", "args": {}}, "high_idx": 1},
			{"discrete_action": {"action": "PutObject", "args": {}}, "high_idx": 2}
		]
	}
}`

func TestAlfredTrajectoriesMergesTrailingSubgoal(t *testing.T) {
	dir := t.TempDir()

	writeFixture(t, filepath.Join(dir, "train", "task", "trial_x", "traj_data.json"), alfredPlanFixture)

	outputDir := filepath.Join(dir, "trajectories")
	extractor := NewAlfredTrajectories([]string{filepath.Join(dir, "train")}, outputDir)

	assert.Equal(t, model.DatasetALFRED, extractor.Dataset())
	assert.Equal(t, model.AnnotationTrajectory, extractor.Annotation())

	written, err := extractor.Run(context.Background())
	require.NoError(t, err)

	// Three planner subgoals against two instructions: the last two are
	// merged.
	assert.Equal(t, 2, written)

	first := readPayload[model.ActionTrajectory](t, filepath.Join(outputDir, "trial_x_0.json"))
	require.Len(t, first.LowLevelActions, 2)
	assert.Equal(t, "MoveAhead_25", first.LowLevelActions[0].Discrete.Action)
	require.Len(t, first.HighLevelActions, 1)
	assert.Equal(t, "GotoLocation", first.HighLevelActions[0].Discrete.Action)

	second := readPayload[model.ActionTrajectory](t, filepath.Join(outputDir, "trial_x_1.json"))
	require.Len(t, second.LowLevelActions, 2)
	assert.Equal(t, "PickupObject", second.LowLevelActions[0].Discrete.Action)
	assert.Equal(t, 1, second.LowLevelActions[0].HighIndex)
	assert.Equal(t, "PutObject", second.LowLevelActions[1].Discrete.Action)

	// The merged step indices line up with the instruction count.
	assert.Equal(t, 1, second.LowLevelActions[1].HighIndex)

	require.Len(t, second.HighLevelActions, 2)
	assert.Equal(t, "PickupObject", second.HighLevelActions[0].Discrete.Action)
	assert.Equal(t, "PutObject", second.HighLevelActions[1].Discrete.Action)
}

func TestAlfredTrajectoriesAligned(t *testing.T) {
	dir := t.TempDir()

	writeFixture(t, filepath.Join(dir, "train", "task", "trial_y", "traj_data.json"), `{
		"task_id": "trial_y",
		"turk_annotations": {"anns": [{"high_descs": ["Go.", "Grab."]}]},
		"plan": {
			"high_pddl": [
				{"discrete_action": {"action": "GotoLocation", "args": ["mug"]}, "planner_action": {"action": "GotoLocation"}, "high_idx": 0},
				{"discrete_action": {"action": "PickupObject", "args": ["mug"]}, "planner_action": {"action": "PickupObject"}, "high_idx": 1}
			],
			"low_actions": [
				{"discrete_action": {"action": "MoveAhead_25", "args": {}}, "high_idx": 0},
				{"discrete_action": {"action": "PickupObject", "args": {}}, "high_idx": 1}
			]
		}
	}`)

	outputDir := filepath.Join(dir, "trajectories")
	extractor := NewAlfredTrajectories([]string{filepath.Join(dir, "train")}, outputDir)

	written, err := extractor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	second := readPayload[model.ActionTrajectory](t, filepath.Join(outputDir, "trial_y_1.json"))
	require.Len(t, second.LowLevelActions, 1)
	require.Len(t, second.HighLevelActions, 1)
	assert.Equal(t, "PickupObject", second.HighLevelActions[0].Discrete.Action)
}
