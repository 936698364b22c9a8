package extract

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/corpusloom/loom/model"
)

// alfredTask is the shared slice of a traj_data.json file the ALFRED
// extractors read.
type alfredTask struct {
	TaskID          string `json:"task_id"`
	TurkAnnotations struct {
		Anns []struct {
			HighDescs []string `json:"high_descs"`
		} `json:"anns"`
	} `json:"turk_annotations"`
	Plan struct {
		HighPddl []struct {
			Discrete      model.DiscreteAction `json:"discrete_action"`
			PlannerAction struct {
				Action string `json:"action"`
			} `json:"planner_action"`
		} `json:"high_pddl"`
		LowActions []model.LowLevelAction `json:"low_actions"`
	} `json:"plan"`
}

// numSubgoals returns the smallest instruction count across annotators.
func (t *alfredTask) numSubgoals() (int, error) {
	anns := t.TurkAnnotations.Anns
	if len(anns) == 0 {
		return 0, fmt.Errorf("alfred task %s has no annotations", t.TaskID)
	}

	num := len(anns[0].HighDescs)
	for _, ann := range anns[1:] {
		if len(ann.HighDescs) < num {
			num = len(ann.HighDescs)
		}
	}

	return num, nil
}

// alfredTaskFiles walks the split directories for traj_data.json files.
func alfredTaskFiles(ctx context.Context, dataDirs []string) ([]string, error) {
	var paths []string

	for _, dir := range dataDirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}

			if !d.IsDir() && d.Name() == "traj_data.json" {
				paths = append(paths, path)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
		}
	}

	return paths, nil
}

// prepCaption normalizes an instruction to end with a full stop so that whole
// sentences can be masked during pretraining.
func prepCaption(caption string) string {
	caption = strings.TrimRightFunc(caption, unicode.IsSpace)
	if !strings.HasSuffix(caption, ".") {
		caption += "."
	}

	return caption
}

// AlfredCaptions splits the annotator instructions of every ALFRED task into
// one caption list per subgoal, plus one merged whole-task caption list.
type AlfredCaptions struct {
	dataDirs  []string
	outputDir string
	logger    *slog.Logger
}

// NewAlfredCaptions creates the ALFRED caption extractor. The data dirs are
// the trajectory split directories (train, valid_seen).
func NewAlfredCaptions(dataDirs []string, outputDir string, optFns ...func(o *Options)) *AlfredCaptions {
	opts := applyOptions(optFns)

	return &AlfredCaptions{
		dataDirs:  dataDirs,
		outputDir: outputDir,
		logger:    opts.Logger,
	}
}

// Dataset implements Extractor.
func (e *AlfredCaptions) Dataset() model.DatasetName {
	return model.DatasetALFRED
}

// Annotation implements Extractor.
func (e *AlfredCaptions) Annotation() model.AnnotationType {
	return model.AnnotationCaption
}

// Run implements Extractor. Per subgoal, the payload holds one caption per
// annotator. The whole-task payload joins each annotator's instructions into
// a single caption.
func (e *AlfredCaptions) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	paths, err := alfredTaskFiles(ctx, e.dataDirs)
	if err != nil {
		return 0, err
	}

	written := 0

	for _, path := range paths {
		var task alfredTask
		if err := readJSON(path, &task); err != nil {
			return 0, err
		}

		n, err := e.extractTask(&task)
		if err != nil {
			return 0, err
		}

		written += n
	}

	e.logger.InfoContext(ctx, "extracted alfred captions", "files", written)

	return written, nil
}

func (e *AlfredCaptions) extractTask(task *alfredTask) (int, error) {
	numSubgoals, err := task.numSubgoals()
	if err != nil {
		return 0, err
	}

	anns := task.TurkAnnotations.Anns

	for highIdx := 0; highIdx < numSubgoals; highIdx++ {
		captions := make([]model.Caption, 0, len(anns))
		for _, ann := range anns {
			captions = append(captions, model.Caption{Text: prepCaption(ann.HighDescs[highIdx])})
		}

		name := fmt.Sprintf("%s_%d.json", task.TaskID, highIdx)
		if err := writeJSON(filepath.Join(e.outputDir, name), captions); err != nil {
			return 0, err
		}
	}

	merged := make([]model.Caption, 0, len(anns))

	for _, ann := range anns {
		parts := make([]string, 0, len(ann.HighDescs))
		for _, desc := range ann.HighDescs {
			parts = append(parts, prepCaption(desc))
		}

		merged = append(merged, model.Caption{Text: strings.Join(parts, " ")})
	}

	if err := writeJSON(filepath.Join(e.outputDir, task.TaskID+".json"), merged); err != nil {
		return 0, err
	}

	return numSubgoals + 1, nil
}

// AlfredTrajectories splits the planner trajectory of every ALFRED task into
// one action trajectory per subgoal.
type AlfredTrajectories struct {
	dataDirs  []string
	outputDir string
	logger    *slog.Logger
}

// NewAlfredTrajectories creates the ALFRED trajectory extractor. The data
// dirs are the trajectory split directories (train, valid_seen).
func NewAlfredTrajectories(dataDirs []string, outputDir string, optFns ...func(o *Options)) *AlfredTrajectories {
	opts := applyOptions(optFns)

	return &AlfredTrajectories{
		dataDirs:  dataDirs,
		outputDir: outputDir,
		logger:    opts.Logger,
	}
}

// Dataset implements Extractor.
func (e *AlfredTrajectories) Dataset() model.DatasetName {
	return model.DatasetALFRED
}

// Annotation implements Extractor.
func (e *AlfredTrajectories) Annotation() model.AnnotationType {
	return model.AnnotationTrajectory
}

// Run implements Extractor.
func (e *AlfredTrajectories) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	paths, err := alfredTaskFiles(ctx, e.dataDirs)
	if err != nil {
		return 0, err
	}

	written := 0

	for _, path := range paths {
		var task alfredTask
		if err := readJSON(path, &task); err != nil {
			return 0, err
		}

		trajectories, err := subgoalTrajectories(&task)
		if err != nil {
			return 0, err
		}

		for _, st := range trajectories {
			name := fmt.Sprintf("%s_%d.json", task.TaskID, st.highIdx)
			if err := writeJSON(filepath.Join(e.outputDir, name), st.trajectory); err != nil {
				return 0, err
			}

			written++
		}
	}

	e.logger.InfoContext(ctx, "extracted alfred trajectories", "files", written)

	return written, nil
}

type subgoalTrajectory struct {
	highIdx    int
	trajectory model.ActionTrajectory
}

// subgoalTrajectories groups the planner's low-level actions by subgoal. The
// planner may emit one more subgoal than the annotators wrote instructions
// for; in that case the last two subgoal trajectories are merged so that
// trajectories and instructions line up again.
func subgoalTrajectories(task *alfredTask) ([]subgoalTrajectory, error) {
	numLang, err := task.numSubgoals()
	if err != nil {
		return nil, err
	}

	high := task.Plan.HighPddl

	// A trailing "End" subgoal is planner bookkeeping without any executable
	// action.
	if len(high) > 0 && high[len(high)-1].PlannerAction.Action == "End" {
		high = high[:len(high)-1]
	}

	var trajectories []subgoalTrajectory

	for _, act := range task.Plan.LowActions {
		if act.HighIndex >= len(high) {
			return nil, fmt.Errorf("alfred task %s: low-level action references missing subgoal %d", task.TaskID, act.HighIndex)
		}

		last := len(trajectories) - 1
		if last < 0 || trajectories[last].highIdx != act.HighIndex {
			trajectories = append(trajectories, subgoalTrajectory{
				highIdx: act.HighIndex,
				trajectory: model.ActionTrajectory{
					HighLevelActions: []model.HighLevelAction{{Discrete: high[act.HighIndex].Discrete}},
				},
			})
			last++
		}

		trajectories[last].trajectory.LowLevelActions = append(trajectories[last].trajectory.LowLevelActions, act)
	}

	if len(high) == numLang || len(trajectories) == 0 {
		return trajectories, nil
	}

	if len(trajectories) < 2 {
		return nil, fmt.Errorf("alfred task %s: cannot merge trailing subgoal of a single-subgoal trajectory", task.TaskID)
	}

	lastTraj := trajectories[len(trajectories)-1].trajectory
	for i := range lastTraj.LowLevelActions {
		lastTraj.LowLevelActions[i].HighIndex = numLang - 1
	}

	prevTraj := trajectories[len(trajectories)-2].trajectory

	merged := model.ActionTrajectory{
		LowLevelActions:  append(append([]model.LowLevelAction{}, prevTraj.LowLevelActions...), lastTraj.LowLevelActions...),
		HighLevelActions: append(append([]model.HighLevelAction{}, prevTraj.HighLevelActions...), lastTraj.HighLevelActions...),
	}

	trajectories = trajectories[:len(trajectories)-2]
	trajectories = append(trajectories, subgoalTrajectory{highIdx: numLang - 1, trajectory: merged})

	return trajectories, nil
}
