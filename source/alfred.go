package source

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/corpusloom/loom/model"
)

// alfredFrameSize is the edge length of the rendered ALFRED frames.
const alfredFrameSize = 300

// AlfredImage is one rendered frame of an ALFRED trajectory, tagged with the
// subgoal and low-level action it belongs to.
type AlfredImage struct {
	HighIdx   int    `json:"high_idx"`
	LowIdx    int    `json:"low_idx"`
	ImageName string `json:"image_name"`
}

// AlfredSubgoal is one (task, subgoal) pair of an ALFRED trajectory. ALFRED
// annotates language per subgoal, so the subgoal is the alignable unit, not
// the task.
type AlfredSubgoal struct {
	TaskID    string
	SceneNum  int
	HighIdx   int
	Split     model.DatasetSplit
	FramesDir string

	// Images holds the last rendered frame of every low-level action within
	// the subgoal, in action order.
	Images []AlfredImage
}

// AlfredConfig locates the ALFRED distribution files.
type AlfredConfig struct {
	// DataDir is the trajectory data root holding the train and valid_seen
	// split directories.
	DataDir string

	// CaptionsDir holds the extracted per-subgoal caption payload files.
	CaptionsDir string

	// TrajectoriesDir holds the extracted per-subgoal action trajectory
	// payload files.
	TrajectoriesDir string

	// FeaturesDir holds the precomputed visual features, if any.
	FeaturesDir string
}

// Alfred reads ALFRED trajectory metadata, one record per subgoal.
type Alfred struct {
	cfg AlfredConfig
}

// NewAlfred creates an ALFRED metadata source.
func NewAlfred(cfg AlfredConfig) *Alfred {
	return &Alfred{cfg: cfg}
}

// Dataset implements align.Source.
func (a *Alfred) Dataset() model.DatasetName {
	return model.DatasetALFRED
}

// Records walks the train and valid_seen split directories for traj_data.json
// files and fans every task out into its subgoals. The subgoal count of a
// task is the smallest instruction count across its annotators, so every
// subgoal record is guaranteed a language annotation.
func (a *Alfred) Records(ctx context.Context) ([]AlfredSubgoal, error) {
	splits := []struct {
		dir   string
		split model.DatasetSplit
	}{
		{filepath.Join(a.cfg.DataDir, "train"), model.SplitTrain},
		{filepath.Join(a.cfg.DataDir, "valid_seen"), model.SplitValid},
	}

	var records []AlfredSubgoal

	for _, s := range splits {
		err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}

			if d.IsDir() || d.Name() != "traj_data.json" {
				return nil
			}

			subgoals, err := a.readTask(path, s.split)
			if err != nil {
				return err
			}

			records = append(records, subgoals...)

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read alfred release: %w", err)
		}
	}

	return records, nil
}

// Metadata implements align.Source.
func (a *Alfred) Metadata(r AlfredSubgoal) model.EntityMetadata {
	media := make([]model.SourceMedia, 0, len(r.Images))
	for _, img := range r.Images {
		media = append(media, model.SourceMedia{
			Type:   model.MediaImage,
			Path:   filepath.Join(r.FramesDir, img.ImageName),
			Width:  alfredFrameSize,
			Height: alfredFrameSize,
		})
	}

	subgoalName := fmt.Sprintf("%s_%d.json", r.TaskID, r.HighIdx)

	return model.EntityMetadata{
		ID:      r.TaskID,
		Dataset: model.DatasetALFRED,
		Split:   r.Split,
		Media:   media,
		Annotations: map[model.AnnotationType]string{
			model.AnnotationCaption:    filepath.Join(a.cfg.CaptionsDir, subgoalName),
			model.AnnotationTrajectory: filepath.Join(a.cfg.TrajectoriesDir, subgoalName),
		},
		FeaturesPath: a.featuresPath(r),
	}
}

func (a *Alfred) featuresPath(r AlfredSubgoal) string {
	if a.cfg.FeaturesDir == "" {
		return ""
	}

	return filepath.Join(a.cfg.FeaturesDir, fmt.Sprintf("%s_%d_%d.pt", r.TaskID, r.SceneNum, r.HighIdx))
}

// readTask decodes one traj_data.json file into its subgoal records. The
// rendered frames live in the raw_images directory next to the file.
func (a *Alfred) readTask(path string, split model.DatasetSplit) ([]AlfredSubgoal, error) {
	var task struct {
		Images []AlfredImage `json:"images"`
		Scene  struct {
			SceneNum int `json:"scene_num"`
		} `json:"scene"`
		TaskID          string `json:"task_id"`
		TurkAnnotations struct {
			Anns []struct {
				HighDescs []string `json:"high_descs"`
			} `json:"anns"`
		} `json:"turk_annotations"`
	}

	if err := readJSON(path, &task); err != nil {
		return nil, err
	}

	if len(task.TurkAnnotations.Anns) == 0 {
		return nil, fmt.Errorf("alfred task %s has no annotations", task.TaskID)
	}

	numSubgoals := len(task.TurkAnnotations.Anns[0].HighDescs)
	for _, ann := range task.TurkAnnotations.Anns[1:] {
		if len(ann.HighDescs) < numSubgoals {
			numSubgoals = len(ann.HighDescs)
		}
	}

	framesDir := filepath.Join(filepath.Dir(path), "raw_images")

	subgoals := make([]AlfredSubgoal, 0, numSubgoals)

	for highIdx := 0; highIdx < numSubgoals; highIdx++ {
		subgoals = append(subgoals, AlfredSubgoal{
			TaskID:    task.TaskID,
			SceneNum:  task.Scene.SceneNum,
			HighIdx:   highIdx,
			Split:     split,
			FramesDir: framesDir,
			Images:    subgoalImages(task.Images, highIdx),
		})
	}

	return subgoals, nil
}

// subgoalImages keeps the last frame of every low-level action within the
// subgoal. ALFRED renders multiple frames per action, including filler frames
// between actions; the last one shows the action's effect.
func subgoalImages(images []AlfredImage, highIdx int) []AlfredImage {
	var kept []AlfredImage

	prevLowIdx := -1

	for i := len(images) - 1; i >= 0; i-- {
		img := images[i]
		if img.HighIdx != highIdx {
			continue
		}

		if img.LowIdx != prevLowIdx {
			prevLowIdx = img.LowIdx
			kept = append(kept, img)
		}
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	return kept
}
