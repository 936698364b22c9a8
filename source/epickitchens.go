package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/corpusloom/loom/model"
)

// Narration is one row of an EPIC-KITCHENS annotation CSV: a narrated action
// segment within one video, bounded by a frame range.
type Narration struct {
	NarrationID   string
	ParticipantID string
	VideoID       string
	Narration     string
	StartFrame    int
	StopFrame     int
	Split         model.DatasetSplit
}

// EpicKitchensConfig locates the EPIC-KITCHENS distribution files.
type EpicKitchensConfig struct {
	// TrainCSVPath and ValCSVPath are the annotation CSV files
	// (EPIC_100_train.csv, EPIC_100_validation.csv).
	TrainCSVPath string
	ValCSVPath   string

	// FramesDir holds the extracted RGB frames, one subdirectory per video.
	FramesDir string

	// CaptionsDir holds the extracted per-narration caption payload files.
	CaptionsDir string
}

// EpicKitchens reads EPIC-KITCHENS narration metadata from the annotation
// CSV files.
type EpicKitchens struct {
	cfg EpicKitchensConfig
}

// NewEpicKitchens creates an EPIC-KITCHENS metadata source.
func NewEpicKitchens(cfg EpicKitchensConfig) *EpicKitchens {
	return &EpicKitchens{cfg: cfg}
}

// Dataset implements align.Source.
func (e *EpicKitchens) Dataset() model.DatasetName {
	return model.DatasetEpicKitchens
}

// Records reads the train and valid annotation CSV files.
func (e *EpicKitchens) Records(ctx context.Context) ([]Narration, error) {
	files := []struct {
		path  string
		split model.DatasetSplit
	}{
		{e.cfg.TrainCSVPath, model.SplitTrain},
		{e.cfg.ValCSVPath, model.SplitValid},
	}

	var records []Narration

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := readNarrationCSV(f.path, f.split)
		if err != nil {
			return nil, err
		}

		records = append(records, rows...)
	}

	return records, nil
}

// Metadata implements align.Source. The media is the full frame range of the
// narration, one entry per RGB frame.
func (e *EpicKitchens) Metadata(r Narration) model.EntityMetadata {
	videoDir := filepath.Join(e.cfg.FramesDir, r.VideoID)

	media := make([]model.SourceMedia, 0, r.StopFrame-r.StartFrame+1)
	for frame := r.StartFrame; frame <= r.StopFrame; frame++ {
		media = append(media, model.SourceMedia{
			Type: model.MediaImage,
			Path: filepath.Join(videoDir, fmt.Sprintf("frame_%010d.jpg", frame)),
		})
	}

	return model.EntityMetadata{
		ID:      r.NarrationID,
		Dataset: model.DatasetEpicKitchens,
		Split:   r.Split,
		Media:   media,
		Annotations: map[model.AnnotationType]string{
			model.AnnotationCaption: filepath.Join(e.cfg.CaptionsDir, r.NarrationID+".json"),
		},
	}
}

// readNarrationCSV decodes one annotation CSV. Columns are resolved through
// the header row, so column order differences between releases do not matter.
func readNarrationCSV(path string, split model.DatasetSplit) ([]Narration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read epic-kitchens release: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read epic-kitchens header of %s: %w", path, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}

	for _, name := range []string{"narration_id", "participant_id", "video_id", "narration", "start_frame", "stop_frame"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("epic-kitchens csv %s is missing column %q", path, name)
		}
	}

	var records []Narration

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read epic-kitchens row of %s: %w", path, err)
		}

		startFrame, err := strconv.Atoi(row[cols["start_frame"]])
		if err != nil {
			return nil, fmt.Errorf("epic-kitchens csv %s has invalid start_frame: %w", path, err)
		}

		stopFrame, err := strconv.Atoi(row[cols["stop_frame"]])
		if err != nil {
			return nil, fmt.Errorf("epic-kitchens csv %s has invalid stop_frame: %w", path, err)
		}

		records = append(records, Narration{
			NarrationID:   row[cols["narration_id"]],
			ParticipantID: row[cols["participant_id"]],
			VideoID:       row[cols["video_id"]],
			Narration:     row[cols["narration"]],
			StartFrame:    startFrame,
			StopFrame:     stopFrame,
			Split:         split,
		})
	}

	return records, nil
}
