package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/corpusloom/loom/model"
)

// CocoCaptions splits the annotations arrays of the COCO captions release
// files into one caption list per image.
type CocoCaptions struct {
	inputPaths []string
	outputDir  string
	logger     *slog.Logger
}

// NewCocoCaptions creates the COCO caption extractor. The input paths are the
// captions release files (captions_train2017.json, captions_val2017.json).
func NewCocoCaptions(inputPaths []string, outputDir string, optFns ...func(o *Options)) *CocoCaptions {
	opts := applyOptions(optFns)

	return &CocoCaptions{
		inputPaths: inputPaths,
		outputDir:  outputDir,
		logger:     opts.Logger,
	}
}

// Dataset implements Extractor.
func (e *CocoCaptions) Dataset() model.DatasetName {
	return model.DatasetCOCO
}

// Annotation implements Extractor.
func (e *CocoCaptions) Annotation() model.AnnotationType {
	return model.AnnotationCaption
}

// Run implements Extractor. Captions are grouped by image id across all input
// files and written in caption order per image.
func (e *CocoCaptions) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	type rawCaption struct {
		ImageID int64  `json:"image_id"`
		Caption string `json:"caption"`
	}

	grouped := make(map[int64][]model.Caption)

	for _, path := range e.inputPaths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var release struct {
			Annotations []rawCaption `json:"annotations"`
		}

		if err := readJSON(path, &release); err != nil {
			return 0, err
		}

		for _, raw := range release.Annotations {
			grouped[raw.ImageID] = append(grouped[raw.ImageID], model.Caption{Text: raw.Caption})
		}
	}

	ids := make([]int64, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		name := fmt.Sprintf("%d.json", id)
		if err := writeJSON(filepath.Join(e.outputDir, name), grouped[id]); err != nil {
			return 0, err
		}
	}

	e.logger.InfoContext(ctx, "extracted coco captions", "images", len(ids))

	return len(ids), nil
}
