package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/corpusloom/loom/model"
)

// VGRegions splits the Visual Genome region_descriptions.json release into
// one region list per image.
type VGRegions struct {
	inputPath string
	outputDir string
	logger    *slog.Logger
}

// NewVGRegions creates the Visual Genome region extractor.
func NewVGRegions(inputPath, outputDir string, optFns ...func(o *Options)) *VGRegions {
	opts := applyOptions(optFns)

	return &VGRegions{
		inputPath: inputPath,
		outputDir: outputDir,
		logger:    opts.Logger,
	}
}

// Dataset implements Extractor.
func (e *VGRegions) Dataset() model.DatasetName {
	return model.DatasetVisualGenome
}

// Annotation implements Extractor.
func (e *VGRegions) Annotation() model.AnnotationType {
	return model.AnnotationRegion
}

// Run implements Extractor. The release is already grouped per image; each
// entry becomes one payload file with the (x, y, width, height) boxes as
// float32.
func (e *VGRegions) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	var release []struct {
		ID      int64 `json:"id"`
		Regions []struct {
			X      float32 `json:"x"`
			Y      float32 `json:"y"`
			Width  float32 `json:"width"`
			Height float32 `json:"height"`
			Phrase string  `json:"phrase"`
		} `json:"regions"`
	}

	if err := readJSON(e.inputPath, &release); err != nil {
		return 0, err
	}

	written := 0

	for _, image := range release {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		regions := make([]model.Region, 0, len(image.Regions))
		for _, raw := range image.Regions {
			regions = append(regions, model.Region{
				BBox:    [4]float32{raw.X, raw.Y, raw.Width, raw.Height},
				Caption: raw.Phrase,
			})
		}

		name := fmt.Sprintf("%d.json", image.ID)
		if err := writeJSON(filepath.Join(e.outputDir, name), regions); err != nil {
			return 0, err
		}

		written++
	}

	e.logger.InfoContext(ctx, "extracted visual genome regions", "images", written)

	return written, nil
}
