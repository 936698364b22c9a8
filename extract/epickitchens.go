package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/corpusloom/loom/model"
)

// EpicKitchensCaptions writes the narration of every EPIC-KITCHENS annotation
// row as a single-caption payload file.
type EpicKitchensCaptions struct {
	inputPaths []string
	outputDir  string
	logger     *slog.Logger
}

// NewEpicKitchensCaptions creates the EPIC-KITCHENS caption extractor. The
// input paths are the annotation CSV files (EPIC_100_train.csv,
// EPIC_100_validation.csv).
func NewEpicKitchensCaptions(inputPaths []string, outputDir string, optFns ...func(o *Options)) *EpicKitchensCaptions {
	opts := applyOptions(optFns)

	return &EpicKitchensCaptions{
		inputPaths: inputPaths,
		outputDir:  outputDir,
		logger:     opts.Logger,
	}
}

// Dataset implements Extractor.
func (e *EpicKitchensCaptions) Dataset() model.DatasetName {
	return model.DatasetEpicKitchens
}

// Annotation implements Extractor.
func (e *EpicKitchensCaptions) Annotation() model.AnnotationType {
	return model.AnnotationCaption
}

// Run implements Extractor. Narration ids are unique across the releases, so
// every row maps to exactly one payload file.
func (e *EpicKitchensCaptions) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	written := 0

	for _, path := range e.inputPaths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, err := e.extractFile(path)
		if err != nil {
			return 0, err
		}

		written += n
	}

	e.logger.InfoContext(ctx, "extracted epic-kitchens captions", "narrations", written)

	return written, nil
}

func (e *EpicKitchensCaptions) extractFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)

	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	idCol, textCol := -1, -1

	for i, name := range header {
		switch name {
		case "narration_id":
			idCol = i
		case "narration":
			textCol = i
		}
	}

	if idCol < 0 || textCol < 0 {
		return 0, fmt.Errorf("csv %s is missing the narration_id or narration column", path)
	}

	written := 0

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return 0, fmt.Errorf("failed to read row of %s: %w", path, err)
		}

		captions := []model.Caption{{Text: row[textCol]}}

		name := row[idCol] + ".json"
		if err := writeJSON(filepath.Join(e.outputDir, name), captions); err != nil {
			return 0, err
		}

		written++
	}

	return written, nil
}
