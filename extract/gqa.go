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

// GQAQAPairs splits the GQA question releases into one question/answer list
// per image.
type GQAQAPairs struct {
	inputPaths []string
	outputDir  string
	logger     *slog.Logger
}

// NewGQAQAPairs creates the GQA question extractor. The input paths are
// question release files, each a JSON object keyed by question id.
func NewGQAQAPairs(inputPaths []string, outputDir string, optFns ...func(o *Options)) *GQAQAPairs {
	opts := applyOptions(optFns)

	return &GQAQAPairs{
		inputPaths: inputPaths,
		outputDir:  outputDir,
		logger:     opts.Logger,
	}
}

// Dataset implements Extractor.
func (e *GQAQAPairs) Dataset() model.DatasetName {
	return model.DatasetGQA
}

// Annotation implements Extractor.
func (e *GQAQAPairs) Annotation() model.AnnotationType {
	return model.AnnotationQAPair
}

// Run implements Extractor. Questions are grouped by image id across all
// input files; each image's questions are ordered by question id.
func (e *GQAQAPairs) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	grouped := make(map[string][]model.QAPair)

	for _, path := range e.inputPaths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var release map[string]struct {
			ImageID  string        `json:"imageId"`
			Question string        `json:"question"`
			Answer   model.Answers `json:"answer"`
		}

		if err := readJSON(path, &release); err != nil {
			return 0, err
		}

		for qid, raw := range release {
			grouped[raw.ImageID] = append(grouped[raw.ImageID], model.QAPair{
				ID:       qid,
				Question: raw.Question,
				Answer:   raw.Answer,
			})
		}
	}

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		pairs := grouped[id]
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })

		if err := writeJSON(filepath.Join(e.outputDir, id+".json"), pairs); err != nil {
			return 0, err
		}
	}

	e.logger.InfoContext(ctx, "extracted gqa qa pairs", "images", len(ids))

	return len(ids), nil
}

// GQASceneGraphs splits the GQA scene graph releases into one scene graph per
// image.
type GQASceneGraphs struct {
	inputPaths []string
	outputDir  string
	logger     *slog.Logger
}

// NewGQASceneGraphs creates the GQA scene graph extractor. The input paths
// are the scene graph release files (train_sceneGraphs.json,
// val_sceneGraphs.json).
func NewGQASceneGraphs(inputPaths []string, outputDir string, optFns ...func(o *Options)) *GQASceneGraphs {
	opts := applyOptions(optFns)

	return &GQASceneGraphs{
		inputPaths: inputPaths,
		outputDir:  outputDir,
		logger:     opts.Logger,
	}
}

// Dataset implements Extractor.
func (e *GQASceneGraphs) Dataset() model.DatasetName {
	return model.DatasetGQA
}

// Annotation implements Extractor.
func (e *GQASceneGraphs) Annotation() model.AnnotationType {
	return model.AnnotationSceneGraph
}

// Run implements Extractor. Unlike the other categories a scene graph payload
// is a single object, not a list.
func (e *GQASceneGraphs) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	written := 0

	for _, path := range e.inputPaths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var release map[string]model.SceneGraph
		if err := readJSON(path, &release); err != nil {
			return 0, err
		}

		ids := make([]string, 0, len(release))
		for id := range release {
			ids = append(ids, id)
		}

		sort.Strings(ids)

		for _, id := range ids {
			if err := writeJSON(filepath.Join(e.outputDir, id+".json"), release[id]); err != nil {
				return 0, err
			}

			written++
		}
	}

	e.logger.InfoContext(ctx, "extracted gqa scene graphs", "images", written)

	return written, nil
}
