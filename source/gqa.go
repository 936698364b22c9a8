package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/corpusloom/loom/model"
)

// GQAImage describes one image referenced by the GQA scene graph releases.
// GQA reuses Visual Genome image identifiers, so ID doubles as the foreign
// key into Visual Genome.
type GQAImage struct {
	ID       ID
	FileName string
	Width    int
	Height   int
	Split    model.DatasetSplit
}

// GQAConfig locates the GQA distribution files.
type GQAConfig struct {
	// SceneGraphTrainPath and SceneGraphValPath are the scene graph release
	// files (train_sceneGraphs.json, val_sceneGraphs.json).
	SceneGraphTrainPath string
	SceneGraphValPath   string

	// ImagesDir holds the downloaded images.
	ImagesDir string

	// SceneGraphsDir holds the extracted per-image scene graph payload files.
	SceneGraphsDir string

	// QAPairsDir holds the extracted per-image question/answer payload files.
	QAPairsDir string
}

// GQA reads GQA image metadata from the scene graph release files.
type GQA struct {
	cfg GQAConfig
}

// NewGQA creates a GQA metadata source.
func NewGQA(cfg GQAConfig) *GQA {
	return &GQA{cfg: cfg}
}

// Dataset implements align.Source.
func (g *GQA) Dataset() model.DatasetName {
	return model.DatasetGQA
}

// Records reads the train and valid scene graph release files. The releases
// key scene graphs by image id; records are returned in sorted id order per
// file so runs are reproducible.
func (g *GQA) Records(ctx context.Context) ([]GQAImage, error) {
	files := []struct {
		path  string
		split model.DatasetSplit
	}{
		{g.cfg.SceneGraphTrainPath, model.SplitTrain},
		{g.cfg.SceneGraphValPath, model.SplitValid},
	}

	var records []GQAImage

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var release map[string]struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		}

		if err := readJSON(f.path, &release); err != nil {
			return nil, fmt.Errorf("failed to read gqa release: %w", err)
		}

		ids := make([]string, 0, len(release))
		for id := range release {
			ids = append(ids, id)
		}

		sort.Strings(ids)

		for _, id := range ids {
			records = append(records, GQAImage{
				ID:       ID(id),
				FileName: id + ".jpg",
				Width:    release[id].Width,
				Height:   release[id].Height,
				Split:    f.split,
			})
		}
	}

	return records, nil
}

// Metadata implements align.Source.
func (g *GQA) Metadata(r GQAImage) model.EntityMetadata {
	return model.EntityMetadata{
		ID:      r.ID.String(),
		Dataset: model.DatasetGQA,
		Split:   r.Split,
		Media: []model.SourceMedia{{
			Type:   model.MediaImage,
			Path:   filepath.Join(g.cfg.ImagesDir, r.FileName),
			Width:  r.Width,
			Height: r.Height,
		}},
		Annotations: map[model.AnnotationType]string{
			model.AnnotationSceneGraph: filepath.Join(g.cfg.SceneGraphsDir, r.ID.String()+".json"),
			model.AnnotationQAPair:     filepath.Join(g.cfg.QAPairsDir, r.ID.String()+".json"),
		},
	}
}
