package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/corpusloom/loom/model"
)

// CocoImage is one entry of the images array of a COCO captions release file.
type CocoImage struct {
	ID       ID     `json:"id"`
	FileName string `json:"file_name"`
	CocoURL  string `json:"coco_url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`

	// Split records which release file the entry came from.
	Split model.DatasetSplit `json:"-"`
}

// CocoConfig locates the COCO distribution files.
type CocoConfig struct {
	// CaptionTrainPath and CaptionValPath are the captions release files
	// (captions_train2017.json, captions_val2017.json).
	CaptionTrainPath string
	CaptionValPath   string

	// ImagesDir holds the downloaded images.
	ImagesDir string

	// CaptionsDir holds the extracted per-image caption payload files.
	CaptionsDir string

	// FeaturesDir holds the precomputed visual features, if any.
	FeaturesDir string
}

// Coco reads COCO image metadata from the captions release files.
type Coco struct {
	cfg CocoConfig
}

// NewCoco creates a COCO metadata source.
func NewCoco(cfg CocoConfig) *Coco {
	return &Coco{cfg: cfg}
}

// Dataset implements align.Source.
func (c *Coco) Dataset() model.DatasetName {
	return model.DatasetCOCO
}

// Records reads the images arrays of the train and valid release files.
func (c *Coco) Records(ctx context.Context) ([]CocoImage, error) {
	files := []struct {
		path  string
		split model.DatasetSplit
	}{
		{c.cfg.CaptionTrainPath, model.SplitTrain},
		{c.cfg.CaptionValPath, model.SplitValid},
	}

	var records []CocoImage

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var release struct {
			Images []CocoImage `json:"images"`
		}

		if err := readJSON(f.path, &release); err != nil {
			return nil, fmt.Errorf("failed to read coco release: %w", err)
		}

		for i := range release.Images {
			release.Images[i].Split = f.split
		}

		records = append(records, release.Images...)
	}

	return records, nil
}

// Metadata implements align.Source.
func (c *Coco) Metadata(r CocoImage) model.EntityMetadata {
	return model.EntityMetadata{
		ID:      r.ID.String(),
		Dataset: model.DatasetCOCO,
		Split:   r.Split,
		Media: []model.SourceMedia{{
			URL:    r.CocoURL,
			Type:   model.MediaImage,
			Path:   filepath.Join(c.cfg.ImagesDir, r.FileName),
			Width:  r.Width,
			Height: r.Height,
		}},
		Annotations: map[model.AnnotationType]string{
			model.AnnotationCaption: filepath.Join(c.cfg.CaptionsDir, r.ID.String()+".json"),
		},
		FeaturesPath: c.featuresPath(r.ID),
	}
}

// featuresPath zero-pads numeric image ids to twelve digits, matching the
// file names the feature extraction tooling emits.
func (c *Coco) featuresPath(id ID) string {
	if c.cfg.FeaturesDir == "" {
		return ""
	}

	name := id.String()
	if n, err := strconv.ParseInt(name, 10, 64); err == nil {
		name = fmt.Sprintf("%012d", n)
	}

	return filepath.Join(c.cfg.FeaturesDir, name+".pt")
}
