package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/corpusloom/loom/model"
)

// VGImage is one entry of the Visual Genome image_data.json file. CocoID is
// the foreign key into COCO and is empty for images without a COCO
// counterpart.
type VGImage struct {
	ImageID ID     `json:"image_id"`
	CocoID  ID     `json:"coco_id"`
	URL     string `json:"url"`
}

// VisualGenomeConfig locates the Visual Genome distribution files.
type VisualGenomeConfig struct {
	// ImageDataPath is the image_data.json release file.
	ImageDataPath string

	// ImagesDir holds the downloaded images.
	ImagesDir string

	// RegionsDir holds the extracted per-image region payload files.
	RegionsDir string
}

// VisualGenome reads Visual Genome image metadata.
type VisualGenome struct {
	cfg VisualGenomeConfig
}

// NewVisualGenome creates a Visual Genome metadata source.
func NewVisualGenome(cfg VisualGenomeConfig) *VisualGenome {
	return &VisualGenome{cfg: cfg}
}

// Dataset implements align.Source.
func (v *VisualGenome) Dataset() model.DatasetName {
	return model.DatasetVisualGenome
}

// Records reads the image_data.json release file. Visual Genome has no split
// partitioning.
func (v *VisualGenome) Records(ctx context.Context) ([]VGImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []VGImage
	if err := readJSON(v.cfg.ImageDataPath, &records); err != nil {
		return nil, fmt.Errorf("failed to read visual genome release: %w", err)
	}

	return records, nil
}

// Metadata implements align.Source.
func (v *VisualGenome) Metadata(r VGImage) model.EntityMetadata {
	return model.EntityMetadata{
		ID:      r.ImageID.String(),
		Dataset: model.DatasetVisualGenome,
		Media: []model.SourceMedia{{
			URL:  r.URL,
			Type: model.MediaImage,
			Path: filepath.Join(v.cfg.ImagesDir, r.ImageID.String()+".jpg"),
		}},
		Annotations: map[model.AnnotationType]string{
			model.AnnotationRegion: filepath.Join(v.cfg.RegionsDir, r.ImageID.String()+".json"),
		},
	}
}
