package loom

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/corpusloom/loom/model"
)

// Paths fixes the on-disk layout of a corpus workspace. It is constructed
// once at the entry point and passed into every component that touches the
// filesystem; nothing reads ambient process-wide state.
//
// The layout below base:
//
//	datasets/<dataset>/   raw release files, as downloaded and unpacked
//	temp/<category>/      one payload file per entity per annotation category
//	features/<dataset>/   precomputed visual features
//	db/                   instance stores
type Paths struct {
	base string
}

// NewPaths creates the layout rooted at base.
func NewPaths(base string) Paths {
	return Paths{base: base}
}

// Base returns the workspace root.
func (p Paths) Base() string {
	return p.base
}

// Dataset returns the raw release directory of one dataset.
func (p Paths) Dataset(name model.DatasetName) string {
	return filepath.Join(p.base, "datasets", string(name))
}

// annotation returns the payload directory of one annotation category.
func (p Paths) annotation(at model.AnnotationType) string {
	name := string(at) + "s"
	if at == model.AnnotationTrajectory {
		name = "trajectories"
	}

	return filepath.Join(p.base, "temp", name)
}

// Captions returns the caption payload directory.
func (p Paths) Captions() string {
	return p.annotation(model.AnnotationCaption)
}

// QAPairs returns the question-answer payload directory.
func (p Paths) QAPairs() string {
	return p.annotation(model.AnnotationQAPair)
}

// Regions returns the region description payload directory.
func (p Paths) Regions() string {
	return p.annotation(model.AnnotationRegion)
}

// SceneGraphs returns the scene graph payload directory.
func (p Paths) SceneGraphs() string {
	return p.annotation(model.AnnotationSceneGraph)
}

// Trajectories returns the action trajectory payload directory.
func (p Paths) Trajectories() string {
	return p.annotation(model.AnnotationTrajectory)
}

// Features returns the visual features directory of one dataset.
func (p Paths) Features(name model.DatasetName) string {
	return filepath.Join(p.base, "features", string(name))
}

// Storage returns the directory holding the instance stores.
func (p Paths) Storage() string {
	return filepath.Join(p.base, "db")
}

// DB returns the instance store file for one logical partition.
func (p Paths) DB(name string) string {
	return filepath.Join(p.Storage(), name+".db")
}

// EnsureDirs creates every directory of the layout that is not derived from
// a dataset release.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Storage()}

	for _, at := range model.AnnotationTypes {
		dirs = append(dirs, p.annotation(at))
	}

	for name := range model.DatasetModality {
		dirs = append(dirs, p.Dataset(name), p.Features(name))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return nil
}
