package model

import (
	"encoding/json"
	"fmt"
)

// SourceMedia locates one piece of raw media backing an entity.
type SourceMedia struct {
	URL    string    `json:"url,omitempty"`
	Type   MediaType `json:"media_type"`
	Path   string    `json:"path,omitempty"`
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
}

// EntityMetadata is one dataset's view of a single media entity: its
// dataset-local identifier, the media it refers to, and the locations of the
// annotation payload files extracted for it. It is immutable once built;
// alignment and grouping only ever copy it.
type EntityMetadata struct {
	// ID is the dataset-local identifier of the entity.
	ID string `json:"id"`

	// Dataset is the dataset this view belongs to.
	Dataset DatasetName `json:"dataset"`

	// Split is the source partition, when the dataset defines one.
	Split DatasetSplit `json:"split,omitempty"`

	// Media lists the raw media backing the entity.
	Media []SourceMedia `json:"media,omitempty"`

	// Annotations maps each annotation category this view carries to the
	// payload file holding it.
	Annotations map[AnnotationType]string `json:"annotations,omitempty"`

	// FeaturesPath locates the precomputed visual features, when present.
	FeaturesPath string `json:"features_path,omitempty"`
}

// AnnotationPath returns the payload file for the given category, or "" when
// this view does not carry it.
func (em EntityMetadata) AnnotationPath(at AnnotationType) string {
	return em.Annotations[at]
}

// Fingerprint returns a canonical string over every field. Two views compare
// equal exactly when their fingerprints do, which makes set accounting over
// metadata possible without defining ordering.
func (em EntityMetadata) Fingerprint() string {
	// encoding/json sorts map keys, so the encoding is canonical.
	data, err := json.Marshal(em)
	if err != nil {
		// All field types are marshalable; this is unreachable.
		panic(fmt.Sprintf("fingerprint metadata: %v", err))
	}

	return string(data)
}

// MetadataGroup holds the views of one underlying entity across datasets.
// A valid group is non-empty and never contains two views from the same
// dataset.
type MetadataGroup []EntityMetadata

// Validate checks the group invariants.
func (g MetadataGroup) Validate() error {
	if len(g) == 0 {
		return fmt.Errorf("metadata group is empty")
	}

	seen := make(map[DatasetName]struct{}, len(g))

	for _, em := range g {
		if _, ok := seen[em.Dataset]; ok {
			return fmt.Errorf("metadata group has two views from dataset %q", em.Dataset)
		}

		seen[em.Dataset] = struct{}{}
	}

	return nil
}

// Get returns the view contributed by the given dataset.
func (g MetadataGroup) Get(name DatasetName) (EntityMetadata, bool) {
	for _, em := range g {
		if em.Dataset == name {
			return em, true
		}
	}

	return EntityMetadata{}, false
}

// Datasets returns the dataset tags present in the group.
func (g MetadataGroup) Datasets() []DatasetName {
	names := make([]DatasetName, 0, len(g))
	for _, em := range g {
		names = append(names, em.Dataset)
	}

	return names
}

// AnnotationPaths collects the payload files for one category across all
// views, in group order.
func (g MetadataGroup) AnnotationPaths(at AnnotationType) []string {
	var paths []string

	for _, em := range g {
		if p := em.AnnotationPath(at); p != "" {
			paths = append(paths, p)
		}
	}

	return paths
}
