package model

import "fmt"

// DatasetName identifies a supported source dataset.
type DatasetName string

// The datasets the builder knows how to ingest.
const (
	DatasetALFRED             DatasetName = "alfred"
	DatasetCOCO               DatasetName = "coco"
	DatasetEpicKitchens       DatasetName = "epic_kitchens"
	DatasetGQA                DatasetName = "gqa"
	DatasetVisualGenome       DatasetName = "visual_genome"
	DatasetTEACh              DatasetName = "teach"
	DatasetConceptualCaptions DatasetName = "conceptual_captions"
	DatasetSBUCaptions        DatasetName = "sbu_captions"
)

// Title returns the human-readable name of the dataset.
func (d DatasetName) Title() string {
	switch d {
	case DatasetALFRED:
		return "ALFRED"
	case DatasetCOCO:
		return "COCO"
	case DatasetEpicKitchens:
		return "EPIC-KITCHENS"
	case DatasetGQA:
		return "GQA"
	case DatasetVisualGenome:
		return "Visual Genome"
	case DatasetTEACh:
		return "TEACh"
	case DatasetConceptualCaptions:
		return "Conceptual Captions"
	case DatasetSBUCaptions:
		return "SBU Captions"
	default:
		return string(d)
	}
}

// ParseDatasetName converts a machine name into a DatasetName.
func ParseDatasetName(s string) (DatasetName, error) {
	switch d := DatasetName(s); d {
	case DatasetALFRED, DatasetCOCO, DatasetEpicKitchens, DatasetGQA,
		DatasetVisualGenome, DatasetTEACh, DatasetConceptualCaptions, DatasetSBUCaptions:
		return d, nil
	default:
		return "", fmt.Errorf("unknown dataset name: %q", s)
	}
}

// DatasetSplit is the partition of a source dataset an entity belongs to.
type DatasetSplit string

// Splits used across the supported datasets. The seen/unseen variants are
// specific to embodied datasets that distinguish known from novel scenes.
const (
	SplitTrain       DatasetSplit = "train"
	SplitValid       DatasetSplit = "valid"
	SplitTest        DatasetSplit = "test"
	SplitValidSeen   DatasetSplit = "valid_seen"
	SplitValidUnseen DatasetSplit = "valid_unseen"
)

// MediaType is the dimensionality of the raw media tensor.
type MediaType int

// Media tensor ranks.
const (
	// MediaImage = R, G, B
	MediaImage MediaType = 3
	// MediaVideo = R, G, B, Time
	MediaVideo MediaType = 4
	// MediaMulticam = R, G, B, Time, Camera
	MediaMulticam MediaType = 5
)

// String returns a string representation of the MediaType.
func (m MediaType) String() string {
	switch m {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaMulticam:
		return "multicam"
	default:
		return "unknown"
	}
}

// AnnotationType is one of the five annotation categories an entity may carry.
type AnnotationType string

// Annotation categories.
const (
	AnnotationCaption    AnnotationType = "caption"
	AnnotationQAPair     AnnotationType = "qa_pair"
	AnnotationRegion     AnnotationType = "region"
	AnnotationSceneGraph AnnotationType = "scene_graph"
	AnnotationTrajectory AnnotationType = "action_trajectory"
)

// AnnotationTypes lists every category in a stable order.
var AnnotationTypes = []AnnotationType{
	AnnotationCaption,
	AnnotationQAPair,
	AnnotationRegion,
	AnnotationSceneGraph,
	AnnotationTrajectory,
}

// DatasetModality maps each ingestible dataset to the media it distributes.
var DatasetModality = map[DatasetName]MediaType{
	DatasetCOCO:         MediaImage,
	DatasetGQA:          MediaImage,
	DatasetVisualGenome: MediaImage,
	DatasetEpicKitchens: MediaVideo,
	DatasetALFRED:       MediaVideo,
}

// AnnotationDatasets maps each annotation category to the datasets that
// contribute it.
var AnnotationDatasets = map[AnnotationType][]DatasetName{
	AnnotationQAPair:     {DatasetGQA},
	AnnotationCaption:    {DatasetCOCO, DatasetEpicKitchens, DatasetALFRED},
	AnnotationRegion:     {DatasetVisualGenome},
	AnnotationSceneGraph: {DatasetGQA},
	AnnotationTrajectory: {DatasetALFRED},
}

// DatasetAnnotations returns the annotation categories a dataset contributes,
// in the stable AnnotationTypes order.
func DatasetAnnotations(name DatasetName) []AnnotationType {
	var types []AnnotationType

	for _, at := range AnnotationTypes {
		for _, d := range AnnotationDatasets[at] {
			if d == name {
				types = append(types, at)
				break
			}
		}
	}

	return types
}
