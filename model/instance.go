package model

import "sort"

// Instance is one trainable unit of the corpus: the cross-dataset views of a
// single entity plus the annotations resolved for it. The fan-out step keeps
// at most one text annotation (caption or QA pair) per instance.
type Instance struct {
	Dataset    map[DatasetName]EntityMetadata `json:"dataset"`
	Caption    *Caption                       `json:"caption,omitempty"`
	QA         *QAPair                        `json:"qa_pair,omitempty"`
	Regions    []Region                       `json:"regions,omitempty"`
	SceneGraph *SceneGraph                    `json:"scene_graph,omitempty"`
	Trajectory *ActionTrajectory              `json:"trajectory,omitempty"`
}

// NewInstance builds the dataset map of an instance from a metadata group.
func NewInstance(group MetadataGroup) Instance {
	dataset := make(map[DatasetName]EntityMetadata, len(group))
	for _, em := range group {
		dataset[em.Dataset] = em
	}

	return Instance{Dataset: dataset}
}

// sortedDatasets returns the member dataset names in a stable order, so that
// "pick any one" accessors stay deterministic.
func (in Instance) sortedDatasets() []DatasetName {
	names := make([]DatasetName, 0, len(in.Dataset))
	for name := range in.Dataset {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}

// Modality returns the richest media type across the member datasets.
func (in Instance) Modality() MediaType {
	var max MediaType

	for name := range in.Dataset {
		if mt := DatasetModality[name]; mt > max {
			max = mt
		}
	}

	return max
}

// Split returns the source partition of the entity, taken from the first
// member view that declares one. Datasets without split partitioning leave
// it empty.
func (in Instance) Split() DatasetSplit {
	for _, name := range in.sortedDatasets() {
		if s := in.Dataset[name].Split; s != "" {
			return s
		}
	}

	return ""
}

// MediaPaths returns the raw media locations of one member view. The media is
// assumed identical across datasets describing the same entity, so any view
// serves.
func (in Instance) MediaPaths() []string {
	for _, name := range in.sortedDatasets() {
		em := in.Dataset[name]
		if len(em.Media) == 0 {
			continue
		}

		paths := make([]string, 0, len(em.Media))
		for _, m := range em.Media {
			paths = append(paths, m.Path)
		}

		return paths
	}

	return nil
}

// FeaturesPath returns the visual-features file of one member view that has
// one.
func (in Instance) FeaturesPath() string {
	for _, name := range in.sortedDatasets() {
		if p := in.Dataset[name].FeaturesPath; p != "" {
			return p
		}
	}

	return ""
}

// LanguageData flattens the language strings of every annotation the
// instance carries, in the fixed category order: caption, QA pair, regions,
// scene graph, trajectory.
func (in Instance) LanguageData() []string {
	var out []string

	if in.Caption != nil {
		out = append(out, in.Caption.LanguageData()...)
	}

	if in.QA != nil {
		out = append(out, in.QA.LanguageData()...)
	}

	for _, region := range in.Regions {
		out = append(out, region.LanguageData()...)
	}

	if in.SceneGraph != nil {
		out = append(out, in.SceneGraph.LanguageData()...)
	}

	if in.Trajectory != nil {
		out = append(out, in.Trajectory.LanguageData()...)
	}

	return out
}
