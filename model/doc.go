// Package model defines the core types shared by every stage of the corpus
// builder.
//
// # Identity Types
//
//   - DatasetName: the source dataset an entity came from
//   - DatasetSplit: train/valid/test partition of the source dataset
//   - MediaType: dimensionality of the raw media tensor (image, video, multicam)
//   - AnnotationType: the five annotation categories an entity may carry
//
// # Data Types
//
//   - EntityMetadata: one dataset's view of a single media entity
//   - MetadataGroup: cross-dataset views of the same underlying entity
//   - Caption, QAPair, Region, SceneGraph, ActionTrajectory: annotation payloads
//   - Instance: one trainable unit, ready for storage
//   - Tensor: raw numeric feature blob
//
// The fixed tables DatasetModality and AnnotationDatasets encode which
// datasets exist, what media they hold and which annotation categories they
// contribute.
package model
