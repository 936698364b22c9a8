// Package loom builds a unified multimodal pretraining corpus out of
// independently distributed datasets.
//
// Several public datasets annotate overlapping sets of images and videos:
// COCO carries captions, Visual Genome region descriptions, GQA questions
// and scene graphs, EPIC-KITCHENS narrations, ALFRED action trajectories.
// Loom joins their per-entity metadata on the foreign keys the releases
// share, reconciles the pairwise joins into cross-dataset groups without
// losing or duplicating a single record, fans every group out into
// trainable instances, and persists the result in a compact
// randomly-addressable store.
//
// The stages live in their own packages:
//
//   - source:   per-dataset metadata readers
//   - fetch:    release download and archive extraction
//   - extract:  one payload file per entity per annotation category
//   - align:    pairwise alignment and N-way reconciliation
//   - assemble: instance fan-out over a worker pool
//   - db:       the SQLite-backed instance store
//
// This package ties them together: Paths fixes the on-disk layout once at
// startup, Pipeline runs metadata through alignment, assembly and storage.
//
//	paths := loom.NewPaths("/data/corpus")
//
//	store, err := db.New(paths.DB("instances"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	pipeline := loom.NewPipeline(paths)
//	if err := pipeline.Build(ctx, store); err != nil {
//		log.Fatal(err)
//	}
package loom
