package loom

import (
	"log/slog"

	"github.com/corpusloom/loom/assemble"
	"github.com/corpusloom/loom/db"
	"github.com/corpusloom/loom/model"
)

// Options configures a Pipeline.
type Options struct {
	// Datasets selects the datasets to ingest. Defaults to every dataset
	// the builder has a metadata source for.
	Datasets []model.DatasetName

	// NumWorkers sizes the assembly worker pool. Zero or negative uses
	// one worker per CPU.
	NumWorkers int

	// Storage selects the row serialization strategy. It must match the
	// storage of the store the pipeline writes into.
	Storage db.StorageType

	// Missing overrides the per-category policy applied when an
	// annotation payload file is absent.
	Missing map[model.AnnotationType]assemble.MissingPolicy

	// KeyPrefix prefixes the example keys written to the store.
	KeyPrefix string

	// OnBatch, when set, is called with the instance count of every
	// assembled group as it is written. Drives progress display.
	OnBatch func(instances int)

	// Logger receives structured progress output. If nil, logging is
	// disabled.
	Logger *slog.Logger
}

// DefaultOptions are the options used when none are given.
var DefaultOptions = Options{
	Datasets: []model.DatasetName{
		model.DatasetCOCO,
		model.DatasetVisualGenome,
		model.DatasetGQA,
		model.DatasetEpicKitchens,
		model.DatasetALFRED,
	},
	Storage:   db.StorageJSON,
	KeyPrefix: "pretrain",
}
