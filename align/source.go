// Package align reconciles the entity metadata of independently distributed
// datasets.
//
// The pairwise Aligner joins two datasets on a shared foreign key and splits
// their entities into aligned pairs and singletons. The Reconciler merges
// any number of pairwise results into cross-dataset metadata groups with a
// no-loss, no-duplication guarantee: every distinct metadata view goes in,
// every one comes out exactly once.
package align

import (
	"context"

	"github.com/corpusloom/loom/model"
)

// Source provides the raw metadata records of one dataset.
type Source[R any] interface {
	// Dataset names the dataset the records belong to.
	Dataset() model.DatasetName

	// Records reads all records of the dataset.
	Records(ctx context.Context) ([]R, error)

	// Metadata builds the standardized metadata view of one record.
	Metadata(r R) model.EntityMetadata
}

// KeyFunc extracts the join key from a record. Return "" when the record has
// no value for the key; such records can never match, but they are still
// accounted for.
type KeyFunc[R any] func(r R) string
