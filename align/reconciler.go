package align

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/corpusloom/loom/model"
)

// Reconciler merges any number of pairwise alignment results into metadata
// groups, anchored on one common dataset that participates in every result.
//
// Accounting invariant: every distinct metadata view that enters through the
// results leaves in exactly one group. Reconcile verifies this when the
// returned sequence is consumed to the end and reports violations as an
// error-level advisory without changing the output.
type Reconciler struct {
	common model.DatasetName
	logger *slog.Logger
}

// NewReconciler creates a Reconciler anchored on the given common dataset.
func NewReconciler(common model.DatasetName, optFns ...func(o *Options)) *Reconciler {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Reconciler{common: common, logger: logger}
}

// commonMapping indexes the aligned matches of one result by the id of their
// common-dataset view, keeping first-seen id order for deterministic output.
type commonMapping struct {
	ids     []string
	matches map[string]Match
}

// Reconcile merges the results into groups, in three layers:
//
//  1. ids aligned in every result become one group merging all their views,
//  2. ids aligned in some results but not all become one group each, merging
//     the views of the results that have them,
//  3. non-aligned entries become one single-view group each; entries tagged
//     with the common dataset are deduplicated against everything already
//     emitted under that id.
//
// Group order follows the layers; within a layer, first-seen id order.
func (r *Reconciler) Reconcile(ctx context.Context, results ...*Result) iter.Seq2[model.MetadataGroup, error] {
	return func(yield func(model.MetadataGroup, error) bool) {
		if len(results) == 0 {
			return
		}

		inFingerprints := make(map[string]struct{})
		for _, result := range results {
			for _, match := range result.Aligned {
				for _, fp := range match.Fingerprints() {
					inFingerprints[fp] = struct{}{}
				}
			}

			for _, match := range result.NonAligned {
				for _, fp := range match.Fingerprints() {
					inFingerprints[fp] = struct{}{}
				}
			}
		}

		mappings := make([]commonMapping, 0, len(results))

		for _, result := range results {
			mapping := commonMapping{matches: make(map[string]Match, len(result.Aligned))}

			for _, match := range result.Aligned {
				em, ok := match[r.common]
				if !ok {
					yield(nil, fmt.Errorf("aligned %s/%s match has no %s view to anchor on",
						result.Source, result.Target, r.common))
					return
				}

				if _, exists := mapping.matches[em.ID]; !exists {
					mapping.ids = append(mapping.ids, em.ID)
				}

				mapping.matches[em.ID] = match
			}

			mappings = append(mappings, mapping)
		}

		inAll := func(id string) bool {
			for _, mapping := range mappings {
				if _, ok := mapping.matches[id]; !ok {
					return false
				}
			}

			return true
		}

		// merge collects the views present for one common id across all
		// mappings; the earliest result wins when two carry the same
		// dataset.
		merge := func(id string) model.MetadataGroup {
			var group model.MetadataGroup

			taken := make(map[model.DatasetName]struct{})

			for _, mapping := range mappings {
				match, ok := mapping.matches[id]
				if !ok {
					continue
				}

				for ds, em := range match {
					if _, ok := taken[ds]; ok {
						continue
					}

					taken[ds] = struct{}{}
					group = append(group, em)
				}
			}

			return group
		}

		outFingerprints := make(map[string]struct{})
		complete := true

		emit := func(group model.MetadataGroup) bool {
			for _, em := range group {
				outFingerprints[em.Fingerprint()] = struct{}{}
			}

			if !yield(group, nil) {
				complete = false
				return false
			}

			return true
		}

		// Layer 1: ids aligned across every result.
		for _, id := range mappings[0].ids {
			if !inAll(id) {
				continue
			}

			if !emit(merge(id)) {
				return
			}
		}

		// Layer 2: ids aligned in at least one result but not all.
		partialSeen := make(map[string]struct{})

		var partialIDs []string

		for _, mapping := range mappings {
			for _, id := range mapping.ids {
				if inAll(id) {
					continue
				}

				if _, ok := partialSeen[id]; ok {
					continue
				}

				partialSeen[id] = struct{}{}
				partialIDs = append(partialIDs, id)
			}
		}

		for _, id := range partialIDs {
			if !emit(merge(id)) {
				return
			}
		}

		// Layer 3: non-aligned entries, deduplicated on the common id
		// against the partially aligned layer and each other. Entries
		// without a common-dataset view are always distinct.
		for _, result := range results {
			for _, match := range result.NonAligned {
				if em, ok := match[r.common]; ok {
					if _, dup := partialSeen[em.ID]; dup {
						continue
					}

					partialSeen[em.ID] = struct{}{}
				}

				if !emit(match.Group()) {
					return
				}
			}
		}

		if !complete {
			return
		}

		missing := 0
		for fp := range inFingerprints {
			if _, ok := outFingerprints[fp]; !ok {
				missing++
			}
		}

		extra := 0
		for fp := range outFingerprints {
			if _, ok := inFingerprints[fp]; !ok {
				extra++
			}
		}

		if missing > 0 || extra > 0 {
			r.logger.ErrorContext(ctx, "reconciliation accounting mismatch",
				"common", r.common,
				"in", len(inFingerprints),
				"out", len(outFingerprints),
				"missing", missing,
				"extra", extra,
			)
		}
	}
}
