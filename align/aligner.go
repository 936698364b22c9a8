package align

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corpusloom/loom/model"
)

// Match maps dataset names to the metadata views participating in one
// (partial) alignment. An aligned match holds exactly two entries, a
// non-aligned one exactly one.
type Match map[model.DatasetName]model.EntityMetadata

// Fingerprints returns the fingerprints of every view in the match.
func (m Match) Fingerprints() []string {
	fps := make([]string, 0, len(m))
	for _, em := range m {
		fps = append(fps, em.Fingerprint())
	}

	return fps
}

// Group converts the match into a metadata group.
func (m Match) Group() model.MetadataGroup {
	group := make(model.MetadataGroup, 0, len(m))
	for _, em := range m {
		group = append(group, em)
	}

	return group
}

// Stats summarizes one pairwise alignment.
type Stats struct {
	Source               model.DatasetName
	Target               model.DatasetName
	SourceTotal          int
	SourceIndexable      int
	TargetTotal          int
	Aligned              int
	NonAlignedFromSource int
	NonAlignedFromTarget int
}

// Result is the outcome of one pairwise alignment.
type Result struct {
	// Source and Target name the two datasets.
	Source model.DatasetName
	Target model.DatasetName

	// Aligned holds one two-entry match per joined entity pair.
	Aligned []Match

	// NonAligned holds one single-entry match per entity that found no
	// partner, target misses first, then source leftovers.
	NonAligned []Match

	// Stats carries the counters behind the advisory coverage report.
	Stats Stats
}

// Options configures an Aligner.
type Options struct {
	// Logger receives the advisory coverage warning. If nil, logging is
	// disabled.
	Logger *slog.Logger
}

// Aligner joins the entities of a source dataset against a target dataset on
// one foreign key each.
type Aligner[S, T any] struct {
	source    Source[S]
	target    Source[T]
	sourceKey KeyFunc[S]
	targetKey KeyFunc[T]
	logger    *slog.Logger
}

// NewAligner creates an Aligner from the two datasets and their key
// extractors.
func NewAligner[S, T any](source Source[S], target Source[T], sourceKey KeyFunc[S], targetKey KeyFunc[T], optFns ...func(o *Options)) *Aligner[S, T] {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Aligner[S, T]{
		source:    source,
		target:    target,
		sourceKey: sourceKey,
		targetKey: targetKey,
		logger:    logger,
	}
}

// Align reads both datasets and joins them: source records are indexed by
// key, then every target record is probed against the index. Cost is linear
// in the two record counts.
//
// Incomplete key coverage on the source side is surfaced as a warning and
// nothing else; the affected records simply end up non-aligned. Target
// records without a key are guaranteed misses and are reported non-aligned
// like any other unmatched target.
func (a *Aligner[S, T]) Align(ctx context.Context) (*Result, error) {
	sourceRecords, err := a.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s records: %w", a.source.Dataset(), err)
	}

	targetRecords, err := a.target.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s records: %w", a.target.Dataset(), err)
	}

	index := make(map[string]S, len(sourceRecords))

	for _, sr := range sourceRecords {
		key := a.sourceKey(sr)
		if key == "" {
			continue
		}

		index[key] = sr
	}

	if len(index) < len(sourceRecords) {
		a.logger.WarnContext(ctx, "incomplete key coverage on source dataset",
			"source", a.source.Dataset(),
			"target", a.target.Dataset(),
			"indexable", len(index),
			"total", len(sourceRecords),
		)
	}

	result := &Result{
		Source: a.source.Dataset(),
		Target: a.target.Dataset(),
	}

	alignedSource := make(map[string]struct{})

	var targetMisses []Match

	for _, tr := range targetRecords {
		if key := a.targetKey(tr); key != "" {
			if sr, ok := index[key]; ok {
				sm := a.source.Metadata(sr)
				tm := a.target.Metadata(tr)

				result.Aligned = append(result.Aligned, Match{
					sm.Dataset: sm,
					tm.Dataset: tm,
				})
				alignedSource[sm.Fingerprint()] = struct{}{}

				continue
			}
		}

		tm := a.target.Metadata(tr)
		targetMisses = append(targetMisses, Match{tm.Dataset: tm})
	}

	result.NonAligned = targetMisses

	for _, sr := range sourceRecords {
		sm := a.source.Metadata(sr)
		if _, ok := alignedSource[sm.Fingerprint()]; ok {
			continue
		}

		result.NonAligned = append(result.NonAligned, Match{sm.Dataset: sm})
	}

	result.Stats = Stats{
		Source:               a.source.Dataset(),
		Target:               a.target.Dataset(),
		SourceTotal:          len(sourceRecords),
		SourceIndexable:      len(index),
		TargetTotal:          len(targetRecords),
		Aligned:              len(result.Aligned),
		NonAlignedFromSource: len(result.NonAligned) - len(targetMisses),
		NonAlignedFromTarget: len(targetMisses),
	}

	a.logger.InfoContext(ctx, "pairwise alignment done",
		"source", result.Source,
		"target", result.Target,
		"aligned", result.Stats.Aligned,
		"non_aligned", len(result.NonAligned),
	)

	return result, nil
}
