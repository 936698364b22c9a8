package loom

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/corpusloom/loom/align"
	"github.com/corpusloom/loom/assemble"
	"github.com/corpusloom/loom/db"
	"github.com/corpusloom/loom/model"
	"github.com/corpusloom/loom/source"
)

// Pipeline runs dataset metadata through alignment, reconciliation, instance
// assembly and storage.
//
// COCO, Visual Genome and GQA describe overlapping images: Visual Genome
// records carry the COCO id of their image, GQA ids are Visual Genome image
// ids. The pipeline aligns the two pairs, reconciles them around Visual
// Genome, and appends EPIC-KITCHENS and ALFRED entities as standalone
// groups; neither shares entities with the image datasets.
type Pipeline struct {
	paths  Paths
	opts   Options
	logger *slog.Logger

	coco   *source.Coco
	vg     *source.VisualGenome
	gqa    *source.GQA
	epic   *source.EpicKitchens
	alfred *source.Alfred

	stats []align.Stats
}

// NewPipeline creates a Pipeline over the given workspace layout.
func NewPipeline(paths Paths, optFns ...func(o *Options)) *Pipeline {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultOptions.KeyPrefix
	}

	if len(opts.Datasets) == 0 {
		opts.Datasets = DefaultOptions.Datasets
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		paths:  paths,
		opts:   opts,
		logger: logger,
		coco: source.NewCoco(source.CocoConfig{
			CaptionTrainPath: filepath.Join(paths.Dataset(model.DatasetCOCO), "captions_train2017.json"),
			CaptionValPath:   filepath.Join(paths.Dataset(model.DatasetCOCO), "captions_val2017.json"),
			ImagesDir:        filepath.Join(paths.Dataset(model.DatasetCOCO), "images"),
			CaptionsDir:      paths.Captions(),
			FeaturesDir:      paths.Features(model.DatasetCOCO),
		}),
		vg: source.NewVisualGenome(source.VisualGenomeConfig{
			ImageDataPath: filepath.Join(paths.Dataset(model.DatasetVisualGenome), "image_data.json"),
			ImagesDir:     filepath.Join(paths.Dataset(model.DatasetVisualGenome), "images"),
			RegionsDir:    paths.Regions(),
		}),
		gqa: source.NewGQA(source.GQAConfig{
			SceneGraphTrainPath: filepath.Join(paths.Dataset(model.DatasetGQA), "train_sceneGraphs.json"),
			SceneGraphValPath:   filepath.Join(paths.Dataset(model.DatasetGQA), "val_sceneGraphs.json"),
			ImagesDir:           filepath.Join(paths.Dataset(model.DatasetGQA), "images"),
			SceneGraphsDir:      paths.SceneGraphs(),
			QAPairsDir:          paths.QAPairs(),
		}),
		epic: source.NewEpicKitchens(source.EpicKitchensConfig{
			TrainCSVPath: filepath.Join(paths.Dataset(model.DatasetEpicKitchens), "EPIC_100_train.csv"),
			ValCSVPath:   filepath.Join(paths.Dataset(model.DatasetEpicKitchens), "EPIC_100_validation.csv"),
			FramesDir:    filepath.Join(paths.Dataset(model.DatasetEpicKitchens), "frames"),
			CaptionsDir:  paths.Captions(),
		}),
		alfred: source.NewAlfred(source.AlfredConfig{
			DataDir:         filepath.Join(paths.Dataset(model.DatasetALFRED), "json_2.1.0"),
			CaptionsDir:     paths.Captions(),
			TrajectoriesDir: paths.Trajectories(),
			FeaturesDir:     paths.Features(model.DatasetALFRED),
		}),
	}
}

// AlignmentStats returns the coverage counters of the pairwise alignments
// performed by the last Groups iteration.
func (p *Pipeline) AlignmentStats() []align.Stats {
	return p.stats
}

func (p *Pipeline) enabled(name model.DatasetName) bool {
	return slices.Contains(p.opts.Datasets, name)
}

// Groups streams every metadata group of the selected datasets: the
// reconciled image-dataset groups first, then the standalone video-dataset
// entities.
func (p *Pipeline) Groups(ctx context.Context) iter.Seq2[model.MetadataGroup, error] {
	return func(yield func(model.MetadataGroup, error) bool) {
		p.stats = nil

		if !p.imageGroups(ctx, yield) {
			return
		}

		if p.enabled(model.DatasetEpicKitchens) {
			if !yieldSingletons[source.Narration](ctx, p.epic, yield) {
				return
			}
		}

		if p.enabled(model.DatasetALFRED) {
			if !yieldSingletons[source.AlfredSubgoal](ctx, p.alfred, yield) {
				return
			}
		}
	}
}

// imageGroups emits the groups of the three image datasets. When alignment
// partners are missing the remaining datasets degrade to singleton groups.
func (p *Pipeline) imageGroups(ctx context.Context, yield func(model.MetadataGroup, error) bool) bool {
	var results []*align.Result

	withLogger := func(o *align.Options) { o.Logger = p.logger }

	if p.enabled(model.DatasetVisualGenome) && p.enabled(model.DatasetCOCO) {
		aligner := align.NewAligner(p.vg, p.coco,
			func(r source.VGImage) string { return r.CocoID.String() },
			func(r source.CocoImage) string { return r.ID.String() },
			withLogger,
		)

		result, err := aligner.Align(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("failed to align visual genome with coco: %w", err))
			return false
		}

		p.stats = append(p.stats, result.Stats)
		results = append(results, result)
	}

	if p.enabled(model.DatasetGQA) && p.enabled(model.DatasetVisualGenome) {
		aligner := align.NewAligner(p.gqa, p.vg,
			func(r source.GQAImage) string { return r.ID.String() },
			func(r source.VGImage) string { return r.ImageID.String() },
			withLogger,
		)

		result, err := aligner.Align(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("failed to align gqa with visual genome: %w", err))
			return false
		}

		p.stats = append(p.stats, result.Stats)
		results = append(results, result)
	}

	if len(results) > 0 {
		reconciler := align.NewReconciler(model.DatasetVisualGenome, withLogger)

		for group, err := range reconciler.Reconcile(ctx, results...) {
			if !yield(group, err) {
				return false
			}

			if err != nil {
				return false
			}
		}

		return true
	}

	// No alignment pair selected; whatever image datasets remain stand
	// alone.
	if p.enabled(model.DatasetCOCO) && !yieldSingletons[source.CocoImage](ctx, p.coco, yield) {
		return false
	}

	if p.enabled(model.DatasetVisualGenome) && !yieldSingletons[source.VGImage](ctx, p.vg, yield) {
		return false
	}

	if p.enabled(model.DatasetGQA) && !yieldSingletons[source.GQAImage](ctx, p.gqa, yield) {
		return false
	}

	return true
}

// yieldSingletons emits one single-member group per record of src.
func yieldSingletons[R any](ctx context.Context, src align.Source[R], yield func(model.MetadataGroup, error) bool) bool {
	records, err := src.Records(ctx)
	if err != nil {
		yield(nil, fmt.Errorf("failed to read %s records: %w", src.Dataset(), err))
		return false
	}

	for _, r := range records {
		if !yield(model.MetadataGroup{src.Metadata(r)}, nil) {
			return false
		}
	}

	return true
}

// Build assembles every group into instances and writes them to store.
// Sequence ids are assigned in completion order of the worker pool; they are
// storage surrogates with no semantic meaning.
func (p *Pipeline) Build(ctx context.Context, store *db.DB) error {
	storage, err := db.NewStorage(p.opts.Storage)
	if err != nil {
		return err
	}

	if storage.Name() != store.StorageName() {
		return fmt.Errorf("store uses %s storage, pipeline is configured for %s", store.StorageName(), storage.Name())
	}

	assembler, err := assemble.New(func(o *assemble.Options) {
		o.Storage = storage
		o.Missing = p.opts.Missing
		o.Logger = p.logger
	})
	if err != nil {
		return err
	}

	pool := assemble.NewPool(assembler, p.opts.NumWorkers)

	var (
		seq       int64
		groups    int
		instances int
	)

	for batch, err := range pool.Assemble(ctx, p.Groups(ctx)) {
		if err != nil {
			return fmt.Errorf("failed to assemble instances: %w", err)
		}

		for _, row := range batch.Rows {
			key := fmt.Sprintf("%s_%d", p.opts.KeyPrefix, seq)

			if err := store.PutRaw(ctx, seq, key, row); err != nil {
				return fmt.Errorf("failed to write instance %s: %w", key, err)
			}

			seq++
		}

		groups++
		instances += len(batch.Rows)

		if p.opts.OnBatch != nil {
			p.opts.OnBatch(len(batch.Rows))
		}
	}

	if err := store.Flush(ctx); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "corpus build complete",
		"groups", groups,
		"instances", instances,
		"storage", store.StorageName(),
	)

	return nil
}
