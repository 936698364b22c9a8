package main

import (
	"fmt"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/corpusloom/loom"
	"github.com/corpusloom/loom/align"
	"github.com/corpusloom/loom/db"
)

// instanceCounter renders written instances; the total is unknown until the
// alignment has been consumed.
const instanceCounter pb.ProgressBarTemplate = `instances: {{counters . }}`

func newBuildCommand(a *app) *cobra.Command {
	var (
		name       string
		numWorkers int
		batchSize  int
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Align the datasets and write the instance store",
		Long: `
Aligns the metadata of every ingestible dataset, reconciles the pairwise
alignments around Visual Genome, fans each group out into trainable
instances, and writes them into one instance store.
`,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()

			store, err := db.New(a.paths.DB(name), func(o *db.Options) {
				o.BatchSize = batchSize
				o.Logger = a.logger.Logger
			})
			if err != nil {
				return err
			}
			defer store.Close()

			bar := instanceCounter.Start(0)
			bar.SetWriter(a.stderr)

			pipeline := loom.NewPipeline(a.paths, func(o *loom.Options) {
				o.NumWorkers = numWorkers
				o.Logger = a.logger.Logger
				o.OnBatch = func(instances int) {
					bar.Add(instances)
				}
			})

			if err := pipeline.Build(ctx, store); err != nil {
				bar.Finish()
				return err
			}

			bar.Finish()

			align.WriteStatsTable(a.stdout, pipeline.AlignmentStats()...)

			n, err := store.Len(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "%d instances written to %s\n", n, store.Path())

			return store.Close()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", "instances", "name of the instance store to write")
	flags.IntVar(&numWorkers, "workers", 0, "assembly workers, 0 for one per CPU")
	flags.IntVar(&batchSize, "batch-size", 512, "rows buffered before each flush")

	return cmd
}
