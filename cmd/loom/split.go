package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corpusloom/loom/db"
	"github.com/corpusloom/loom/model"
)

func newSplitCommand(a *app) *cobra.Command {
	var (
		name      string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Partition an instance store by dataset split",
		Long: `
Reads a built instance store and routes every instance into a per-split
store (<name>_train, <name>_valid, ...). Instances without a split land in
the train partition.
`,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()

			src, err := db.New(a.paths.DB(name), func(o *db.Options) {
				o.Readonly = true
				o.Logger = a.logger.Logger
			})
			if err != nil {
				return err
			}
			defer src.Close()

			stores := map[model.DatasetSplit]*db.DB{}
			seqs := map[model.DatasetSplit]int64{}

			defer func() {
				for _, store := range stores {
					_ = store.Close()
				}
			}()

			for row, err := range src.Rows(ctx) {
				if err != nil {
					return err
				}

				var inst model.Instance
				if err := src.Decode(row.Data, &inst); err != nil {
					return fmt.Errorf("failed to decode row %d: %w", row.Seq, err)
				}

				split := inst.Split()
				if split == "" {
					split = model.SplitTrain
				}

				store, ok := stores[split]
				if !ok {
					store, err = db.New(a.paths.DB(fmt.Sprintf("%s_%s", name, split)), func(o *db.Options) {
						o.BatchSize = batchSize
						o.Logger = a.logger.Logger
					})
					if err != nil {
						return err
					}

					stores[split] = store
				}

				if err := store.PutRaw(ctx, seqs[split], row.Key, row.Data); err != nil {
					return err
				}

				seqs[split]++
			}

			for split, store := range stores {
				if err := store.Close(); err != nil {
					return err
				}

				fmt.Fprintf(a.stdout, "%s: %d instances\n", split, seqs[split])
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", "instances", "name of the instance store to partition")
	flags.IntVar(&batchSize, "batch-size", 512, "rows buffered before each flush")

	return cmd
}
