package main

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/table"
	"github.com/spf13/cobra"

	"github.com/corpusloom/loom/db"
	"github.com/corpusloom/loom/model"
)

func newStatsCommand(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize an instance store",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()

			store, err := db.New(a.paths.DB(name), func(o *db.Options) {
				o.Readonly = true
				o.Logger = a.logger.Logger
			})
			if err != nil {
				return err
			}
			defer store.Close()

			total, err := store.Len(ctx)
			if err != nil {
				return err
			}

			datasets := map[model.DatasetName]int{}
			captioned, questioned, textless := 0, 0, 0

			for row, err := range store.Rows(ctx) {
				if err != nil {
					return err
				}

				var inst model.Instance
				if err := store.Decode(row.Data, &inst); err != nil {
					return fmt.Errorf("failed to decode row %d: %w", row.Seq, err)
				}

				for dataset := range inst.Dataset {
					datasets[dataset]++
				}

				switch {
				case inst.Caption != nil:
					captioned++
				case inst.QA != nil:
					questioned++
				default:
					textless++
				}
			}

			names := make([]model.DatasetName, 0, len(datasets))
			for dataset := range datasets {
				names = append(names, dataset)
			}

			sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

			t := table.NewWriter()
			t.SetOutputMirror(a.stdout)
			t.AppendHeader(table.Row{"dataset", "instances"})

			for _, dataset := range names {
				t.AppendRow(table.Row{dataset.Title(), datasets[dataset]})
			}

			t.AppendFooter(table.Row{"total", total})
			t.Render()

			fmt.Fprintf(a.stdout, "captions: %d, qa pairs: %d, textless: %d\n", captioned, questioned, textless)

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "instances", "name of the instance store to summarize")

	return cmd
}
