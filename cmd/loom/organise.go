package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corpusloom/loom/fetch"
	"github.com/corpusloom/loom/model"
)

func newOrganiseCommand(a *app) *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:   "organise ARCHIVE...",
		Short: "Unpack downloaded release archives into the workspace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			name, err := model.ParseDatasetName(dataset)
			if err != nil {
				return err
			}

			dest := a.paths.Dataset(name)

			for _, archive := range args {
				a.logger.InfoContext(ctx, "extracting archive", "archive", archive, "dest", dest)

				if err := fetch.Extract(archive, dest); err != nil {
					return fmt.Errorf("failed to extract %s: %w", archive, err)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "dataset the archives belong to")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}
