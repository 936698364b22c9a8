package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/corpusloom/loom/extract"
	"github.com/corpusloom/loom/model"
)

func newAnnotationsCommand(a *app) *cobra.Command {
	var (
		datasets     []string
		sessionIDs   []string
		sessionTable string
	)

	cmd := &cobra.Command{
		Use:   "annotations",
		Short: "Extract per-entity annotation payload files",
		Long: `
Reads the raw release files of each selected dataset and writes one payload
file per entity per annotation category. The metadata sources reference these
files; the assembler reads them.
`,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()

			selected := make([]model.DatasetName, 0, len(datasets))

			for _, d := range datasets {
				name, err := model.ParseDatasetName(d)
				if err != nil {
					return err
				}

				selected = append(selected, name)
			}

			extractors, err := a.extractors(ctx, selected, sessionTable, sessionIDs)
			if err != nil {
				return err
			}

			for _, e := range extractors {
				count, err := e.Run(ctx)
				if err != nil {
					return fmt.Errorf("failed to extract %s %ss: %w", e.Dataset(), e.Annotation(), err)
				}

				fmt.Fprintf(a.stdout, "%s: %d %s payload files\n", e.Dataset().Title(), count, e.Annotation())
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&datasets, "datasets", []string{
		string(model.DatasetCOCO),
		string(model.DatasetVisualGenome),
		string(model.DatasetGQA),
		string(model.DatasetEpicKitchens),
		string(model.DatasetALFRED),
	}, "datasets to extract annotations for")
	flags.StringSliceVar(&sessionIDs, "session-ids", nil, "agent session ids to pull trajectories for (teach)")
	flags.StringVar(&sessionTable, "session-table", "", "DynamoDB table holding agent session turns (teach)")

	return cmd
}

// extractors assembles the extractor set for the selected datasets,
// explicitly, one constructor per dataset and category.
func (a *app) extractors(ctx context.Context, selected []model.DatasetName, sessionTable string, sessionIDs []string) ([]extract.Extractor, error) {
	withLogger := func(o *extract.Options) { o.Logger = a.logger.Logger }

	var extractors []extract.Extractor

	if slices.Contains(selected, model.DatasetCOCO) {
		coco := a.paths.Dataset(model.DatasetCOCO)

		extractors = append(extractors, extract.NewCocoCaptions([]string{
			filepath.Join(coco, "captions_train2017.json"),
			filepath.Join(coco, "captions_val2017.json"),
		}, a.paths.Captions(), withLogger))
	}

	if slices.Contains(selected, model.DatasetVisualGenome) {
		vg := a.paths.Dataset(model.DatasetVisualGenome)

		extractors = append(extractors, extract.NewVGRegions(
			filepath.Join(vg, "region_descriptions.json"),
			a.paths.Regions(), withLogger))
	}

	if slices.Contains(selected, model.DatasetGQA) {
		gqa := a.paths.Dataset(model.DatasetGQA)

		extractors = append(extractors,
			extract.NewGQAQAPairs([]string{
				filepath.Join(gqa, "train_balanced_questions.json"),
				filepath.Join(gqa, "val_balanced_questions.json"),
			}, a.paths.QAPairs(), withLogger),
			extract.NewGQASceneGraphs([]string{
				filepath.Join(gqa, "train_sceneGraphs.json"),
				filepath.Join(gqa, "val_sceneGraphs.json"),
			}, a.paths.SceneGraphs(), withLogger),
		)
	}

	if slices.Contains(selected, model.DatasetEpicKitchens) {
		epic := a.paths.Dataset(model.DatasetEpicKitchens)

		extractors = append(extractors, extract.NewEpicKitchensCaptions([]string{
			filepath.Join(epic, "EPIC_100_train.csv"),
			filepath.Join(epic, "EPIC_100_validation.csv"),
		}, a.paths.Captions(), withLogger))
	}

	if slices.Contains(selected, model.DatasetALFRED) {
		dataDirs := []string{
			filepath.Join(a.paths.Dataset(model.DatasetALFRED), "json_2.1.0", "train"),
			filepath.Join(a.paths.Dataset(model.DatasetALFRED), "json_2.1.0", "valid_seen"),
		}

		extractors = append(extractors,
			extract.NewAlfredCaptions(dataDirs, a.paths.Captions(), withLogger),
			extract.NewAlfredTrajectories(dataDirs, a.paths.Trajectories(), withLogger),
		)
	}

	if slices.Contains(selected, model.DatasetTEACh) {
		if len(sessionIDs) == 0 {
			return nil, fmt.Errorf("teach extraction needs --session-ids")
		}

		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}

		extractors = append(extractors, extract.NewSessionTrajectories(extract.SessionConfig{
			Client:     dynamodb.NewFromConfig(cfg),
			TableName:  sessionTable,
			SessionIDs: sessionIDs,
			OutputDir:  a.paths.Trajectories(),
		}, withLogger))
	}

	return extractors, nil
}
