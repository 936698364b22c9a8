package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/loom/model"
)

func TestGQA(t *testing.T) {
	dir := t.TempDir()

	trainPath := filepath.Join(dir, "train_sceneGraphs.json")
	valPath := filepath.Join(dir, "val_sceneGraphs.json")

	writeFixture(t, trainPath, `{
		"2407890": {"width": 640, "height": 480, "objects": {}},
		"2407886": {"width": 500, "height": 375, "objects": {}}
	}`)
	writeFixture(t, valPath, `{
		"2354786": {"width": 640, "height": 427, "objects": {}}
	}`)

	gqa := NewGQA(GQAConfig{
		SceneGraphTrainPath: trainPath,
		SceneGraphValPath:   valPath,
		ImagesDir:           filepath.Join(dir, "images"),
		SceneGraphsDir:      filepath.Join(dir, "scene_graphs"),
		QAPairsDir:          filepath.Join(dir, "qa_pairs"),
	})

	assert.Equal(t, model.DatasetGQA, gqa.Dataset())

	records, err := gqa.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Per-file id order is sorted for reproducible runs.
	assert.Equal(t, ID("2407886"), records[0].ID)
	assert.Equal(t, ID("2407890"), records[1].ID)
	assert.Equal(t, ID("2354786"), records[2].ID)

	assert.Equal(t, model.SplitTrain, records[0].Split)
	assert.Equal(t, model.SplitValid, records[2].Split)

	em := gqa.Metadata(records[1])
	assert.Equal(t, "2407890", em.ID)
	assert.Equal(t, model.DatasetGQA, em.Dataset)

	require.Len(t, em.Media, 1)
	assert.Equal(t, filepath.Join(dir, "images", "2407890.jpg"), em.Media[0].Path)
	assert.Equal(t, 640, em.Media[0].Width)
	assert.Equal(t, 480, em.Media[0].Height)

	assert.Equal(t, filepath.Join(dir, "scene_graphs", "2407890.json"), em.AnnotationPath(model.AnnotationSceneGraph))
	assert.Equal(t, filepath.Join(dir, "qa_pairs", "2407890.json"), em.AnnotationPath(model.AnnotationQAPair))
}
