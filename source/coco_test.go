package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/loom/model"
)

func TestCoco(t *testing.T) {
	dir := t.TempDir()

	trainPath := filepath.Join(dir, "captions_train2017.json")
	valPath := filepath.Join(dir, "captions_val2017.json")

	writeFixture(t, trainPath, `{"images": [
		{"id": 1, "file_name": "000000000001.jpg", "coco_url": "http://images.cocodataset.org/train2017/000000000001.jpg", "width": 640, "height": 480},
		{"id": 2, "file_name": "000000000002.jpg", "coco_url": "http://images.cocodataset.org/train2017/000000000002.jpg", "width": 500, "height": 375}
	]}`)
	writeFixture(t, valPath, `{"images": [
		{"id": 3, "file_name": "000000000003.jpg", "coco_url": "http://images.cocodataset.org/val2017/000000000003.jpg", "width": 640, "height": 427}
	]}`)

	coco := NewCoco(CocoConfig{
		CaptionTrainPath: trainPath,
		CaptionValPath:   valPath,
		ImagesDir:        filepath.Join(dir, "images"),
		CaptionsDir:      filepath.Join(dir, "captions"),
		FeaturesDir:      filepath.Join(dir, "features"),
	})

	assert.Equal(t, model.DatasetCOCO, coco.Dataset())

	records, err := coco.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, model.SplitTrain, records[0].Split)
	assert.Equal(t, model.SplitTrain, records[1].Split)
	assert.Equal(t, model.SplitValid, records[2].Split)

	em := coco.Metadata(records[0])
	assert.Equal(t, "1", em.ID)
	assert.Equal(t, model.DatasetCOCO, em.Dataset)
	assert.Equal(t, model.SplitTrain, em.Split)

	require.Len(t, em.Media, 1)
	assert.Equal(t, "http://images.cocodataset.org/train2017/000000000001.jpg", em.Media[0].URL)
	assert.Equal(t, model.MediaImage, em.Media[0].Type)
	assert.Equal(t, filepath.Join(dir, "images", "000000000001.jpg"), em.Media[0].Path)
	assert.Equal(t, 640, em.Media[0].Width)
	assert.Equal(t, 480, em.Media[0].Height)

	assert.Equal(t, filepath.Join(dir, "captions", "1.json"), em.AnnotationPath(model.AnnotationCaption))
	assert.Equal(t, filepath.Join(dir, "features", "000000000001.pt"), em.FeaturesPath)
}

func TestCocoWithoutFeaturesDir(t *testing.T) {
	coco := NewCoco(CocoConfig{})

	em := coco.Metadata(CocoImage{ID: "7"})
	assert.Empty(t, em.FeaturesPath)
}

func TestCocoMissingRelease(t *testing.T) {
	coco := NewCoco(CocoConfig{
		CaptionTrainPath: filepath.Join(t.TempDir(), "nope.json"),
	})

	_, err := coco.Records(context.Background())
	assert.Error(t, err)
}
