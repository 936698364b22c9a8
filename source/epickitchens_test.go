package source

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/loom/model"
)

const epicHeader = "narration_id,participant_id,video_id,narration_timestamp,start_timestamp,stop_timestamp,start_frame,stop_frame,narration,verb,verb_class,noun,noun_class,all_nouns,all_noun_classes\n"

func TestEpicKitchens(t *testing.T) {
	dir := t.TempDir()

	trainPath := filepath.Join(dir, "EPIC_100_train.csv")
	valPath := filepath.Join(dir, "EPIC_100_validation.csv")

	writeFixture(t, trainPath, epicHeader+
		`P01_01_0,P01,P01_01,00:00:01.089,00:00:00.14,00:00:03.37,8,202,open door,open,3,door,3,"['door']","[3]"`+"\n"+
		`P01_01_1,P01,P01_01,00:00:02.629,00:00:02.0,00:00:06.28,121,377,turn on light,turn-on,6,light,114,"['light']","[114]"`+"\n")
	writeFixture(t, valPath, epicHeader+
		`P02_03_0,P02,P02_03,00:00:00.500,00:00:00.00,00:00:01.00,0,2,close fridge,close,4,fridge,12,"['fridge']","[12]"`+"\n")

	epic := NewEpicKitchens(EpicKitchensConfig{
		TrainCSVPath: trainPath,
		ValCSVPath:   valPath,
		FramesDir:    filepath.Join(dir, "frames"),
		CaptionsDir:  filepath.Join(dir, "captions"),
	})

	assert.Equal(t, model.DatasetEpicKitchens, epic.Dataset())

	records, err := epic.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, Narration{
		NarrationID:   "P01_01_0",
		ParticipantID: "P01",
		VideoID:       "P01_01",
		Narration:     "open door",
		StartFrame:    8,
		StopFrame:     202,
		Split:         model.SplitTrain,
	}, records[0])
	assert.Equal(t, model.SplitValid, records[2].Split)

	em := epic.Metadata(records[2])
	assert.Equal(t, "P02_03_0", em.ID)
	assert.Equal(t, model.DatasetEpicKitchens, em.Dataset)

	// One media entry per frame of the narration range, inclusive.
	require.Len(t, em.Media, 3)

	for i, m := range em.Media {
		assert.Equal(t, model.MediaImage, m.Type)
		assert.Equal(t, filepath.Join(dir, "frames", "P02_03", fmt.Sprintf("frame_%010d.jpg", i)), m.Path)
	}

	assert.Equal(t, filepath.Join(dir, "captions", "P02_03_0.json"), em.AnnotationPath(model.AnnotationCaption))
}

func TestEpicKitchensMissingColumn(t *testing.T) {
	dir := t.TempDir()

	trainPath := filepath.Join(dir, "EPIC_100_train.csv")
	writeFixture(t, trainPath, "narration_id,video_id\nP01_01_0,P01_01\n")
	writeFixture(t, filepath.Join(dir, "EPIC_100_validation.csv"), epicHeader)

	epic := NewEpicKitchens(EpicKitchensConfig{
		TrainCSVPath: trainPath,
		ValCSVPath:   filepath.Join(dir, "EPIC_100_validation.csv"),
	})

	_, err := epic.Records(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}
