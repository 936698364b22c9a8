package assemble

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/loom/db"
	"github.com/corpusloom/loom/model"
)

func writeJSON(t *testing.T, path string, v any) string {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func member(name model.DatasetName, id string, annotations map[model.AnnotationType]string) model.EntityMetadata {
	return model.EntityMetadata{ID: id, Dataset: name, Annotations: annotations}
}

func TestInstancesCaptionFanOut(t *testing.T) {
	dir := t.TempDir()

	captionsPath := writeJSON(t, filepath.Join(dir, "coco_42_captions.json"), []model.Caption{
		{Text: "a black dog on a sofa"},
		{Text: "a dog resting indoors"},
		{Text: "a living room with a dog"},
	})
	regionsPath := writeJSON(t, filepath.Join(dir, "vg_7_regions.json"), []model.Region{
		{BBox: [4]float32{0, 0, 32, 32}, Caption: "black dog"},
		{BBox: [4]float32{10, 4, 80, 60}, Caption: "grey sofa"},
	})

	group := model.MetadataGroup{
		member(model.DatasetCOCO, "42", map[model.AnnotationType]string{
			model.AnnotationCaption: captionsPath,
		}),
		member(model.DatasetVisualGenome, "7", map[model.AnnotationType]string{
			model.AnnotationRegion: regionsPath,
		}),
	}

	a, err := New()
	require.NoError(t, err)

	instances, err := a.Instances(group)
	require.NoError(t, err)
	require.Len(t, instances, 3)

	assert.Equal(t, "a black dog on a sofa", instances[0].Caption.Text)
	assert.Equal(t, "a dog resting indoors", instances[1].Caption.Text)
	assert.Equal(t, "a living room with a dog", instances[2].Caption.Text)

	for _, inst := range instances {
		assert.Nil(t, inst.QA)
		assert.Len(t, inst.Regions, 2)
		assert.Len(t, inst.Dataset, 2)
	}
}

func TestInstancesCaptionsThenQAPairs(t *testing.T) {
	dir := t.TempDir()

	captionsPath := writeJSON(t, filepath.Join(dir, "captions.json"), []model.Caption{
		{Text: "a plate of pasta"},
		{Text: "dinner on a table"},
	})
	qaPath := writeJSON(t, filepath.Join(dir, "qa.json"), []model.QAPair{
		{ID: "q0", Question: "what is on the plate?", Answer: model.Answers{"pasta"}},
		{ID: "q1", Question: "where is the plate?", Answer: model.Answers{"table"}},
	})

	group := model.MetadataGroup{
		member(model.DatasetCOCO, "42", map[model.AnnotationType]string{
			model.AnnotationCaption: captionsPath,
		}),
		member(model.DatasetGQA, "g42", map[model.AnnotationType]string{
			model.AnnotationQAPair: qaPath,
		}),
	}

	a, err := New()
	require.NoError(t, err)

	instances, err := a.Instances(group)
	require.NoError(t, err)
	require.Len(t, instances, 4)

	assert.Equal(t, "a plate of pasta", instances[0].Caption.Text)
	assert.Equal(t, "dinner on a table", instances[1].Caption.Text)
	assert.Nil(t, instances[0].QA)

	assert.Equal(t, "q0", instances[2].QA.ID)
	assert.Equal(t, "q1", instances[3].QA.ID)
	assert.Nil(t, instances[2].Caption)
}

func TestInstancesQAPairsOnly(t *testing.T) {
	dir := t.TempDir()

	qaPath := writeJSON(t, filepath.Join(dir, "qa.json"), []model.QAPair{
		{Question: "is it raining?", Answer: model.Answers{"no"}},
		{Question: "is it sunny?", Answer: model.Answers{"yes"}},
	})

	group := model.MetadataGroup{
		member(model.DatasetGQA, "g1", map[model.AnnotationType]string{
			model.AnnotationQAPair: qaPath,
		}),
	}

	a, err := New()
	require.NoError(t, err)

	instances, err := a.Instances(group)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	for _, inst := range instances {
		assert.Nil(t, inst.Caption)
		require.NotNil(t, inst.QA)
	}

	assert.Equal(t, "is it raining?", instances[0].QA.Question)
	assert.Equal(t, "is it sunny?", instances[1].QA.Question)
}

func TestInstancesTextless(t *testing.T) {
	t.Run("regions only", func(t *testing.T) {
		dir := t.TempDir()

		regionsPath := writeJSON(t, filepath.Join(dir, "regions.json"), []model.Region{
			{BBox: [4]float32{1, 2, 3, 4}, Caption: "a window"},
		})

		group := model.MetadataGroup{
			member(model.DatasetVisualGenome, "7", map[model.AnnotationType]string{
				model.AnnotationRegion: regionsPath,
			}),
		}

		a, err := New()
		require.NoError(t, err)

		instances, err := a.Instances(group)
		require.NoError(t, err)
		require.Len(t, instances, 1)

		assert.Nil(t, instances[0].Caption)
		assert.Nil(t, instances[0].QA)
		assert.Len(t, instances[0].Regions, 1)
	})

	t.Run("trajectory only", func(t *testing.T) {
		dir := t.TempDir()

		trajectoryPath := writeJSON(t, filepath.Join(dir, "trajectory.json"), model.ActionTrajectory{
			LowLevelActions: []model.LowLevelAction{
				{Discrete: model.DiscreteAction{Action: "MoveAhead_25"}, HighIndex: 0},
			},
			HighLevelActions: []model.HighLevelAction{
				{Discrete: model.DiscreteAction{Action: "GotoLocation"}},
			},
		})

		group := model.MetadataGroup{
			member(model.DatasetALFRED, "trial_1", map[model.AnnotationType]string{
				model.AnnotationTrajectory: trajectoryPath,
			}),
		}

		a, err := New()
		require.NoError(t, err)

		instances, err := a.Instances(group)
		require.NoError(t, err)
		require.Len(t, instances, 1)

		require.NotNil(t, instances[0].Trajectory)
		assert.Len(t, instances[0].Trajectory.LowLevelActions, 1)
	})
}

func TestInstancesNoAnnotations(t *testing.T) {
	group := model.MetadataGroup{member(model.DatasetCOCO, "42", nil)}

	a, err := New()
	require.NoError(t, err)

	_, err = a.Instances(group)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAnnotations)
}

func TestInstancesDegenerateGroup(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	_, err = a.Instances(model.MetadataGroup{})
	require.Error(t, err)

	em := member(model.DatasetCOCO, "42", nil)
	_, err = a.Instances(model.MetadataGroup{em, em})
	require.Error(t, err)
}

func TestInstancesMissingPayloads(t *testing.T) {
	t.Run("absent qa payload tolerated", func(t *testing.T) {
		dir := t.TempDir()

		captionsPath := writeJSON(t, filepath.Join(dir, "captions.json"), []model.Caption{
			{Text: "a city street"},
			{Text: "cars at a junction"},
		})

		group := model.MetadataGroup{
			member(model.DatasetCOCO, "42", map[model.AnnotationType]string{
				model.AnnotationCaption: captionsPath,
			}),
			member(model.DatasetGQA, "g42", map[model.AnnotationType]string{
				model.AnnotationQAPair: filepath.Join(dir, "never-written.json"),
			}),
		}

		a, err := New()
		require.NoError(t, err)

		instances, err := a.Instances(group)
		require.NoError(t, err)
		require.Len(t, instances, 2)
		assert.Nil(t, instances[0].QA)
	})

	t.Run("absent caption payload fatal", func(t *testing.T) {
		dir := t.TempDir()

		group := model.MetadataGroup{
			member(model.DatasetCOCO, "42", map[model.AnnotationType]string{
				model.AnnotationCaption: filepath.Join(dir, "never-written.json"),
			}),
		}

		a, err := New()
		require.NoError(t, err)

		_, err = a.Instances(group)
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("override makes qa fatal", func(t *testing.T) {
		dir := t.TempDir()

		group := model.MetadataGroup{
			member(model.DatasetGQA, "g42", map[model.AnnotationType]string{
				model.AnnotationQAPair: filepath.Join(dir, "never-written.json"),
			}),
		}

		a, err := New(func(o *Options) {
			o.Missing = map[model.AnnotationType]MissingPolicy{
				model.AnnotationQAPair: MissingFatal,
			}
		})
		require.NoError(t, err)

		_, err = a.Instances(group)
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("override tolerates regions", func(t *testing.T) {
		dir := t.TempDir()

		captionsPath := writeJSON(t, filepath.Join(dir, "captions.json"), []model.Caption{
			{Text: "a harbour at dusk"},
		})

		group := model.MetadataGroup{
			member(model.DatasetCOCO, "42", map[model.AnnotationType]string{
				model.AnnotationCaption: captionsPath,
			}),
			member(model.DatasetVisualGenome, "7", map[model.AnnotationType]string{
				model.AnnotationRegion: filepath.Join(dir, "never-written.json"),
			}),
		}

		a, err := New(func(o *Options) {
			o.Missing = map[model.AnnotationType]MissingPolicy{
				model.AnnotationRegion: MissingEmpty,
			}
		})
		require.NoError(t, err)

		instances, err := a.Instances(group)
		require.NoError(t, err)
		require.Len(t, instances, 1)
		assert.Empty(t, instances[0].Regions)
	})
}

func TestNewPolicyValidation(t *testing.T) {
	_, err := New(func(o *Options) {
		o.Missing = map[model.AnnotationType]MissingPolicy{"bogus": MissingFatal}
	})
	require.Error(t, err)

	_, err = New(func(o *Options) {
		o.Missing = map[model.AnnotationType]MissingPolicy{model.AnnotationCaption: MissingPolicy(7)}
	})
	require.Error(t, err)
}

func TestMissingPolicyString(t *testing.T) {
	assert.Equal(t, "fatal", MissingFatal.String())
	assert.Equal(t, "empty", MissingEmpty.String())
	assert.Equal(t, "unknown", MissingPolicy(7).String())
}

func TestCompressed(t *testing.T) {
	dir := t.TempDir()

	captionsPath := writeJSON(t, filepath.Join(dir, "captions.json"), []model.Caption{
		{Text: "a red kite over a beach"},
	})

	group := model.MetadataGroup{
		member(model.DatasetCOCO, "9", map[model.AnnotationType]string{
			model.AnnotationCaption: captionsPath,
		}),
	}

	a, err := New()
	require.NoError(t, err)
	assert.Equal(t, "json+zstd", a.StorageName())

	rows, err := a.Compressed(group)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var inst model.Instance
	require.NoError(t, db.NewJSONStorage(nil).Decompress(rows[0], &inst))
	require.NotNil(t, inst.Caption)
	assert.Equal(t, "a red kite over a beach", inst.Caption.Text)
	assert.Contains(t, inst.Dataset, model.DatasetCOCO)
}
