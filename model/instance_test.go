package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceModality(t *testing.T) {
	t.Run("single image dataset", func(t *testing.T) {
		in := NewInstance(MetadataGroup{{ID: "1", Dataset: DatasetCOCO}})
		assert.Equal(t, MediaImage, in.Modality())
	})

	t.Run("richest modality wins", func(t *testing.T) {
		in := NewInstance(MetadataGroup{
			{ID: "1", Dataset: DatasetCOCO},
			{ID: "t1", Dataset: DatasetALFRED},
		})

		assert.Equal(t, MediaVideo, in.Modality())
	})
}

func TestInstanceLanguageData(t *testing.T) {
	in := NewInstance(MetadataGroup{{ID: "1", Dataset: DatasetCOCO}})
	in.Caption = &Caption{Text: "a beach"}
	in.Regions = []Region{
		{Caption: "white sand"},
		{Caption: "blue water"},
	}

	assert.Equal(t, []string{"a beach", "white sand", "blue water"}, in.LanguageData())
}

func TestInstanceFeaturesPath(t *testing.T) {
	in := NewInstance(MetadataGroup{
		{ID: "1", Dataset: DatasetVisualGenome},
		{ID: "2", Dataset: DatasetCOCO, FeaturesPath: "/tmp/features/2.bin"},
	})

	assert.Equal(t, "/tmp/features/2.bin", in.FeaturesPath())
}

func TestDatasetAnnotations(t *testing.T) {
	assert.Equal(t, []AnnotationType{AnnotationQAPair, AnnotationSceneGraph}, DatasetAnnotations(DatasetGQA))
	assert.Equal(t, []AnnotationType{AnnotationCaption, AnnotationTrajectory}, DatasetAnnotations(DatasetALFRED))
	assert.Empty(t, DatasetAnnotations(DatasetTEACh))
}

func TestParseDatasetName(t *testing.T) {
	d, err := ParseDatasetName("coco")
	require.NoError(t, err)
	assert.Equal(t, DatasetCOCO, d)

	_, err = ParseDatasetName("imagenet")
	require.Error(t, err)
}

func TestTensorValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tensor := Tensor{DType: Float32, Shape: []int64{2, 3}, Data: make([]byte, 24)}
		require.NoError(t, tensor.Validate())
	})

	t.Run("length mismatch", func(t *testing.T) {
		tensor := Tensor{DType: Float32, Shape: []int64{2, 3}, Data: make([]byte, 20)}
		require.Error(t, tensor.Validate())
	})

	t.Run("unknown dtype", func(t *testing.T) {
		tensor := Tensor{DType: "float64", Shape: []int64{1}, Data: make([]byte, 8)}
		require.Error(t, tensor.Validate())
	})
}
