package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/loom/model"
)

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	_, ok = ByName("msgpack")
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	in := model.Instance{
		Dataset: map[model.DatasetName]model.EntityMetadata{
			model.DatasetCOCO: {ID: "1", Dataset: model.DatasetCOCO, Split: model.SplitTrain},
		},
		Caption: &model.Caption{Text: "a dog on a skateboard"},
	}

	data, err := JSON{}.Marshal(in)
	require.NoError(t, err)

	var out model.Instance
	require.NoError(t, JSON{}.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func BenchmarkJSONMarshalInstance(b *testing.B) {
	in := model.Instance{
		Dataset: map[model.DatasetName]model.EntityMetadata{
			model.DatasetCOCO:         {ID: "1", Dataset: model.DatasetCOCO, Split: model.SplitTrain},
			model.DatasetVisualGenome: {ID: "7", Dataset: model.DatasetVisualGenome},
		},
		Caption: &model.Caption{Text: "a dog on a skateboard"},
		Regions: []model.Region{
			{BBox: [4]float32{0, 0, 32, 32}, Caption: "a skateboard"},
			{BBox: [4]float32{8, 4, 60, 80}, Caption: "a dog"},
		},
	}

	b.ReportAllocs()

	var sink []byte
	for b.Loop() {
		out, err := JSON{}.Marshal(in)
		if err != nil {
			b.Fatal(err)
		}
		sink = out
	}
	_ = sink
}
