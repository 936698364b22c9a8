package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswersUnmarshal(t *testing.T) {
	t.Run("single string", func(t *testing.T) {
		var qa QAPair
		require.NoError(t, json.Unmarshal([]byte(`{"question":"what color?","answer":"blue"}`), &qa))
		assert.Equal(t, Answers{"blue"}, qa.Answer)
	})

	t.Run("string array", func(t *testing.T) {
		var qa QAPair
		require.NoError(t, json.Unmarshal([]byte(`{"question":"what color?","answer":["blue","navy"]}`), &qa))
		assert.Equal(t, Answers{"blue", "navy"}, qa.Answer)
	})

	t.Run("invalid", func(t *testing.T) {
		var a Answers
		require.Error(t, json.Unmarshal([]byte(`42`), &a))
	})
}

func TestLanguageData(t *testing.T) {
	t.Run("caption", func(t *testing.T) {
		c := Caption{Text: "a dog on a skateboard"}
		assert.Equal(t, []string{"a dog on a skateboard"}, c.LanguageData())
	})

	t.Run("qa pair", func(t *testing.T) {
		qa := QAPair{Question: "what color is the sky?", Answer: Answers{"blue", "grey"}}
		assert.Equal(t, []string{"what color is the sky? blue grey"}, qa.LanguageData())
	})

	t.Run("region", func(t *testing.T) {
		r := Region{BBox: [4]float32{0, 0, 10, 10}, Caption: "a red door"}
		assert.Equal(t, []string{"a red door"}, r.LanguageData())
	})

	t.Run("scene graph", func(t *testing.T) {
		sg := SceneGraph{
			Objects: map[string]SceneObject{
				"1": {
					Name:       "cat",
					Attributes: []string{"black"},
					Relations:  []SceneRelation{{Name: "on", Object: "2"}},
				},
				"2": {Name: "mat"},
			},
		}

		assert.ElementsMatch(t, []string{"cat has attribute black", "cat on mat"}, sg.LanguageData())
	})

	t.Run("scene graph skips dangling relation", func(t *testing.T) {
		sg := SceneGraph{
			Objects: map[string]SceneObject{
				"1": {Name: "cat", Relations: []SceneRelation{{Name: "on", Object: "missing"}}},
			},
		}

		assert.Empty(t, sg.LanguageData())
	})

	t.Run("trajectory", func(t *testing.T) {
		traj := ActionTrajectory{
			LowLevelActions: []LowLevelAction{
				{Discrete: DiscreteAction{Action: "MoveAhead_25"}},
				{Discrete: DiscreteAction{Action: "PickupObject"}},
			},
		}

		assert.Equal(t, []string{"Move Ahead 25 Pickup Object"}, traj.LanguageData())
	})
}

func TestActionPhrase(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   string
	}{
		{name: "camel case", action: "PickupObject", want: "Pickup Object"},
		{name: "trailing number", action: "MoveAhead_25", want: "Move Ahead 25"},
		{name: "single word", action: "Stop", want: "Stop"},
		{name: "no uppercase", action: "noop", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, actionPhrase(tt.action))
		})
	}
}
