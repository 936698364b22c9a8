package extract

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusloom/loom/model"
)

// fakeDDBClient serves canned query pages and records the inputs it saw.
type fakeDDBClient struct {
	pages  []*dynamodb.QueryOutput
	inputs []*dynamodb.QueryInput
}

func (c *fakeDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.inputs = append(c.inputs, params)

	page := c.pages[len(c.inputs)-1]

	return page, nil
}

func turnItem(sessionID string, idx string, action map[string]types.AttributeValue) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
		"idx":        &types.AttributeValueMemberN{Value: idx},
	}

	if action != nil {
		item["action"] = &types.AttributeValueMemberM{Value: action}
	}

	return item
}

func TestSessionTrajectories(t *testing.T) {
	dir := t.TempDir()

	client := &fakeDDBClient{pages: []*dynamodb.QueryOutput{
		{
			Items: []map[string]types.AttributeValue{
				turnItem("amzn1/abc", "1", map[string]types.AttributeValue{
					"type":    &types.AttributeValueMemberS{Value: "pickup"},
					"args":    &types.AttributeValueMemberS{Value: `{"object": "mug"}`},
					"success": &types.AttributeValueMemberBOOL{Value: true},
				}),
				turnItem("amzn1/abc", "2", map[string]types.AttributeValue{
					"type":    &types.AttributeValueMemberS{Value: "place"},
					"success": &types.AttributeValueMemberBOOL{Value: false},
				}),
			},
			LastEvaluatedKey: map[string]types.AttributeValue{
				"session_id": &types.AttributeValueMemberS{Value: "amzn1/abc"},
			},
		},
		{
			Items: []map[string]types.AttributeValue{
				turnItem("amzn1/abc", "0", map[string]types.AttributeValue{
					"type": &types.AttributeValueMemberS{Value: "goto"},
				}),
				// Turns without an action are dialog turns.
				turnItem("amzn1/abc", "3", nil),
			},
		},
	}}

	extractor := NewSessionTrajectories(SessionConfig{
		Client:     client,
		SessionIDs: []string{"amzn1/abc"},
		OutputDir:  dir,
	})

	assert.Equal(t, model.DatasetTEACh, extractor.Dataset())
	assert.Equal(t, model.AnnotationTrajectory, extractor.Annotation())

	written, err := extractor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	// Both pages were fetched and the default table was queried.
	require.Len(t, client.inputs, 2)
	assert.Equal(t, "SIMBOT_MEMORY_TABLE", *client.inputs[0].TableName)
	assert.Nil(t, client.inputs[0].ExclusiveStartKey)
	assert.NotNil(t, client.inputs[1].ExclusiveStartKey)

	// Slashes in the session id are flattened for the file name.
	trajectory := readPayload[model.ActionTrajectory](t, filepath.Join(dir, "amzn1__abc.json"))

	// The failed turn and the dialog turn are dropped; the rest are ordered
	// by turn index.
	require.Len(t, trajectory.LowLevelActions, 2)
	assert.Equal(t, "goto", trajectory.LowLevelActions[0].Discrete.Action)
	assert.Equal(t, "pickup", trajectory.LowLevelActions[1].Discrete.Action)
	assert.JSONEq(t, `{"object": "mug"}`, string(trajectory.LowLevelActions[1].Discrete.Args))
}
