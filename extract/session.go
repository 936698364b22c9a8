package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/corpusloom/loom/model"
)

// DDBClient is the interface for the DynamoDB operations the session
// extractor needs.
type DDBClient interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// SessionConfig locates the agent session turns in DynamoDB.
//
// Each turn item carries the session id under the partition key, the turn
// order under "idx" (number), and the executed action under "action", a map
// of "type" (string), optional "args" (string holding a JSON document) and
// optional "success" (bool).
type SessionConfig struct {
	// Client runs the table queries.
	Client DDBClient

	// TableName is the session memory table. Defaults to
	// "SIMBOT_MEMORY_TABLE".
	TableName string

	// PrimaryKey is the partition key attribute. Defaults to "session_id".
	PrimaryKey string

	// SessionIDs lists the sessions to extract.
	SessionIDs []string

	// OutputDir holds the written payload files.
	OutputDir string
}

// SessionTrajectories reads agent session turns from a DynamoDB table and
// writes one action trajectory payload per session. Failed turns are dropped;
// a session whose turns all failed still gets an empty trajectory file.
type SessionTrajectories struct {
	cfg    SessionConfig
	logger *slog.Logger
}

// NewSessionTrajectories creates the session trajectory extractor.
func NewSessionTrajectories(cfg SessionConfig, optFns ...func(o *Options)) *SessionTrajectories {
	opts := applyOptions(optFns)

	if cfg.TableName == "" {
		cfg.TableName = "SIMBOT_MEMORY_TABLE"
	}

	if cfg.PrimaryKey == "" {
		cfg.PrimaryKey = "session_id"
	}

	return &SessionTrajectories{
		cfg:    cfg,
		logger: opts.Logger,
	}
}

// Dataset implements Extractor.
func (e *SessionTrajectories) Dataset() model.DatasetName {
	return model.DatasetTEACh
}

// Annotation implements Extractor.
func (e *SessionTrajectories) Annotation() model.AnnotationType {
	return model.AnnotationTrajectory
}

// Run implements Extractor.
func (e *SessionTrajectories) Run(ctx context.Context) (int, error) {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	written := 0

	for _, sessionID := range e.cfg.SessionIDs {
		trajectory, err := e.sessionTrajectory(ctx, sessionID)
		if err != nil {
			return 0, err
		}

		// Session ids contain slashes; flatten them for the file name.
		name := strings.ReplaceAll(sessionID, "/", "__") + ".json"
		if err := writeJSON(filepath.Join(e.cfg.OutputDir, name), trajectory); err != nil {
			return 0, err
		}

		written++
	}

	e.logger.InfoContext(ctx, "extracted session trajectories", "sessions", written)

	return written, nil
}

// sessionTrajectory queries all turns of one session and converts the
// successful ones into trajectory steps, ordered by turn index.
func (e *SessionTrajectories) sessionTrajectory(ctx context.Context, sessionID string) (model.ActionTrajectory, error) {
	type turn struct {
		idx    int
		action model.LowLevelAction
	}

	var turns []turn

	var startKey map[string]types.AttributeValue

	for {
		resp, err := e.cfg.Client.Query(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(e.cfg.TableName),
			KeyConditionExpression:   aws.String("#pk = :sid"),
			ExpressionAttributeNames: map[string]string{"#pk": e.cfg.PrimaryKey},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sid": &types.AttributeValueMemberS{Value: sessionID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return model.ActionTrajectory{}, fmt.Errorf("failed to query session %s: %w", sessionID, err)
		}

		for _, item := range resp.Items {
			idxAttr, ok := item["idx"].(*types.AttributeValueMemberN)
			if !ok {
				continue
			}

			idx, err := strconv.Atoi(idxAttr.Value)
			if err != nil {
				return model.ActionTrajectory{}, fmt.Errorf("failed to parse turn idx of session %s: %w", sessionID, err)
			}

			action, ok := decodeTurnAction(item["action"])
			if !ok {
				continue
			}

			turns = append(turns, turn{idx: idx, action: action})
		}

		if len(resp.LastEvaluatedKey) == 0 {
			break
		}

		startKey = resp.LastEvaluatedKey
	}

	sort.Slice(turns, func(i, j int) bool { return turns[i].idx < turns[j].idx })

	trajectory := model.ActionTrajectory{}
	for _, t := range turns {
		trajectory.LowLevelActions = append(trajectory.LowLevelActions, t.action)
	}

	return trajectory, nil
}

// decodeTurnAction unpacks the action map of one turn item. Turns without an
// action and turns whose action failed report ok false.
func decodeTurnAction(attr types.AttributeValue) (model.LowLevelAction, bool) {
	actionAttr, ok := attr.(*types.AttributeValueMemberM)
	if !ok {
		return model.LowLevelAction{}, false
	}

	if success, ok := actionAttr.Value["success"].(*types.AttributeValueMemberBOOL); ok && !success.Value {
		return model.LowLevelAction{}, false
	}

	typeAttr, ok := actionAttr.Value["type"].(*types.AttributeValueMemberS)
	if !ok {
		return model.LowLevelAction{}, false
	}

	action := model.LowLevelAction{
		Discrete: model.DiscreteAction{Action: typeAttr.Value},
	}

	if argsAttr, ok := actionAttr.Value["args"].(*types.AttributeValueMemberS); ok {
		if json.Valid([]byte(argsAttr.Value)) {
			action.Discrete.Args = json.RawMessage(argsAttr.Value)
		}
	}

	return action, true
}
