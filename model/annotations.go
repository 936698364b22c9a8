package model

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Annotation is implemented by every annotation payload type.
type Annotation interface {
	// LanguageData returns the natural-language strings carried by the
	// annotation, flattened for language-model consumption.
	LanguageData() []string
}

// Caption is a text description of the media.
type Caption struct {
	Text string `json:"text"`
}

// LanguageData returns the caption text.
func (c Caption) LanguageData() []string {
	return []string{c.Text}
}

// Answers holds the answer(s) to a question. Source files store it either as
// a single JSON string or as an array of strings; both decode into Answers.
type Answers []string

// UnmarshalJSON implements json.Unmarshaler.
func (a *Answers) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*a = Answers{one}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}

	*a = Answers(many)

	return nil
}

// QAPair is a question about the media together with its answer(s).
type QAPair struct {
	ID       string  `json:"id,omitempty"`
	Question string  `json:"question"`
	Answer   Answers `json:"answer,omitempty"`
}

// LanguageData returns the question followed by its answers as one string.
func (q QAPair) LanguageData() []string {
	parts := append([]string{q.Question}, q.Answer...)
	return []string{strings.Join(parts, " ")}
}

// Region is a described sub-area of the media. The box is (x, y, width,
// height) with (x, y) the top-left corner. Source coordinates may be
// negative, so no range check is applied.
type Region struct {
	BBox    [4]float32 `json:"bbox"`
	Caption string     `json:"caption"`
}

// LanguageData returns the region description.
func (r Region) LanguageData() []string {
	return []string{r.Caption}
}

// SceneRelation links a scene object to another object in the same graph.
type SceneRelation struct {
	Name   string `json:"name"`
	Object string `json:"object"`
}

// SceneObject is one node of a scene graph.
type SceneObject struct {
	Name       string          `json:"name"`
	Attributes []string        `json:"attributes,omitempty"`
	Relations  []SceneRelation `json:"relations,omitempty"`
}

// SceneGraph describes the objects in a scene and how they relate.
type SceneGraph struct {
	Location string                 `json:"location,omitempty"`
	Weather  string                 `json:"weather,omitempty"`
	Objects  map[string]SceneObject `json:"objects"`
}

// LanguageData verbalizes the graph: one string per object attribute and one
// per relation, with relation targets resolved through the object table.
func (s SceneGraph) LanguageData() []string {
	var out []string

	for _, obj := range s.Objects {
		for _, attr := range obj.Attributes {
			out = append(out, obj.Name+" has attribute "+attr)
		}

		for _, rel := range obj.Relations {
			target, ok := s.Objects[rel.Object]
			if !ok {
				continue
			}

			out = append(out, obj.Name+" "+rel.Name+" "+target.Name)
		}
	}

	return out
}

// DiscreteAction is one planner-level action. Args passes through unchanged
// because low-level actions store a keyword map while high-level actions
// store a positional list.
type DiscreteAction struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// LowLevelAction is one executable step of a trajectory. HighIndex links the
// step to the subgoal it belongs to.
type LowLevelAction struct {
	Discrete  DiscreteAction `json:"discrete_action"`
	HighIndex int            `json:"high_idx"`
}

// HighLevelAction is one planner subgoal of a trajectory.
type HighLevelAction struct {
	Discrete DiscreteAction `json:"discrete_action"`
}

// ActionTrajectory is a sequence of agent actions, split into executable
// steps and the subgoals they realize.
type ActionTrajectory struct {
	LowLevelActions  []LowLevelAction  `json:"low_level_actions"`
	HighLevelActions []HighLevelAction `json:"high_level_actions"`
}

// LanguageData verbalizes the executable steps: API action names such as
// "MoveAhead_25" become "Move Ahead 25", joined into one string.
func (t ActionTrajectory) LanguageData() []string {
	phrases := make([]string, 0, len(t.LowLevelActions))
	for _, act := range t.LowLevelActions {
		phrases = append(phrases, actionPhrase(act.Discrete.Action))
	}

	return []string{strings.Join(phrases, " ")}
}

// actionPhrase splits a camel-case action name on uppercase boundaries and
// underscores. Characters before the first uppercase letter are dropped,
// matching how API action names are formed.
func actionPhrase(name string) string {
	var parts []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	started := false

	for _, r := range name {
		switch {
		case unicode.IsUpper(r):
			flush()
			started = true
			current.WriteRune(r)
		case r == '_':
			flush()
		case started:
			current.WriteRune(r)
		}
	}

	flush()

	return strings.Join(parts, " ")
}
