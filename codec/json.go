package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Notes:
// - Annotation payloads and instances are plain structs/maps/slices, which
//   JSON covers completely.
// - Map keys are sorted on encode, so the output is canonical for equal
//   values.
//
// If you need custom encoding (e.g. protobuf/msgpack), implement Codec and
// pass it to the storage strategy.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used when none is configured.
var Default Codec = JSON{}
