package actor

import (
	"encoding/json"
	"reflect"
)

// newLike returns a pointer to a fresh zero value of schema's type, so
// json.Unmarshal has somewhere to write regardless of whether schema was
// passed as a value or already as a pointer.
func newLike(schema any) any {
	t := reflect.TypeOf(schema)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}

// decodeInto re-marshals content as JSON and unmarshals it into a fresh
// value of schema's type, so go-playground/validator can run its
// `validate:"..."` struct tags against it. encoding/json is used rather
// than a third-party map-to-struct decoder: none of the retrieved example
// repos pull in one (mapstructure shows up only as a transitive dependency
// of viper elsewhere in the corpus, never imported directly for this kind
// of job), and a JSON round trip already matches the tags most structs in
// this codebase carry for wire (de)serialization.
func decodeInto(schema any, content map[string]any) (any, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}

	out := newLike(schema)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
