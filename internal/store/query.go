package store

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Child is one direct child of a node
type Child struct {
	Key   string
	Value json.RawMessage
}

// Children decodes the direct children of an object node in key order.
// Push keys are time-ordered, so key order is insertion order.
func Children(raw []byte) ([]Child, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: node is not an object: %v", ErrInvalidValue, err)
	}
	out := make([]Child, 0, len(m))
	for k, v := range m {
		out = append(out, Child{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// QueryEqual returns the children of raw whose field child equals value,
// the equivalent of ordering by a child and filtering with equalTo.
func QueryEqual(raw []byte, child string, value any) ([]Child, error) {
	all, err := Children(raw)
	if err != nil {
		return nil, err
	}
	want := fmt.Sprint(value)
	out := make([]Child, 0)
	for _, c := range all {
		var fields map[string]any
		if err := json.Unmarshal(c.Value, &fields); err != nil {
			continue
		}
		if v, ok := fields[child]; ok && v != nil && fmt.Sprint(v) == want {
			out = append(out, c)
		}
	}
	return out, nil
}
