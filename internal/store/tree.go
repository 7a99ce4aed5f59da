package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// normalize converts an arbitrary Go value into the generic JSON tree form
// (map[string]any, []any, json.Number, string, bool) with empty objects pruned.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	node, err := decode(b)
	if err != nil {
		return nil, err
	}
	return prune(node), nil
}

func decode(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var node any
	if err := dec.Decode(&node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return node, nil
}

func prune(node any) any {
	switch n := node.(type) {
	case map[string]any:
		for k, child := range n {
			if c := prune(child); c == nil {
				delete(n, k)
			} else {
				n[k] = c
			}
		}
		if len(n) == 0 {
			return nil
		}
		return n
	case []any:
		if len(n) == 0 {
			return nil
		}
		return n
	default:
		return node
	}
}

func getNode(node any, segs []string) any {
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

// setNode writes v at segs below node and returns the new node. Parents left
// empty by a delete are removed.
func setNode(node any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		if v == nil {
			return node
		}
		m = map[string]any{}
	}
	if child := setNode(m[segs[0]], segs[1:], v); child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// updateEntries returns the writes of a multi-path update in a stable order,
// rejecting relative paths that overlap each other.
func updateEntries(values map[string]any) ([]updateEntry, error) {
	entries := make([]updateEntry, 0, len(values))
	for k, v := range values {
		segs, err := splitPath(k)
		if err != nil {
			return nil, err
		}
		if len(segs) == 0 {
			return nil, fmt.Errorf("%w: empty update path", ErrInvalidPath)
		}
		entries = append(entries, updateEntry{path: strings.Join(segs, "/"), value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i].path, entries[j].path
			if a == b || strings.HasPrefix(b, a+"/") {
				return nil, fmt.Errorf("%w: overlapping update paths %q and %q", ErrInvalidPath, a, b)
			}
		}
	}
	return entries, nil
}

type updateEntry struct {
	path  string
	value any
}
