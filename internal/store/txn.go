package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// loader reads committed state for a transaction. Implementations return a
// nil value for absent documents.
type loader interface {
	loadDoc(ctx context.Context, key string) (any, error)
	loadCollection(ctx context.Context, coll string) ([]string, error)
	loadCollections(ctx context.Context) ([]string, error)
}

type docState struct {
	value any
	dirty bool
}

// docTxn stages reads and writes over documents. Loaded documents are private
// copies, so staged writes never leak into committed state before commit.
type docTxn struct {
	ctx   context.Context
	load  loader
	docs  map[string]*docState
	colls map[string][]string
	roots []string
	// rootsLoaded distinguishes an empty root from a root never read.
	rootsLoaded bool
}

func newDocTxn(ctx context.Context, l loader) *docTxn {
	return &docTxn{
		ctx:   ctx,
		load:  l,
		docs:  make(map[string]*docState),
		colls: make(map[string][]string),
	}
}

func (t *docTxn) doc(key string) (*docState, error) {
	if d, ok := t.docs[key]; ok {
		return d, nil
	}
	v, err := t.load.loadDoc(t.ctx, key)
	if err != nil {
		return nil, err
	}
	d := &docState{value: v}
	t.docs[key] = d
	return d, nil
}

func (t *docTxn) collectionIDs(coll string) ([]string, error) {
	ids, ok := t.colls[coll]
	if !ok {
		loaded, err := t.load.loadCollection(t.ctx, coll)
		if err != nil {
			return nil, err
		}
		ids = loaded
		t.colls[coll] = ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for key := range t.docs {
		c, id := splitDocKey(key)
		if c != coll {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *docTxn) collectionNames() ([]string, error) {
	if !t.rootsLoaded {
		roots, err := t.load.loadCollections(t.ctx)
		if err != nil {
			return nil, err
		}
		t.roots = roots
		t.rootsLoaded = true
	}
	seen := make(map[string]struct{}, len(t.roots))
	out := append([]string(nil), t.roots...)
	for _, c := range t.roots {
		seen[c] = struct{}{}
	}
	for key := range t.docs {
		c, _ := splitDocKey(key)
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *docTxn) collection(coll string) (any, error) {
	ids, err := t.collectionIDs(coll)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, len(ids))
	for _, id := range ids {
		d, err := t.doc(docKey(coll, id))
		if err != nil {
			return nil, err
		}
		if d.value != nil {
			m[id] = d.value
		}
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func (t *docTxn) node(segs []string) (any, error) {
	switch len(segs) {
	case 0:
		names, err := t.collectionNames()
		if err != nil {
			return nil, err
		}
		root := make(map[string]any, len(names))
		for _, name := range names {
			c, err := t.collection(name)
			if err != nil {
				return nil, err
			}
			if c != nil {
				root[name] = c
			}
		}
		if len(root) == 0 {
			return nil, nil
		}
		return root, nil
	case 1:
		return t.collection(segs[0])
	default:
		d, err := t.doc(docKey(segs[0], segs[1]))
		if err != nil {
			return nil, err
		}
		return getNode(d.value, segs[2:]), nil
	}
}

func (t *docTxn) Get(path string) ([]byte, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	n, err := t.node(segs)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("get %q: %w", path, ErrNotFound)
	}
	return json.Marshal(n)
}

func (t *docTxn) Set(path string, value any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	switch len(segs) {
	case 0:
		m, ok := v.(map[string]any)
		if v != nil && !ok {
			return fmt.Errorf("%w: root must be an object", ErrInvalidValue)
		}
		names, err := t.collectionNames()
		if err != nil {
			return err
		}
		for name := range m {
			names = append(names, name)
		}
		for _, name := range names {
			if err := t.setCollection(name, m[name]); err != nil {
				return err
			}
		}
		return nil
	case 1:
		return t.setCollection(segs[0], v)
	default:
		d, err := t.doc(docKey(segs[0], segs[1]))
		if err != nil {
			return err
		}
		d.value = setNode(d.value, segs[2:], v)
		d.dirty = true
		return nil
	}
}

func (t *docTxn) setCollection(coll string, v any) error {
	if _, err := splitPath(coll); err != nil {
		return err
	}
	m, ok := v.(map[string]any)
	if v != nil && !ok {
		return fmt.Errorf("%w: collection %q must be an object", ErrInvalidValue, coll)
	}
	ids, err := t.collectionIDs(coll)
	if err != nil {
		return err
	}
	for id := range m {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if strings.ContainsAny(id, "/.#$[]") || id == "" {
			return fmt.Errorf("%w: key %q", ErrInvalidPath, id)
		}
		d, err := t.doc(docKey(coll, id))
		if err != nil {
			return err
		}
		d.value = m[id]
		d.dirty = true
	}
	return nil
}

func (t *docTxn) Update(path string, values map[string]any) error {
	return runUpdate(t, path, values)
}

// dirtyKeys lists the documents written by the transaction in key order
func (t *docTxn) dirtyKeys() []string {
	keys := make([]string, 0, len(t.docs))
	for k, d := range t.docs {
		if d.dirty {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
