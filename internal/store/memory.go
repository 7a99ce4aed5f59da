package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a concurrency-safe in-memory implementation of Store.
// Transactions hold the write lock for their whole duration, so they are
// serialized against each other.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string][]byte              // key: "coll/id" -> encoded document
	index  map[string]map[string]struct{} // key: coll -> ids
	hub    *hub
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string][]byte),
		index: make(map[string]map[string]struct{}),
		hub:   newHub(),
	}
}

type memoryLoader struct {
	s *MemoryStore
}

func (l memoryLoader) loadDoc(_ context.Context, key string) (any, error) {
	return decode(l.s.docs[key])
}

func (l memoryLoader) loadCollection(_ context.Context, coll string) ([]string, error) {
	ids := make([]string, 0, len(l.s.index[coll]))
	for id := range l.s.index[coll] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (l memoryLoader) loadCollections(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(l.s.index))
	for name := range l.s.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return newDocTxn(ctx, memoryLoader{s}).Get(path)
}

func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	return s.RunTransaction(ctx, func(tx Txn) error {
		return tx.Set(path, value)
	})
}

func (s *MemoryStore) Update(ctx context.Context, path string, values map[string]any) error {
	return s.RunTransaction(ctx, func(tx Txn) error {
		return tx.Update(path, values)
	})
}

func (s *MemoryStore) Push(ctx context.Context, path string, value any) (string, error) {
	key := s.NewKey()
	if err := s.Set(ctx, Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

func (s *MemoryStore) NewKey() string {
	return NewPushKey()
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	t := newDocTxn(ctx, memoryLoader{s})
	if err := fn(t); err != nil {
		s.mu.Unlock()
		return err
	}
	changed, err := s.commit(t)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hub.publish(changed)
	return nil
}

// commit applies the dirty documents of t. The caller holds the write lock.
func (s *MemoryStore) commit(t *docTxn) ([]string, error) {
	keys := t.dirtyKeys()
	encoded := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v := t.docs[k].value
		if v == nil {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %q: %v", ErrInvalidValue, k, err)
		}
		encoded[k] = b
	}

	for _, k := range keys {
		coll, id := splitDocKey(k)
		b, ok := encoded[k]
		if !ok {
			delete(s.docs, k)
			if ids := s.index[coll]; ids != nil {
				delete(ids, id)
				if len(ids) == 0 {
					delete(s.index, coll)
				}
			}
			continue
		}
		s.docs[k] = b
		if s.index[coll] == nil {
			s.index[coll] = make(map[string]struct{})
		}
		s.index[coll][id] = struct{}{}
	}
	return keys, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string) (<-chan Event, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return s.hub.subscribe(ctx, segs), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.closeAll()
	return nil
}
