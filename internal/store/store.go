// Package store is a hierarchical key/value data store addressed by
// slash separated paths such as "ads/{productId}/bids/{bidId}".
//
// Data is grouped into documents keyed by the first two path segments
// ("ads/p1", "bids/u1"). Transactions and change events operate at document
// granularity: a write anywhere under "ads/p1" is one change of document
// "ads/p1".
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketplace-bidding/utils"
)

var (
	ErrNotFound      = errors.New("store: path not found")
	ErrInvalidPath   = errors.New("store: invalid path")
	ErrInvalidValue  = errors.New("store: invalid value")
	ErrTxnConflict   = errors.New("store: transaction conflict, retries exhausted")
	ErrPartialCommit = errors.New("store: transaction partially committed")
	ErrClosed        = errors.New("store: closed")
)

// Event reports a committed change of the document at Path
type Event struct {
	Path string
}

// Txn is the read/write view handed to a transaction function. Reads observe
// the transaction's own writes. Writes are committed together when the
// function returns nil and discarded otherwise.
type Txn interface {
	Get(path string) ([]byte, error)
	Set(path string, value any) error
	Update(path string, values map[string]any) error
}

// Store is the system of record for products, bids and users
type Store interface {
	// Get returns the JSON encoding of the node at path or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
	// Set replaces the node at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error
	// Update writes every relative path in values atomically.
	Update(ctx context.Context, path string, values map[string]any) error
	// Push appends value under path with a generated, time-ordered key.
	Push(ctx context.Context, path string, value any) (string, error)
	// NewKey generates a push key without writing anything.
	NewKey() string
	RunTransaction(ctx context.Context, fn func(tx Txn) error) error
	// Subscribe delivers an Event for every committed change overlapping
	// path until ctx is done. Pending events are coalesced.
	Subscribe(ctx context.Context, path string) (<-chan Event, error)
	Close() error
}

// Join builds a path from segments, ignoring empty ones
func Join(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, "/")
}

// NewPushKey returns a time-ordered unique key
func NewPushKey() string {
	return utils.GenerateSortableID()
}

func splitPath(p string) ([]string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil, nil
	}
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" || strings.ContainsAny(s, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return segs, nil
}

func docKey(coll, id string) string {
	return coll + "/" + id
}

func splitDocKey(key string) (coll, id string) {
	coll, id, _ = strings.Cut(key, "/")
	return coll, id
}

// overlaps reports whether one segment path is a prefix of the other
func overlaps(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func runUpdate(tx Txn, path string, values map[string]any) error {
	entries, err := updateEntries(values)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := tx.Set(Join(path, e.path), e.value); err != nil {
			return err
		}
	}
	return nil
}
