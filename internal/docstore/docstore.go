// Package docstore defines the document persistence port the engine writes
// through, plus in-process implementations and decorators.
//
// A document is a JSON object stored under a string key. Set either replaces
// the stored object or merges the given top-level fields into it. Each call is
// expected to be durable once it returns; there is no multi-key transaction.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// WriteMode selects replace or merge semantics for Set.
type WriteMode int

const (
	Replace WriteMode = iota
	Merge
)

func (m WriteMode) String() string {
	if m == Merge {
		return "merge"
	}
	return "replace"
}

// Store is the persistence collaborator.
type Store interface {
	// Get returns the document stored at key. found is false when absent.
	Get(ctx context.Context, key string) (doc []byte, found bool, err error)

	// Set writes doc at key using the given mode.
	Set(ctx context.Context, key string, doc []byte, mode WriteMode) error
}

// ErrNotObject is returned when a merge is attempted on something that is not
// a JSON object.
var ErrNotObject = errors.New("document is not a JSON object")

// UserKey builds the key of a per-user data document.
func UserKey(userID, name string) string {
	return fmt.Sprintf("users/%s/data/%s", userID, name)
}

// MergeJSON merges the top-level fields of patch into existing. Fields present
// in patch overwrite those in existing; other fields are kept.
func MergeJSON(existing, patch []byte) ([]byte, error) {
	var base map[string]json.RawMessage
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &base); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
		}
	}
	var upd map[string]json.RawMessage
	if err := json.Unmarshal(patch, &upd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if base == nil {
		base = make(map[string]json.RawMessage, len(upd))
	}
	for k, v := range upd {
		base[k] = v
	}
	return json.Marshal(base)
}

// Resolve computes the document that results from writing doc over existing
// with mode. Implementations without a native merge use it.
func Resolve(existing []byte, found bool, doc []byte, mode WriteMode) ([]byte, error) {
	if mode == Merge && found {
		return MergeJSON(existing, doc)
	}
	if !json.Valid(doc) {
		return nil, ErrNotObject
	}
	return doc, nil
}
