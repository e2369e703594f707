// Package store provides the local persisted key/value layer shared by the
// session and course packages. Records are namespaced by kind (e.g. "session",
// "progress", "syllabus") and an id within that kind.
package store

import (
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when no record exists for a kind/id pair.
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned when a versioned write would decrease the
	// stored cache version.
	ErrStaleVersion = errors.New("stale cache version")
)

// Store defines the interface for local record storage.
type Store interface {
	Get(kind string, id string) ([]byte, error)
	Put(kind string, id string, data []byte) error
	Delete(kind string, id string) error
}

// Envelope wraps a cached record with the server-issued cache version it was
// fetched under.
type Envelope struct {
	Data         json.RawMessage `json:"data"`
	CacheVersion uint64          `json:"cacheVersion"`
}

// GetJSON reads and decodes an unversioned JSON record. A stored value that
// fails to parse is treated as a cache miss.
func GetJSON(s Store, kind, id string, out any) error {
	data, err := s.Get(kind, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return ErrNotFound
	}
	return nil
}

// PutJSON encodes and writes an unversioned JSON record.
func PutJSON(s Store, kind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(kind, id, data)
}

// GetVersioned reads an envelope-wrapped record and decodes its payload into
// out, returning the cache version it was stored under. Corrupt envelopes and
// corrupt payloads both read as misses.
func GetVersioned(s Store, kind, id string, out any) (uint64, error) {
	data, err := s.Get(kind, id)
	if err != nil {
		return 0, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, ErrNotFound
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return 0, ErrNotFound
		}
	}
	return env.CacheVersion, nil
}

// PutVersioned writes an envelope-wrapped record unconditionally.
func PutVersioned(s Store, kind, id string, v any, version uint64) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{Data: payload, CacheVersion: version})
	if err != nil {
		return err
	}
	return s.Put(kind, id, data)
}

// PutIfNewer writes an envelope-wrapped record only if version is greater than
// or equal to the stored one. The cache version for a given record never
// decreases; a write that would lower it fails with ErrStaleVersion.
func PutIfNewer(s Store, kind, id string, v any, version uint64) error {
	existing, err := GetVersioned(s, kind, id, nil)
	if err == nil && version < existing {
		return ErrStaleVersion
	}
	return PutVersioned(s, kind, id, v, version)
}
