// Package docstore persists JSON documents with serialized mutation and
// atomic write-replace.
package docstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/yoyoo-ai/yoyoo/internal/lock"
)

// Store binds one JSON document to a fixed path. All read-modify-write
// cycles against the same Store are serialized, so two concurrent Mutate
// calls never interleave.
type Store[T any] struct {
	path  string
	empty func() T
	locks *lock.MutexMap
}

func New[T any](path string, empty func() T) *Store[T] {
	return &Store[T]{
		path:  path,
		empty: empty,
		locks: lock.NewMutexMap(),
	}
}

// Path returns the backing file path.
func (s *Store[T]) Path() string {
	return s.path
}

// Read returns the last written document. A missing, unreadable, or corrupt
// file self-heals to the empty default and never returns an error.
func (s *Store[T]) Read() T {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return s.empty()
	}
	doc := s.empty()
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.Warn("discarding corrupt document", "path", s.path, "error", err)
		return s.empty()
	}
	return doc
}

// Mutate applies fn to the current document and persists the result. An fn
// error aborts the cycle without writing. A write failure propagates to this
// caller only; the document on disk keeps its previous content.
func (s *Store[T]) Mutate(ctx context.Context, fn func(doc *T) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "mutate aborted")
	}

	s.locks.Lock(s.path)
	defer s.locks.Unlock(s.path)

	doc := s.Read()
	if err := fn(&doc); err != nil {
		return err
	}
	return s.write(doc)
}

// write persists doc via temp file + fsync + rename so a crash mid-write
// cannot corrupt the document.
func (s *Store[T]) write(doc T) error {
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal document")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create data dir")
	}

	tmp, err := os.CreateTemp(dir, ".yoyoo-tmp-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	defer func() {
		// Clean up temp file on any failure
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "atomic rename")
	}
	return nil
}
