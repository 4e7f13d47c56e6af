package docstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Counter int               `json:"counter"`
	Items   map[string]string `json:"items"`
}

func emptyDoc() testDoc {
	return testDoc{Items: map[string]string{}}
}

func newTestStore(t *testing.T) *Store[testDoc] {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "doc.json"), emptyDoc)
}

func TestRead_MissingFileReturnsEmpty(t *testing.T) {
	s := newTestStore(t)

	doc := s.Read()
	require.Equal(t, 0, doc.Counter)
	require.NotNil(t, doc.Items)
}

func TestRead_CorruptFileSelfHeals(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	doc := s.Read()
	require.Equal(t, 0, doc.Counter)

	// A subsequent mutation replaces the corrupt file.
	err := s.Mutate(context.Background(), func(doc *testDoc) error {
		doc.Counter = 7
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, s.Read().Counter)
}

func TestMutate_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	err := s.Mutate(context.Background(), func(doc *testDoc) error {
		doc.Counter = 42
		doc.Items["k"] = "v"
		return nil
	})
	require.NoError(t, err)

	doc := s.Read()
	require.Equal(t, 42, doc.Counter)
	require.Equal(t, "v", doc.Items["k"])

	// Document is written as indented JSON.
	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.True(t, json.Valid(raw))
	require.Contains(t, string(raw), "\n  \"counter\"")
}

func TestMutate_FnErrorAbortsWrite(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Mutate(context.Background(), func(doc *testDoc) error {
		doc.Counter = 1
		return nil
	}))

	err := s.Mutate(context.Background(), func(doc *testDoc) error {
		doc.Counter = 99
		return os.ErrPermission
	})
	require.ErrorIs(t, err, os.ErrPermission)
	require.Equal(t, 1, s.Read().Counter)
}

func TestMutate_CanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Mutate(ctx, func(doc *testDoc) error {
		doc.Counter = 1
		return nil
	})
	require.Error(t, err)
}

func TestMutate_SerializedUnderConcurrency(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Mutate(context.Background(), func(doc *testDoc) error {
				doc.Counter++
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 50, s.Read().Counter)
}

func TestMutate_NoTempFilesLeftBehind(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Mutate(context.Background(), func(doc *testDoc) error {
		doc.Counter = 1
		return nil
	}))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(s.Path()), entries[0].Name())
}
