package memstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/eav/eavtest"
	"github.com/starford/kiln/internal/eav/memstore"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/query/render"
)

func newStore(t *testing.T) eav.Store {
	t.Helper()
	s := memstore.New()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	eavtest.RunStorage(t, newStore)
}

func TestQueries(t *testing.T) {
	eavtest.RunQueries(t, newStore, "memory")
}

func TestExecute_Rejects(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	_, err := s.Execute(ctx, &render.RenderedQuery{Backend: render.BackendSQLite, Text: "SELECT 1"})
	assert.Error(t, err, "sqlite rendering")

	_, err = s.Execute(ctx, &render.RenderedQuery{Backend: render.BackendGraph, Text: "MATCH (n) RETURN n"})
	assert.Error(t, err, "missing plan")
}

func TestUpdate_ReadersSeeCommittedSnapshot(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Update(ctx, func(tx eav.Store) error {
			if err := tx.CreateEntity(ctx, &eav.Entity{Type: eav.EntityNote, Path: "pending.md", Title: "Pending"}); err != nil {
				return err
			}
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	n, err := s.CountEntities(ctx, eav.EntityFilter{})
	require.NoError(t, err)
	assert.Zero(t, n, "uncommitted entity visible")

	close(release)
	require.NoError(t, <-done)
	n, err = s.CountEntities(ctx, eav.EntityFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	recs := eav.NewRecords(s)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				rec := models.NoteRecord{Path: fmt.Sprintf("n%d-%d.md", i, j), Title: "load", Tags: []string{"load"}, Links: []string{"n0-0"}}
				if _, err := recs.UpsertRecord(ctx, rec); err != nil {
					errs <- err
				}
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := s.EntitiesByTag(ctx, "load"); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	n, err := s.CountEntities(ctx, eav.EntityFilter{Type: eav.EntityNote})
	require.NoError(t, err)
	assert.Equal(t, 40, n)
}
