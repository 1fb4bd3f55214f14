package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/autosave"
	"github.com/hpungsan/margin/internal/clock"
	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/db"
	"github.com/hpungsan/margin/internal/study"
	"github.com/hpungsan/margin/internal/web"
)

func TestAutosaveAgainstServer(t *testing.T) {
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	srv := httptest.NewServer(web.NewHandler(database, config.DefaultConfig(), nil))
	t.Cleanup(srv.Close)

	api := New(srv.URL, nil)
	key := autosave.Key{StudentID: "stu-1", SubjectID: "anat-01"}
	ctx := context.Background()

	open := func() (*study.Session, *autosave.Coordinator, *clock.Fake) {
		fc := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
		s := study.NewSession(annotation.NewManager(annotation.Options{Clock: fc}))
		c := autosave.New(key, api, s, autosave.Options{Clock: fc})
		t.Cleanup(c.Wait)
		c.Mount(ctx)
		require.True(t, c.Ready())
		return s, c, fc
	}

	s, c, fc := open()
	_, ok := s.Annotations.Create("nervo ulnar", annotation.KindNote, "passa atrás do epicôndilo", annotation.ColorBlue)
	require.True(t, ok)
	require.NoError(t, s.SetMastery("nervo ulnar", 40))

	fc.Advance(autosave.DefaultDebounce)
	c.Wait()
	require.Equal(t, autosave.StatusSaved, c.Status())

	records, err := api.ListAnnotations(ctx, key.SubjectID, key.StudentID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "nervo ulnar", records[0].OriginalText)

	// A second viewer of the same document sees the saved state.
	s2, c2, _ := open()
	defer c2.Unmount()
	doc := s2.Snapshot()
	require.Len(t, doc.Annotations, 1)
	require.Equal(t, 40, doc.KeywordMastery["nervo ulnar"])

	// Deleting locally soft-deletes the record on the next save.
	s.Annotations.Delete(doc.Annotations[0].ID)
	c.Flush()
	c.Wait()
	require.Equal(t, autosave.StatusSaved, c.Status())

	records, err = api.ListAnnotations(ctx, key.SubjectID, key.StudentID)
	require.NoError(t, err)
	require.Empty(t, records)
}
