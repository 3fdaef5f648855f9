package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_AppendAndEvents(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	dsn, err := SQLiteDSNForFile(dbPath)
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()

	_, err = s.Append(ctx, Record{View: 7})
	require.Error(t, err)

	id1, err := s.Append(ctx, Record{
		View: 7,
		Type: "load-start",
		URI:  "https://example.com/",
		Raw:  `{"type":"load-start"}`,
	})
	require.NoError(t, err)
	id2, err := s.Append(ctx, Record{
		View:  7,
		Type:  "load-finish",
		URI:   "https://example.com/",
		Title: "Example",
		Raw:   `{"type":"load-finish"}`,
	})
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	recs, err := s.Events(ctx, 7, 0, 100)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "load-start", recs[0].Type)
	require.Equal(t, `{"type":"load-start"}`, recs[0].Raw)
	require.Equal(t, "load-finish", recs[1].Type)
	require.Equal(t, "Example", recs[1].Title)
	require.NotZero(t, recs[1].AtMs)

	tail, err := s.Events(ctx, 7, id1, 100)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, id2, tail[0].ID)

	limited, err := s.Events(ctx, 7, 0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	// sanity: file exists
	_, err = os.Stat(dbPath)
	require.NoError(t, err)
}

func TestSQLiteStore_ViewIndex(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal-views.db")
	dsn, err := SQLiteDSNForFile(dbPath)
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()

	_, err = s.Append(ctx, Record{View: 1, Type: "load-start", AtMs: 1000, URI: "https://a.test/"})
	require.NoError(t, err)
	_, err = s.Append(ctx, Record{View: 2, Type: "load-finish", AtMs: 1500, URI: "https://b.test/", Title: "B"})
	require.NoError(t, err)
	_, err = s.Append(ctx, Record{View: 1, Type: "load-error", AtMs: 2000, Status: 14})
	require.NoError(t, err)
	_, err = s.Append(ctx, Record{View: 1, Type: "detached", AtMs: 2500})
	require.NoError(t, err)

	list, err := s.ListViews(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, int64(1), int64(list[0].View))
	require.Equal(t, int64(3), list[0].EventCount)
	require.Equal(t, int64(1000), list[0].FirstSeenMs)
	require.Equal(t, int64(2500), list[0].LastActivityMs)
	require.Equal(t, "https://a.test/", list[0].LastURI)
	require.True(t, list[0].Detached)
	require.Equal(t, int64(2), int64(list[1].View))
	require.Equal(t, "B", list[1].LastTitle)
	require.False(t, list[1].Detached)

	filtered, err := s.ListViews(ctx, 10, 1600)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, int64(1), int64(filtered[0].View))
}

func TestSQLiteStore_Purge(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal-purge.db")
	dsn, err := SQLiteDSNForFile(dbPath)
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()

	_, err = s.Append(ctx, Record{View: 1, Type: "load-start"})
	require.NoError(t, err)
	_, err = s.Append(ctx, Record{View: 1, Type: "load-finish"})
	require.NoError(t, err)
	_, err = s.Append(ctx, Record{View: 2, Type: "load-start"})
	require.NoError(t, err)

	removed, err := s.Purge(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	recs, err := s.Events(ctx, 1, 0, 100)
	require.NoError(t, err)
	require.Empty(t, recs)

	list, err := s.ListViews(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(2), int64(list[0].View))

	removed, err = s.Purge(ctx, 99)
	require.NoError(t, err)
	require.Zero(t, removed)
}
