package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_AppendAndEvents(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()

	_, err := s.Append(ctx, Record{View: 7})
	require.Error(t, err)

	id1, err := s.Append(ctx, Record{View: 7, Type: "load-start", URI: "https://example.com/"})
	require.NoError(t, err)
	id2, err := s.Append(ctx, Record{View: 7, Type: "load-finish", URI: "https://example.com/", Title: "Example"})
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	recs, err := s.Events(ctx, 7, 0, 100)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "load-start", recs[0].Type)
	require.Equal(t, "load-finish", recs[1].Type)

	// Evict oldest when exceeding the per-view limit
	_, err = s.Append(ctx, Record{View: 7, Type: "message", Data: "ping"})
	require.NoError(t, err)

	recs, err = s.Events(ctx, 7, 0, 100)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "load-finish", recs[0].Type)
	require.Equal(t, "message", recs[1].Type)

	tail, err := s.Events(ctx, 7, recs[0].ID, 100)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, "message", tail[0].Type)
	require.Equal(t, "ping", tail[0].Data)
}

func TestInMemoryStore_ListViewsAndPurge(t *testing.T) {
	s := NewInMemoryStore(100)
	ctx := context.Background()

	_, err := s.Append(ctx, Record{View: 1, Type: "load-start", AtMs: 1000, URI: "https://a.test/"})
	require.NoError(t, err)
	_, err = s.Append(ctx, Record{View: 2, Type: "load-finish", AtMs: 1500, URI: "https://b.test/", Title: "B"})
	require.NoError(t, err)
	_, err = s.Append(ctx, Record{View: 1, Type: "detached", AtMs: 2000})
	require.NoError(t, err)

	list, err := s.ListViews(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, int64(1), int64(list[0].View))
	require.Equal(t, int64(2), list[0].EventCount)
	require.Equal(t, int64(1000), list[0].FirstSeenMs)
	require.Equal(t, int64(2000), list[0].LastActivityMs)
	require.Equal(t, "https://a.test/", list[0].LastURI)
	require.True(t, list[0].Detached)
	require.Equal(t, int64(2), int64(list[1].View))
	require.Equal(t, "B", list[1].LastTitle)
	require.False(t, list[1].Detached)

	filtered, err := s.ListViews(ctx, 10, 1600)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, int64(1), int64(filtered[0].View))

	removed, err := s.Purge(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	recs, err := s.Events(ctx, 2, 0, 100)
	require.NoError(t, err)
	require.Empty(t, recs)

	list, err = s.ListViews(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
