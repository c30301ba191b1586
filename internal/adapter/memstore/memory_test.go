package memstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doccatalog/internal/domain"
)

func rec(id string, vectors int) domain.CollectionRecord {
	return domain.CollectionRecord{
		Identity:     domain.Identity(id),
		Filename:     id + ".txt",
		CollectionID: id + "_" + id + ".txt",
		VectorCount:  vectors,
		Metadata:     domain.Metadata{"tags": domain.Strings([]string{"x"})},
	}
}

func TestMemoryCatalog_Lifecycle(t *testing.T) {
	c := NewMemoryCatalog()

	require.NoError(t, c.Insert(rec("b", 5)))
	require.NoError(t, c.Insert(rec("a", 3)))
	assert.ErrorIs(t, c.Insert(rec("a", 1)), domain.ErrDuplicateIdentity)

	all, err := c.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.Identity("a"), all[0].Identity)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 8, stats.TotalVectors)

	ok, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err = c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 5, stats.TotalVectors)
}

func TestMemoryCatalog_RecordAccess(t *testing.T) {
	c := NewMemoryCatalog()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return at })
	require.NoError(t, c.Insert(rec("a", 1)))

	require.NoError(t, c.RecordAccess("a"))
	require.NoError(t, c.RecordAccess("missing"))

	got, found, err := c.Lookup("a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, got.AccessCount)
	assert.Equal(t, at, *got.LastAccessed)
}

func TestMemoryCatalog_ReturnsCopies(t *testing.T) {
	c := NewMemoryCatalog()
	require.NoError(t, c.Insert(rec("a", 1)))

	got, _, err := c.Lookup("a")
	require.NoError(t, err)
	got.Metadata["tags"] = domain.String("mutated")

	again, _, err := c.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, domain.KindStrings, again.Metadata["tags"].Kind())
}

func TestMemoryCatalog_SnapshotRestore(t *testing.T) {
	c := NewMemoryCatalog()
	require.NoError(t, c.Insert(rec("a", 2)))
	require.NoError(t, c.Insert(rec("b", 4)))
	snap, err := c.Snapshot()
	require.NoError(t, err)

	other := NewMemoryCatalog()
	require.NoError(t, other.Restore(snap))
	all, err := other.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	stats, err := other.Stats()
	require.NoError(t, err)
	assert.Equal(t, 6, stats.TotalVectors)
}
