package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectIDs(t *testing.T, g Graph) []EID {
	t.Helper()
	var ids []EID
	for id, err := range g.IDs(context.Background()) {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestLayeredStoreWritesToLocal(t *testing.T) {
	ctx := context.Background()
	main := NewMemStore()
	local := NewMemStore()
	ls := NewLayeredStore(main, local)

	require.NoError(t, ls.AddEntity(ctx, &Entity{ID: "e1", Label: "PERSON", Value: "Ada"}))

	_, err := local.Entity(ctx, "e1")
	assert.NoError(t, err, "entity should be in local store")
	_, err = main.Entity(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotFound, "entity should NOT be in main store")
}

func TestLayeredStoreReadsFromBoth(t *testing.T) {
	ctx := context.Background()
	main := NewMemStore()
	local := NewMemStore()
	ls := NewLayeredStore(main, local)

	require.NoError(t, main.AddEntity(ctx, &Entity{ID: "m1", Label: "CITY", Value: "Paris"}))
	require.NoError(t, local.AddEntity(ctx, &Entity{ID: "l1", Label: "CITY", Value: "Lyon"}))

	got, err := ls.Entity(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Paris", got.Value)
	assert.Equal(t, "main", got.Properties[PropGraphSource])

	got, err = ls.Entity(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Lyon", got.Value)
	assert.Equal(t, "local", got.Properties[PropGraphSource])

	id, ok, err := ls.Resolve(ctx, "Paris")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, EID("m1"), id)

	assert.Equal(t, []EID{"l1", "m1"}, collectIDs(t, ls))
}

func TestLayeredStoreLocalOverridesMain(t *testing.T) {
	ctx := context.Background()
	main := NewMemStore()
	local := NewMemStore()
	ls := NewLayeredStore(main, local)

	require.NoError(t, main.AddEntity(ctx, &Entity{ID: "dup", Label: "CITY", Value: "MainVersion"}))
	require.NoError(t, local.AddEntity(ctx, &Entity{ID: "dup", Label: "CITY", Value: "LocalVersion"}))

	got, err := ls.Entity(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "LocalVersion", got.Value)

	assert.Equal(t, []EID{"dup"}, collectIDs(t, ls), "ids should be deduplicated across layers")
}

func TestLayeredStoreRelationshipMerge(t *testing.T) {
	ctx := context.Background()
	main := NewMemStore()
	local := NewMemStore()
	ls := NewLayeredStore(main, local)

	require.NoError(t, main.AddRelationship(ctx, &Relationship{Source: "a", Tag: "KNOWS", Target: "b"}))
	require.NoError(t, main.AddRelationship(ctx, &Relationship{Source: "a", Tag: "LIKES", Target: "c"}))
	require.NoError(t, local.AddRelationship(ctx, &Relationship{Source: "a", Tag: "KNOWS", Target: "b"}))
	require.NoError(t, local.AddRelationship(ctx, &Relationship{Source: "a", Tag: "KNOWS", Target: "d"}))

	got, err := ls.Relationships(ctx, []EID{"a"}, AnyTag, Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []Neighbor{
		{ID: "b", Tag: "KNOWS"},
		{ID: "d", Tag: "KNOWS"},
		{ID: "c", Tag: "LIKES"},
	}, got)
}

func TestLayeredStoreStatsSummed(t *testing.T) {
	ctx := context.Background()
	main := NewMemStore()
	local := NewMemStore()
	ls := NewLayeredStore(main, local)

	require.NoError(t, main.AddEntity(ctx, &Entity{ID: "m1", Label: "PERSON", Value: "Ada"}))
	require.NoError(t, local.AddEntity(ctx, &Entity{ID: "l1", Label: "CITY", Value: "Paris"}))
	require.NoError(t, local.AddRelationship(ctx, &Relationship{Source: "m1", Tag: "lives_in", Target: "l1"}))

	stats, err := ls.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.EntityCount)
	assert.Equal(t, int64(1), stats.RelationshipCount)
	assert.Equal(t, int64(1), stats.EntitiesByLabel["PERSON"])
	assert.Equal(t, int64(1), stats.EntitiesByLabel["CITY"])
	assert.Equal(t, int64(1), stats.RelationshipsByTag["LIVES_IN"])
}

func TestLayeredStoreDeleteWritesToLocal(t *testing.T) {
	ctx := context.Background()
	main := NewMemStore()
	local := NewMemStore()
	ls := NewLayeredStore(main, local)

	require.NoError(t, local.AddEntity(ctx, &Entity{ID: "n1", Label: "CITY", Value: "Paris"}))
	require.NoError(t, ls.DeleteEntity(ctx, "n1"))

	_, err := local.Entity(ctx, "n1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLayeredStoreVersionTracksBothLayers(t *testing.T) {
	ctx := context.Background()
	main := NewMemStore()
	local := NewMemStore()
	ls := NewLayeredStore(main, local)

	before := ls.Version()
	require.NoError(t, main.AddEntity(ctx, &Entity{ID: "m1", Label: "CITY", Value: "Paris"}))
	afterMain := ls.Version()
	assert.Greater(t, afterMain, before)

	require.NoError(t, ls.AddEntity(ctx, &Entity{ID: "l1", Label: "CITY", Value: "Lyon"}))
	assert.Greater(t, ls.Version(), afterMain)
}
