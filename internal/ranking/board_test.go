package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/vibeup/internal/vibe"
)

func newTestBoard(t *testing.T) (*Board, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewBoard(rdb, time.Minute), mr
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func entity(id string, score int, createdAt time.Time) vibe.Entity {
	return vibe.Entity{Ref: vibe.EntityRef{Kind: vibe.KindPost, ID: id}, VibeScore: score, CreatedAt: createdAt}
}

func TestBoard_RebuildOrdersByScoreThenCreation(t *testing.T) {
	b, _ := newTestBoard(t)
	ctx := context.Background()

	ready, err := b.Ready(ctx, vibe.KindPost)
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, []vibe.Entity{
		entity("a", 70, base),
		entity("b", 90, base.Add(time.Minute)),
		entity("c", 70, base.Add(2*time.Minute)),
		entity("d", 50, base.Add(3*time.Minute)),
	}))

	ready, err = b.Ready(ctx, vibe.KindPost)
	require.NoError(t, err)
	assert.True(t, ready)

	ids, err := b.Range(ctx, vibe.KindPost, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)

	ids, err = b.Range(ctx, vibe.KindPost, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	n, err := b.Len(ctx, vibe.KindPost)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	// track 榜不受影响
	ready, err = b.Ready(ctx, vibe.KindTrack)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestBoard_PutOnlyWhenReady(t *testing.T) {
	b, mr := newTestBoard(t)
	ctx := context.Background()

	applied, err := b.Put(ctx, entity("a", 80, base), []byte(`{"id":"a"}`))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, mr.Exists(rankKey(vibe.KindPost)))

	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, []vibe.Entity{entity("a", 50, base), entity("b", 60, base)}))
	applied, err = b.Put(ctx, entity("a", 80, base), []byte(`{"id":"a"}`))
	require.NoError(t, err)
	assert.True(t, applied)

	ids, err := b.Range(ctx, vibe.KindPost, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, b.Invalidate(ctx, vibe.KindPost))
	ready, err := b.Ready(ctx, vibe.KindPost)
	require.NoError(t, err)
	assert.False(t, ready)

	applied, err = b.Put(ctx, entity("b", 99, base), nil)
	require.NoError(t, err)
	assert.False(t, applied)
	s, err := mr.ZScore(rankKey(vibe.KindPost), member(entity("b", 60, base)))
	require.NoError(t, err)
	assert.Equal(t, -60.0, s)
}

func withCounts(e vibe.Entity, pos, neg int64) vibe.Entity {
	return e.WithCounts(vibe.Counts{Positive: pos, Negative: neg})
}

func TestBoard_PutNeverGoesBackwards(t *testing.T) {
	b, _ := newTestBoard(t)
	ctx := context.Background()

	a := entity("a", 50, base)
	c := entity("c", 50, base.Add(time.Second))
	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, []vibe.Entity{a, c}))

	// 两个 worker 乱序完成：先写入 (2,1)，再到达较旧的 (1,1)
	newer := withCounts(a, 2, 1)
	older := withCounts(a, 1, 1)
	applied, err := b.Put(ctx, newer, []byte(`{"id":"a","vibe_score":67}`))
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = b.Put(ctx, older, []byte(`{"id":"a","vibe_score":50}`))
	require.NoError(t, err)
	assert.False(t, applied)

	ids, err := b.Range(ctx, vibe.KindPost, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)
	got, err := b.Payloads(ctx, vibe.KindPost, []string{"a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","vibe_score":67}`, string(got["a"]))

	// 相同计数重复写入是幂等的
	applied, err = b.Put(ctx, newer, []byte(`{"id":"a","vibe_score":67}`))
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestBoard_SubMillisecondTiesFollowCreationOrder(t *testing.T) {
	b, _ := newTestBoard(t)
	ctx := context.Background()

	// id 与创建顺序相反，同一毫秒内相隔 100µs
	ids := []string{"f", "e", "d", "c", "b", "a"}
	entries := make([]vibe.Entity, len(ids))
	for i, id := range ids {
		entries[i] = entity(id, 50, base.Add(time.Duration(i)*100*time.Microsecond))
	}
	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, entries))

	got, err := b.Range(ctx, vibe.KindPost, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, ids, got)

	// 创建时间完全相同时按 id 升序
	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, []vibe.Entity{
		entity("y", 40, base), entity("x", 40, base), entity("z", 90, base.Add(time.Hour)),
	}))
	got, err = b.Range(ctx, vibe.KindPost, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x", "y"}, got)
}

func TestBoard_RebuildDropsCachedSnapshots(t *testing.T) {
	b, mr := newTestBoard(t)
	ctx := context.Background()

	a := entity("a", 50, base)
	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, []vibe.Entity{a}))
	applied, err := b.Put(ctx, a, []byte(`{"id":"a","vibe_score":50}`))
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, mr.Exists(snapKey(vibe.KindPost, "a")))

	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, []vibe.Entity{withCounts(a, 0, 1)}))
	assert.False(t, mr.Exists(snapKey(vibe.KindPost, "a")))
	assert.Equal(t, "1", mr.HGet(totalsKey(vibe.KindPost), "a"))

	// 重建后较旧的快照不能再写回
	applied, err = b.Put(ctx, a, []byte(`{"id":"a","vibe_score":50}`))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestBoard_CachePayloadsKeepsNewerSnapshot(t *testing.T) {
	b, _ := newTestBoard(t)
	ctx := context.Background()

	a := entity("a", 50, base)
	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, []vibe.Entity{a}))
	_, err := b.Put(ctx, withCounts(a, 1, 0), []byte(`{"id":"a","vibe_score":100}`))
	require.NoError(t, err)

	require.NoError(t, b.CachePayloads(ctx, vibe.KindPost, map[string][]byte{"a": []byte(`{"id":"a","vibe_score":50}`)}))
	got, err := b.Payloads(ctx, vibe.KindPost, []string{"a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","vibe_score":100}`, string(got["a"]))
}

func TestBoard_PayloadsCountsHitsAndMisses(t *testing.T) {
	b, mr := newTestBoard(t)
	ctx := context.Background()

	require.NoError(t, b.CachePayloads(ctx, vibe.KindTrack, map[string][]byte{"t1": []byte(`{"id":"t1"}`)}))
	got, err := b.Payloads(ctx, vibe.KindTrack, []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"t1": []byte(`{"id":"t1"}`)}, got)
	assert.Equal(t, BoardCounters{Hits: 1, Misses: 1}, b.Counters())

	mr.FastForward(2 * time.Minute)
	got, err = b.Payloads(ctx, vibe.KindTrack, []string{"t1"})
	require.NoError(t, err)
	assert.Empty(t, got)

	b.ResetCounters()
	assert.Equal(t, BoardCounters{}, b.Counters())
}

func TestBoard_RebuildEmptyAndWrongKind(t *testing.T) {
	b, _ := newTestBoard(t)
	ctx := context.Background()

	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, []vibe.Entity{entity("a", 50, base)}))
	require.NoError(t, b.Rebuild(ctx, vibe.KindPost, nil))
	ids, err := b.Range(ctx, vibe.KindPost, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.EqualValues(t, 2, b.Counters().Rebuilds)

	wrong := vibe.Entity{Ref: vibe.EntityRef{Kind: vibe.KindTrack, ID: "t"}}
	require.Error(t, b.Rebuild(ctx, vibe.KindPost, []vibe.Entity{wrong}))
}
