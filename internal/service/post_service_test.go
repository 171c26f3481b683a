package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/vibeup/internal/events"
	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

func TestPostService_CreateWritesOutbox(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()

	p, err := f.postSvc.Create(ctx, "author-1", CreatePostInput{Content: "  first drop  ", ImageURL: "https://img.example.com/1.png"})
	require.NoError(t, err)
	assert.Equal(t, "first drop", p.Content)
	assert.Equal(t, vibe.NeutralScore, p.VibeScore)
	assert.Equal(t, vibe.TierMixed, p.Tier)
	assert.Equal(t, base, p.CreatedAt)

	var rows []model.Outbox
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, events.TypePostPublished, rows[0].EventType)
	assert.Equal(t, p.ID, rows[0].AggregateID)

	got, err := f.postSvc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.EqualValues(t, 0, got.PositiveReactions)
}

func TestPostService_CreateValidation(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()

	cases := []struct {
		name   string
		author string
		in     CreatePostInput
		want   error
	}{
		{"missing author", " ", CreatePostInput{Content: "x"}, vibe.ErrInvalidInput},
		{"blank content", "a", CreatePostInput{Content: "   "}, vibe.ErrInvalidInput},
		{"too long", "a", CreatePostInput{Content: strings.Repeat("é", maxContentLength+1)}, vibe.ErrInvalidInput},
		{"unknown track", "a", CreatePostInput{Content: "x", TrackID: "nope"}, vibe.ErrEntityNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.postSvc.Create(ctx, tc.author, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&model.Post{}).Count(&n).Error)
	assert.Zero(t, n)

	_, err := f.postSvc.Get(ctx, "missing")
	require.ErrorIs(t, err, vibe.ErrEntityNotFound)
}

func TestPostService_FeedFallsBackThenUsesBoard(t *testing.T) {
	f := newFixture(t, 64)
	ctx := context.Background()

	a := f.createPost(t, "a")
	b := f.createPost(t, "b")
	c := f.createPost(t, "c")
	f.react(t, "u1", b.ID, vibe.Positive)
	f.react(t, "u2", c.ID, vibe.Negative)

	page, err := f.postSvc.Feed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, page.Source)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, []string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})

	// 回源时已排队重建，启动 worker 后排行榜就绪
	f.startSync(t)
	require.Eventually(t, func() bool {
		ready, err := f.board.Ready(ctx, vibe.KindPost)
		return err == nil && ready
	}, 2*time.Second, 10*time.Millisecond)

	page, err = f.postSvc.Feed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, SourceBoard, page.Source)
	require.Len(t, page.Items, 3)
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, []string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})
	assert.Equal(t, 100, page.Items[0].VibeScore)
	assert.Equal(t, vibe.TierExcellent, page.Items[0].Tier)

	// 第二次读取命中快照缓存
	f.board.ResetCounters()
	_, err = f.postSvc.Feed(ctx, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, f.board.Counters().Hits)

	// 新反应经 BoardSync 反映到排行榜
	f.react(t, "u3", c.ID, vibe.Positive)
	f.react(t, "u4", c.ID, vibe.Positive)
	require.Eventually(t, func() bool {
		page, err := f.postSvc.Feed(ctx, 1, 1)
		return err == nil && page.Source == SourceBoard && len(page.Items) == 1 && page.Items[0].ID == b.ID
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		page, err := f.postSvc.Feed(ctx, 2, 1)
		return err == nil && len(page.Items) == 1 && page.Items[0].ID == c.ID && page.Items[0].VibeScore == 67
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPostService_FeedWithoutBoard(t *testing.T) {
	f := newFixture(t, 16)
	svc := NewPostService(f.posts, f.tracks, nil, nil, f.clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "author", CreatePostInput{Content: "post"})
		require.NoError(t, err)
	}
	page, err := svc.Feed(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, defaultPageSize, page.PageSize)
	assert.Equal(t, SourceDatabase, page.Source)
	assert.Len(t, page.Items, 3)

	page, err = svc.Feed(ctx, 2, 1000)
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, page.PageSize)
	assert.Empty(t, page.Items)
}

func TestPostService_FeedOrderMatchesAcrossSources(t *testing.T) {
	f := newFixture(t, 64)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := f.postSvc.Create(ctx, "author-1", CreatePostInput{Content: "same millisecond"})
		require.NoError(t, err)
		f.clock.Advance(100 * time.Microsecond)
	}

	ids := func(p PostPage) []string {
		out := make([]string, len(p.Items))
		for i, it := range p.Items {
			out[i] = it.ID
		}
		return out
	}

	fromDB, err := f.postSvc.Feed(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, SourceDatabase, fromDB.Source)
	require.Len(t, fromDB.Items, 6)
	for i := 1; i < len(fromDB.Items); i++ {
		assert.True(t, fromDB.Items[i-1].CreatedAt.Before(fromDB.Items[i].CreatedAt))
	}

	entries, err := f.catalog.RankEntries(ctx, vibe.KindPost)
	require.NoError(t, err)
	require.NoError(t, f.board.Rebuild(ctx, vibe.KindPost, entries))

	fromBoard, err := f.postSvc.Feed(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, SourceBoard, fromBoard.Source)
	assert.Equal(t, ids(fromDB), ids(fromBoard))
}
