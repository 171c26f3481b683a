package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/vibeup/internal/events"
	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/ranking"
	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	mr        *miniredis.Miniredis
	board     *ranking.Board
	clock     clockwork.FakeClock
	posts     repository.PostRepository
	tracks    repository.TrackRepository
	catalog   *Catalog
	boardSync *BoardSync
	postSvc   PostService
	trackSvc  TrackService
	reactSvc  ReactionService
}

func newFixture(t *testing.T, queueSize int) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{db: db, mr: mr, board: ranking.NewBoard(rdb, time.Minute), clock: clockwork.NewFakeClockAt(base)}
	f.posts = repository.NewPostRepository(db)
	f.tracks = repository.NewTrackRepository(db)
	f.catalog = NewCatalog(f.posts, f.tracks)
	f.boardSync = NewBoardSync(f.board, f.catalog, queueSize)
	f.postSvc = NewPostService(f.posts, f.tracks, f.board, f.boardSync, f.clock)
	f.trackSvc = NewTrackService(f.tracks, f.board, f.boardSync, f.clock)
	engine := vibe.NewEngine(repository.NewReactionStore(db), vibe.WithClock(f.clock))
	f.reactSvc = NewReactionService(engine, f.catalog, repository.NewReactionRepository(db), f.boardSync)
	return f
}

func (f *fixture) startSync(t *testing.T) {
	t.Helper()
	stop := f.boardSync.Start(2)
	t.Cleanup(func() { _ = stop(context.Background()) })
}

func (f *fixture) createPost(t *testing.T, content string) PostView {
	t.Helper()
	p, err := f.postSvc.Create(context.Background(), "author-1", CreatePostInput{Content: content})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return p
}

func (f *fixture) react(t *testing.T, user, postID string, polarity vibe.Polarity) ReactionResult {
	t.Helper()
	res, err := f.reactSvc.React(context.Background(), user, vibe.EntityRef{Kind: vibe.KindPost, ID: postID}, polarity, "")
	require.NoError(t, err)
	return res
}

// fakePublisher 前 failN 次投递失败
type fakePublisher struct {
	mu     sync.Mutex
	failN  int
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failN != 0 {
		if p.failN > 0 {
			p.failN--
		}
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) Published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}
