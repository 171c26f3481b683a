package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/d60-Lab/vibeup/internal/events"
	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/ranking"
	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

const maxContentLength = 2000

type CreatePostInput struct {
	Content  string
	ImageURL string
	TrackID  string
}

// PostView 带档位的 post 快照
type PostView struct {
	model.Post
	Tier vibe.Tier `json:"tier"`
}

type PostPage struct {
	Items    []PostView `json:"items"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Total    int64      `json:"total"`
	Source   string     `json:"source"`
}

// PostService 动态发布与 feed
type PostService interface {
	Create(ctx context.Context, authorID string, in CreatePostInput) (PostView, error)
	Get(ctx context.Context, id string) (PostView, error)
	Feed(ctx context.Context, page, pageSize int) (PostPage, error)
}

type postService struct {
	posts  repository.PostRepository
	tracks repository.TrackRepository
	board  *ranking.Board
	sync   *BoardSync
	clock  clockwork.Clock
}

// NewPostService board 与 sync 可为 nil（未配置 Redis 时直接读库）
func NewPostService(posts repository.PostRepository, tracks repository.TrackRepository, board *ranking.Board, bs *BoardSync, clock clockwork.Clock) PostService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &postService{posts: posts, tracks: tracks, board: board, sync: bs, clock: clock}
}

func (s *postService) Create(ctx context.Context, authorID string, in CreatePostInput) (PostView, error) {
	authorID = strings.TrimSpace(authorID)
	content := strings.TrimSpace(in.Content)
	if authorID == "" {
		return PostView{}, fmt.Errorf("%w: author id is required", vibe.ErrInvalidInput)
	}
	if content == "" {
		return PostView{}, fmt.Errorf("%w: content is required", vibe.ErrInvalidInput)
	}
	if len([]rune(content)) > maxContentLength {
		return PostView{}, fmt.Errorf("%w: content exceeds %d characters", vibe.ErrInvalidInput, maxContentLength)
	}
	if in.TrackID != "" {
		if _, err := s.tracks.GetByID(ctx, in.TrackID); err != nil {
			return PostView{}, entityErr(vibe.EntityRef{Kind: vibe.KindTrack, ID: in.TrackID}, err)
		}
	}

	now := s.clock.Now().UTC()
	post := &model.Post{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Content:   content,
		ImageURL:  strings.TrimSpace(in.ImageURL),
		TrackID:   in.TrackID,
		VibeScore: vibe.NeutralScore,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ref := vibe.EntityRef{Kind: vibe.KindPost, ID: post.ID}
	evt, err := events.New(events.TypePostPublished, ref, events.PostPublished{PostID: post.ID, AuthorID: authorID, TrackID: post.TrackID}, now)
	if err != nil {
		return PostView{}, err
	}
	if err := s.posts.CreateWithOutbox(ctx, post, repository.OutboxFromEvent(evt)); err != nil {
		return PostView{}, fmt.Errorf("%w: %w", vibe.ErrStorageUnavailable, err)
	}
	s.sync.EnqueueUpdate(ref)
	return postView(post), nil
}

func (s *postService) Get(ctx context.Context, id string) (PostView, error) {
	p, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return PostView{}, entityErr(vibe.EntityRef{Kind: vibe.KindPost, ID: id}, err)
	}
	return postView(p), nil
}

func (s *postService) Feed(ctx context.Context, page, pageSize int) (PostPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	res, err := readRanked[model.Post](ctx, s.board, s.sync, vibe.KindPost, s.posts,
		func(p *model.Post) string { return p.ID }, page, pageSize)
	if err != nil {
		return PostPage{}, err
	}
	items := make([]PostView, len(res.items))
	for i, p := range res.items {
		items[i] = postView(p)
	}
	return PostPage{Items: items, Page: page, PageSize: pageSize, Total: res.total, Source: res.source}, nil
}

func postView(p *model.Post) PostView {
	return PostView{Post: *p, Tier: vibe.Classify(p.VibeScore)}
}
