package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/d60-Lab/vibeup/internal/events"
	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/ranking"
	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

const DefaultCurrency = "USD"

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidCurrency ISO 4217 形式的三位大写字母
func ValidCurrency(code string) bool { return currencyRe.MatchString(code) }

type CreateTrackInput struct {
	Title         string
	Description   string
	AudioURL      string
	CoverImageURL string
	Price         float64
	Currency      string
}

type TrackView struct {
	model.Track
	Tier vibe.Tier `json:"tier"`
}

type TrackPage struct {
	Items    []TrackView `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
	Source   string      `json:"source"`
}

// TrackService 曲目上架与市场排行
type TrackService interface {
	Create(ctx context.Context, artistID string, in CreateTrackInput) (TrackView, error)
	Get(ctx context.Context, id string) (TrackView, error)
	Marketplace(ctx context.Context, page, pageSize int) (TrackPage, error)
}

type trackService struct {
	tracks repository.TrackRepository
	board  *ranking.Board
	sync   *BoardSync
	clock  clockwork.Clock
}

func NewTrackService(tracks repository.TrackRepository, board *ranking.Board, bs *BoardSync, clock clockwork.Clock) TrackService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &trackService{tracks: tracks, board: board, sync: bs, clock: clock}
}

func (s *trackService) Create(ctx context.Context, artistID string, in CreateTrackInput) (TrackView, error) {
	artistID = strings.TrimSpace(artistID)
	title := strings.TrimSpace(in.Title)
	audio := strings.TrimSpace(in.AudioURL)
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	switch {
	case artistID == "":
		return TrackView{}, fmt.Errorf("%w: artist id is required", vibe.ErrInvalidInput)
	case title == "":
		return TrackView{}, fmt.Errorf("%w: title is required", vibe.ErrInvalidInput)
	case audio == "":
		return TrackView{}, fmt.Errorf("%w: audio url is required", vibe.ErrInvalidInput)
	case in.Price < 0:
		return TrackView{}, fmt.Errorf("%w: price must not be negative", vibe.ErrInvalidInput)
	case !ValidCurrency(currency):
		return TrackView{}, fmt.Errorf("%w: invalid currency %q", vibe.ErrInvalidInput, in.Currency)
	}

	now := s.clock.Now().UTC()
	track := &model.Track{
		ID:            uuid.NewString(),
		ArtistID:      artistID,
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		AudioURL:      audio,
		CoverImageURL: strings.TrimSpace(in.CoverImageURL),
		Price:         in.Price,
		Currency:      currency,
		VibeScore:     vibe.NeutralScore,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ref := vibe.EntityRef{Kind: vibe.KindTrack, ID: track.ID}
	evt, err := events.New(events.TypeTrackPublished, ref, events.TrackPublished{
		TrackID:  track.ID,
		ArtistID: artistID,
		Title:    title,
		Price:    track.Price,
		Currency: currency,
	}, now)
	if err != nil {
		return TrackView{}, err
	}
	if err := s.tracks.CreateWithOutbox(ctx, track, repository.OutboxFromEvent(evt)); err != nil {
		return TrackView{}, fmt.Errorf("%w: %w", vibe.ErrStorageUnavailable, err)
	}
	s.sync.EnqueueUpdate(ref)
	return trackView(track), nil
}

func (s *trackService) Get(ctx context.Context, id string) (TrackView, error) {
	t, err := s.tracks.GetByID(ctx, id)
	if err != nil {
		return TrackView{}, entityErr(vibe.EntityRef{Kind: vibe.KindTrack, ID: id}, err)
	}
	return trackView(t), nil
}

func (s *trackService) Marketplace(ctx context.Context, page, pageSize int) (TrackPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	res, err := readRanked[model.Track](ctx, s.board, s.sync, vibe.KindTrack, s.tracks,
		func(t *model.Track) string { return t.ID }, page, pageSize)
	if err != nil {
		return TrackPage{}, err
	}
	items := make([]TrackView, len(res.items))
	for i, t := range res.items {
		items[i] = trackView(t)
	}
	return TrackPage{Items: items, Page: page, PageSize: pageSize, Total: res.total, Source: res.source}, nil
}

func trackView(t *model.Track) TrackView {
	return TrackView{Track: *t, Tier: vibe.Classify(t.VibeScore)}
}
