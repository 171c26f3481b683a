// Package events 定义领域事件及其投递通道（kafka / rabbitmq / log）。
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/vibeup/internal/vibe"
)

const (
	TypePostPublished    = "post.published"
	TypeTrackPublished   = "track.published"
	TypeReactionRecorded = "reaction.recorded"
)

// Event 投递到外部总线的信封
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateKind string          `json:"aggregate_kind"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Publisher 事件发布者；Publish 成功即视为已投递
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type PostPublished struct {
	PostID   string `json:"post_id"`
	AuthorID string `json:"author_id"`
	TrackID  string `json:"track_id,omitempty"`
}

type TrackPublished struct {
	TrackID  string  `json:"track_id"`
	ArtistID string  `json:"artist_id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

type ReactionRecorded struct {
	Reaction vibe.Reaction `json:"reaction"`
	Entity   vibe.Entity   `json:"entity"`
}

// New 构造事件，payload 以 JSON 编码
func New(eventType string, ref vibe.EntityRef, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateKind: string(ref.Kind),
		AggregateID:   ref.ID,
		OccurredAt:    at.UTC(),
		Payload:       raw,
	}, nil
}
