package vibe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultMaxAttempts CAS 冲突时的默认尝试次数
const DefaultMaxAttempts = 4

// Engine 记录反应并重算分数。除依赖外不持有任何状态，userID 总是显式传入。
type Engine struct {
	store       Store
	clock       clockwork.Clock
	newID       func() string
	maxAttempts int
	onConflict  func(ref EntityRef, attempt int)
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithIDGenerator(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

// WithMaxAttempts n < 1 时保持默认值
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxAttempts = n
		}
	}
}

// WithConflictObserver 每次 CAS 冲突回调一次（用于指标）
func WithConflictObserver(fn func(ref EntityRef, attempt int)) Option {
	return func(e *Engine) { e.onConflict = fn }
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		clock:       clockwork.NewRealClock(),
		newID:       uuid.NewString,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordReaction 为 entity 记录 userID 的一次反应，返回提交后的实体快照。
// 任何失败都原样返回传入的 entity。
func (e *Engine) RecordReaction(ctx context.Context, entity Entity, userID string, polarity Polarity, label string) (Entity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(entity.Ref.ID) == "" {
		return entity, fmt.Errorf("%w: user id and entity id are required", ErrInvalidInput)
	}
	if !entity.Ref.Kind.Valid() {
		return entity, fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, entity.Ref.Kind)
	}
	if !polarity.Valid() {
		return entity, fmt.Errorf("%w: unknown polarity %q", ErrInvalidInput, polarity)
	}
	label, ok := NormalizeLabel(polarity, label)
	if !ok {
		return entity, fmt.Errorf("%w: label not allowed for %s reactions", ErrInvalidInput, polarity)
	}

	reaction := Reaction{
		ID:        e.newID(),
		UserID:    userID,
		Entity:    entity.Ref,
		Polarity:  polarity,
		Label:     label,
		CreatedAt: e.clock.Now().UTC(),
	}

	current := entity
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return entity, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}

		var updated Entity
		err := e.store.Atomically(ctx, func(tx Store) error {
			// 首次使用调用方快照，之后在事务内重读计数
			if attempt > 1 {
				fresh, err := tx.LoadEntity(ctx, entity.Ref)
				if err != nil {
					return err
				}
				current = fresh
			}

			existing, err := tx.FindReaction(ctx, userID, entity.Ref.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				return ErrDuplicateReaction
			}
			if err := tx.InsertReaction(ctx, reaction); err != nil {
				if errors.Is(err, ErrAlreadyExists) {
					return ErrDuplicateReaction
				}
				return err
			}

			next := current.Counts.Add(polarity)
			if err := tx.UpdateEntityCounts(ctx, entity.Ref, current.Counts, next); err != nil {
				return err
			}
			updated = current.WithCounts(next)

			if j, ok := tx.(Journal); ok {
				return j.AppendReaction(ctx, reaction, updated)
			}
			return nil
		})

		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, ErrConflict):
			if e.onConflict != nil {
				e.onConflict(entity.Ref, attempt)
			}
		case errors.Is(err, ErrDuplicateReaction):
			return entity, fmt.Errorf("%w: user %s already reacted to %s %s", ErrDuplicateReaction, userID, entity.Ref.Kind, entity.Ref.ID)
		case errors.Is(err, ErrEntityNotFound):
			return entity, fmt.Errorf("%w: %s %s", ErrEntityNotFound, entity.Ref.Kind, entity.Ref.ID)
		default:
			return entity, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
	}
	return entity, fmt.Errorf("%w: counts of %s %s still conflicting after %d attempts",
		ErrStorageUnavailable, entity.Ref.Kind, entity.Ref.ID, e.maxAttempts)
}
