package vibe

import "context"

// Store 引擎依赖的反应存储。
type Store interface {
	// FindReaction 点查；不存在时返回 (nil, nil)
	FindReaction(ctx context.Context, userID, entityID string) (*Reaction, error)
	// InsertReaction 违反 (user_id, entity_id) 唯一约束时返回 ErrAlreadyExists
	InsertReaction(ctx context.Context, r Reaction) error
	// UpdateEntityCounts 仅当当前计数等于 expected 时写入 next（及其分数），否则返回 ErrConflict
	UpdateEntityCounts(ctx context.Context, ref EntityRef, expected, next Counts) error
	// LoadEntity 读取实体当前快照；不存在返回 ErrEntityNotFound
	LoadEntity(ctx context.Context, ref EntityRef) (Entity, error)
	// Atomically 在一个事务内执行 fn；fn 返回错误时全部回滚
	Atomically(ctx context.Context, fn func(tx Store) error) error
}

// Journal 可选：与计数更新同事务地记录领域事件（outbox）。
type Journal interface {
	AppendReaction(ctx context.Context, r Reaction, updated Entity) error
}
