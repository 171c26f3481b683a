package vibe

import "errors"

var (
	// ErrInvalidInput 标识符为空、类型/极性/标签不合法，未产生任何副作用
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateReaction 用户已经对该实体反应过
	ErrDuplicateReaction = errors.New("duplicate reaction")
	// ErrStorageUnavailable 存储读写失败或超时，实体状态不变
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConflict 计数 CAS 失败；引擎内部重试，不直接暴露给调用方
	ErrConflict = errors.New("concurrent update conflict")
	// ErrEntityNotFound 存储中不存在该实体
	ErrEntityNotFound = errors.New("entity not found")
	// ErrAlreadyExists 存储层 (user_id, entity_id) 唯一约束冲突
	ErrAlreadyExists = errors.New("reaction already exists")
)
