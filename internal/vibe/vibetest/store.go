// Package vibetest provides an in-memory vibe.Store with fault injection.
package vibetest

import (
	"context"
	"sort"
	"sync"

	"github.com/d60-Lab/vibeup/internal/vibe"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpFind    Op = "find"
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpLoad    Op = "load"
	OpJournal Op = "journal"
)

type fault struct {
	err       error
	remaining int // <0 表示一直生效
}

// JournalEntry is one event appended through vibe.Journal.
type JournalEntry struct {
	Reaction vibe.Reaction
	Entity   vibe.Entity
}

// MemoryStore 用一把互斥锁串行化所有事务；事务内写入暂存，提交时才落地。
type MemoryStore struct {
	mu        sync.Mutex
	entities  map[string]vibe.Entity
	reactions map[string]vibe.Reaction
	order     []string
	journal   []JournalEntry
	faults    map[Op]*fault
	calls     map[Op]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:  make(map[string]vibe.Entity),
		reactions: make(map[string]vibe.Reaction),
		faults:    make(map[Op]*fault),
		calls:     make(map[Op]int),
	}
}

// Put stores (or replaces) an entity snapshot.
func (s *MemoryStore) Put(e vibe.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.Ref.ID] = e
}

func (s *MemoryStore) Entity(id string) (vibe.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	return e, ok
}

// Reactions returns committed reactions in insertion order.
func (s *MemoryStore) Reactions() []vibe.Reaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vibe.Reaction, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.reactions[k])
	}
	return out
}

func (s *MemoryStore) Journal() []JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]JournalEntry(nil), s.journal...)
}

// Fail makes op return err for the next times calls; times < 0 fails forever.
func (s *MemoryStore) Fail(op Op, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{err: err, remaining: times}
}

func (s *MemoryStore) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[Op]*fault)
}

// Calls reports how many times op was invoked.
func (s *MemoryStore) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *MemoryStore) FindReaction(ctx context.Context, userID, entityID string) (*vibe.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newTx().FindReaction(ctx, userID, entityID)
}

func (s *MemoryStore) InsertReaction(ctx context.Context, r vibe.Reaction) error {
	return s.Atomically(ctx, func(tx vibe.Store) error { return tx.InsertReaction(ctx, r) })
}

func (s *MemoryStore) UpdateEntityCounts(ctx context.Context, ref vibe.EntityRef, expected, next vibe.Counts) error {
	return s.Atomically(ctx, func(tx vibe.Store) error { return tx.UpdateEntityCounts(ctx, ref, expected, next) })
}

func (s *MemoryStore) LoadEntity(ctx context.Context, ref vibe.EntityRef) (vibe.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newTx().LoadEntity(ctx, ref)
}

func (s *MemoryStore) Atomically(ctx context.Context, fn func(tx vibe.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.newTx()
	if err := fn(tx); err != nil {
		return err
	}
	for _, r := range tx.reactions {
		k := reactionKey(r.UserID, r.Entity.ID)
		s.reactions[k] = r
		s.order = append(s.order, k)
	}
	for id, e := range tx.entities {
		s.entities[id] = e
	}
	s.journal = append(s.journal, tx.journal...)
	return nil
}

// ReactionCount counts committed reactions for an entity grouped by label.
func (s *MemoryStore) ReactionCount(entityID string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, r := range s.reactions {
		if r.Entity.ID == entityID {
			out[r.Label]++
		}
	}
	return out
}

// EntityIDs returns stored entity ids sorted lexically.
func (s *MemoryStore) EntityIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *MemoryStore) newTx() *memTx {
	return &memTx{s: s, entities: make(map[string]vibe.Entity)}
}

// trip 调用方已持有 s.mu
func (s *MemoryStore) trip(op Op) error {
	s.calls[op]++
	f, ok := s.faults[op]
	if !ok || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

// memTx 在 s.mu 保护下运行，读操作能看到本事务暂存的写入。
type memTx struct {
	s         *MemoryStore
	entities  map[string]vibe.Entity
	reactions []vibe.Reaction
	journal   []JournalEntry
}

func (t *memTx) FindReaction(ctx context.Context, userID, entityID string) (*vibe.Reaction, error) {
	if err := t.s.trip(OpFind); err != nil {
		return nil, err
	}
	for _, r := range t.reactions {
		if r.UserID == userID && r.Entity.ID == entityID {
			r := r
			return &r, nil
		}
	}
	if r, ok := t.s.reactions[reactionKey(userID, entityID)]; ok {
		return &r, nil
	}
	return nil, nil
}

func (t *memTx) InsertReaction(ctx context.Context, r vibe.Reaction) error {
	if err := t.s.trip(OpInsert); err != nil {
		return err
	}
	if existing, _ := t.FindReaction(ctx, r.UserID, r.Entity.ID); existing != nil {
		return vibe.ErrAlreadyExists
	}
	t.reactions = append(t.reactions, r)
	return nil
}

func (t *memTx) UpdateEntityCounts(ctx context.Context, ref vibe.EntityRef, expected, next vibe.Counts) error {
	if err := t.s.trip(OpUpdate); err != nil {
		return err
	}
	cur, err := t.load(ref)
	if err != nil {
		return err
	}
	if cur.Counts != expected {
		return vibe.ErrConflict
	}
	t.entities[ref.ID] = cur.WithCounts(next)
	return nil
}

func (t *memTx) LoadEntity(ctx context.Context, ref vibe.EntityRef) (vibe.Entity, error) {
	if err := t.s.trip(OpLoad); err != nil {
		return vibe.Entity{}, err
	}
	return t.load(ref)
}

func (t *memTx) Atomically(ctx context.Context, fn func(tx vibe.Store) error) error {
	return fn(t)
}

func (t *memTx) AppendReaction(ctx context.Context, r vibe.Reaction, updated vibe.Entity) error {
	if err := t.s.trip(OpJournal); err != nil {
		return err
	}
	t.journal = append(t.journal, JournalEntry{Reaction: r, Entity: updated})
	return nil
}

func (t *memTx) load(ref vibe.EntityRef) (vibe.Entity, error) {
	if e, ok := t.entities[ref.ID]; ok {
		return e, nil
	}
	e, ok := t.s.entities[ref.ID]
	if !ok || e.Ref.Kind != ref.Kind {
		return vibe.Entity{}, vibe.ErrEntityNotFound
	}
	return e, nil
}

func reactionKey(userID, entityID string) string { return userID + "|" + entityID }
