// Package ranking 维护 Redis 中按 vibe score 排序的排行榜及快照缓存。
// 排行榜是派生数据，随时可以从数据库重建。
package ranking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/vibeup/internal/vibe"
)

// 成员 = <创建时间纳秒，19 位补零>:<id>，分数 = -vibeScore。
// ZRANGE 升序即分数降序；同分按成员字典序，也就是创建时间升序、id 升序，与数据库排序一致。
const (
	memberWidth  = 19
	rebuildBatch = 1000
)

// Board 每个 kind 一个 ZSET：vibe:rank:<kind>
type Board struct {
	rdb redis.UniversalClient
	ttl time.Duration

	hits     atomic.Int64
	misses   atomic.Int64
	rebuilds atomic.Int64
}

func NewBoard(rdb redis.UniversalClient, ttl time.Duration) *Board {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Board{rdb: rdb, ttl: ttl}
}

func rankKey(k vibe.Kind) string  { return fmt.Sprintf("vibe:rank:%s", k) }
func readyKey(k vibe.Kind) string { return fmt.Sprintf("vibe:rank:%s:ready", k) }

// totalsKey 记录每个实体已写入榜单的反应总数，用于拒绝较旧的快照
func totalsKey(k vibe.Kind) string { return fmt.Sprintf("vibe:rank:%s:totals", k) }
func snapKey(k vibe.Kind, id string) string {
	return fmt.Sprintf("vibe:snap:%s:%s", k, id)
}

func member(e vibe.Entity) string {
	ns := e.CreatedAt.UnixNano()
	if ns < 0 {
		ns = 0
	}
	return fmt.Sprintf("%0*d:%s", memberWidth, ns, e.Ref.ID)
}

func memberID(m string) string {
	if i := strings.IndexByte(m, ':'); i >= 0 {
		return m[i+1:]
	}
	return m
}

func rankScore(e vibe.Entity) float64 { return -float64(e.VibeScore) }

// putScript 榜单就绪且计数不回退时才写入：
// KEYS = rank, totals, snap, ready; ARGV = score, member, id, total, payload, ttl(ms)
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[4]) == 0 then
  return 0
end
local cur = redis.call('HGET', KEYS[2], ARGV[3])
if cur and tonumber(cur) > tonumber(ARGV[4]) then
  return -1
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[3], ARGV[4])
if ARGV[5] ~= '' then
  redis.call('SET', KEYS[3], ARGV[5], 'PX', ARGV[6])
end
return 1
`)

// Ready 排行榜是否完整可读
func (b *Board) Ready(ctx context.Context, kind vibe.Kind) (bool, error) {
	n, err := b.rdb.Exists(ctx, readyKey(kind)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Put 写入单个实体的最新分数与快照，返回是否生效。
// 排行榜未就绪，或榜上已有反应数更多的快照时跳过。
func (b *Board) Put(ctx context.Context, e vibe.Entity, payload []byte) (bool, error) {
	kind := e.Ref.Kind
	keys := []string{rankKey(kind), totalsKey(kind), snapKey(kind, e.Ref.ID), readyKey(kind)}
	res, err := putScript.Run(ctx, b.rdb, keys,
		strconv.Itoa(-e.VibeScore), member(e), e.Ref.ID, e.Counts.Total(), string(payload), b.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Range 返回名次区间 [offset, offset+limit) 的实体 id
func (b *Board) Range(ctx context.Context, kind vibe.Kind, offset, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	start := int64(offset)
	stop := start + int64(limit) - 1
	members, err := b.rdb.ZRange(ctx, rankKey(kind), start, stop).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = memberID(m)
	}
	return ids, nil
}

// Len 排行榜中的实体数
func (b *Board) Len(ctx context.Context, kind vibe.Kind) (int64, error) {
	return b.rdb.ZCard(ctx, rankKey(kind)).Result()
}

// Payloads MGet 读取快照；返回命中的部分，未命中的由调用方回源
func (b *Board) Payloads(ctx context.Context, kind vibe.Kind, ids []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = snapKey(kind, id)
	}
	vals, err := b.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[ids[i]] = []byte(str)
		}
	}
	b.hits.Add(int64(len(out)))
	b.misses.Add(int64(len(ids) - len(out)))
	return out, nil
}

// CachePayloads 回填缺失的快照；已存在的键不覆盖，避免旧读结果盖掉 Put 写入的新快照
func (b *Board) CachePayloads(ctx context.Context, kind vibe.Kind, payloads map[string][]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	pipe := b.rdb.Pipeline()
	for id, p := range payloads {
		pipe.SetNX(ctx, snapKey(kind, id), p, b.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Rebuild 用全量数据替换排行榜并标记就绪；同一事务内删除该 kind 的旧快照，之后按需回源
func (b *Board) Rebuild(ctx context.Context, kind vibe.Kind, entries []vibe.Entity) error {
	for _, e := range entries {
		if e.Ref.Kind != kind {
			return fmt.Errorf("rebuild %s board: entry %s has kind %s", kind, e.Ref.ID, e.Ref.Kind)
		}
	}
	members := make([]redis.Z, len(entries))
	totals := make([]interface{}, 0, 2*len(entries))
	snaps := make([]string, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{Score: rankScore(e), Member: member(e)}
		totals = append(totals, e.Ref.ID, e.Counts.Total())
		snaps[i] = snapKey(kind, e.Ref.ID)
	}

	tmpRank := rankKey(kind) + ":building"
	tmpTotals := totalsKey(kind) + ":building"
	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, tmpRank, tmpTotals)
	// 每条命令最多 1000 个成员
	for start := 0; start < len(members); start += rebuildBatch {
		end := start + rebuildBatch
		if end > len(members) {
			end = len(members)
		}
		pipe.ZAdd(ctx, tmpRank, members[start:end]...)
		pipe.HSet(ctx, tmpTotals, totals[2*start:2*end]...)
		pipe.Del(ctx, snaps[start:end]...)
	}
	if len(members) > 0 {
		pipe.Rename(ctx, tmpRank, rankKey(kind))
		pipe.Rename(ctx, tmpTotals, totalsKey(kind))
	} else {
		pipe.Del(ctx, rankKey(kind), totalsKey(kind))
	}
	pipe.Set(ctx, readyKey(kind), time.Now().UTC().Format(time.RFC3339), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	b.rebuilds.Add(1)
	return nil
}

// Invalidate 清除就绪标记，之后的读取回源数据库
func (b *Board) Invalidate(ctx context.Context, kind vibe.Kind) error {
	return b.rdb.Del(ctx, readyKey(kind)).Err()
}

// BoardCounters 快照命中统计
type BoardCounters struct {
	Hits     int64
	Misses   int64
	Rebuilds int64
}

func (b *Board) Counters() BoardCounters {
	return BoardCounters{Hits: b.hits.Load(), Misses: b.misses.Load(), Rebuilds: b.rebuilds.Load()}
}

func (b *Board) ResetCounters() {
	b.hits.Store(0)
	b.misses.Store(0)
	b.rebuilds.Store(0)
}
