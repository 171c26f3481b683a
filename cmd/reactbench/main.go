package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/vibeup/config"
	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/internal/vibe"
	"github.com/d60-Lab/vibeup/internal/vibe/vibetest"
	"github.com/d60-Lab/vibeup/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// 对同一条 post 并发写入 N 个用户的反应，校验计数无丢失并输出延迟分位
func main() {
	N := envInt("N", 5000)
	CONC := envInt("CONC", 16)
	NEG := envInt("NEG_EVERY", 4) // 每 NEG_EVERY 个用户一个 meh

	ctx := context.Background()
	now := time.Now().UTC()
	entity := vibe.NewEntity(vibe.EntityRef{Kind: vibe.KindPost, ID: uuid.NewString()}, now)

	var (
		store  vibe.Store
		verify func() vibe.Counts
	)
	if os.Getenv("STORE") == "memory" {
		mem := vibetest.NewMemoryStore()
		mem.Put(entity)
		store = mem
		verify = func() vibe.Counts {
			e, _ := mem.Entity(entity.Ref.ID)
			return e.Counts
		}
	} else {
		cfg := must(config.Load())
		db := must(database.InitDB(cfg))
		if err := db.AutoMigrate(model.All()...); err != nil {
			panic(err)
		}
		post := model.Post{ID: entity.Ref.ID, AuthorID: "bench", Content: "reactbench", VibeScore: vibe.NeutralScore, CreatedAt: now}
		if err := db.Create(&post).Error; err != nil {
			panic(err)
		}
		store = repository.NewReactionStore(db)
		posts := repository.NewPostRepository(db)
		verify = func() vibe.Counts {
			p := must(posts.GetByID(ctx, entity.Ref.ID))
			return p.Entity().Counts
		}
	}

	var conflicts atomic.Int64
	engine := vibe.NewEngine(store, vibe.WithConflictObserver(func(vibe.EntityRef, int) { conflicts.Add(1) }))

	recs := make([]time.Duration, N)
	var failed atomic.Int64
	var wg sync.WaitGroup
	next := make(chan int)
	start := time.Now()
	for w := 0; w < CONC; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				polarity, label := vibe.Positive, "fire"
				if i%NEG == 0 {
					polarity, label = vibe.Negative, "meh"
				}
				t0 := time.Now()
				_, err := engine.RecordReaction(ctx, entity, fmt.Sprintf("user-%d", i), polarity, label)
				recs[i] = time.Since(t0)
				if err != nil {
					failed.Add(1)
				}
			}
		}()
	}
	for i := 0; i < N; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
	total := time.Since(start)

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	counts := verify()
	ok := int64(N) - failed.Load()
	fmt.Printf("N=%d, CONC=%d, STORE=%s\n", N, CONC, storeName())
	fmt.Printf("React total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		total, total/time.Duration(N), pct(recs, 0.50), pct(recs, 0.95), pct(recs, 0.99))
	fmt.Printf("Committed: %d, failed: %d, cas conflicts: %d\n", ok, failed.Load(), conflicts.Load())
	fmt.Printf("Counts: positive=%d negative=%d score=%d tier=%s\n",
		counts.Positive, counts.Negative, counts.Score(), vibe.Classify(counts.Score()))
	if counts.Total() != ok {
		fmt.Printf("LOST UPDATES: committed %d but counts total %d\n", ok, counts.Total())
		os.Exit(1)
	}
}

func storeName() string {
	if os.Getenv("STORE") == "memory" {
		return "memory"
	}
	return "database"
}
