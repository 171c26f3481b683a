package repository

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/d60-Lab/vibeup/internal/vibe"
)

func BenchmarkRecordReaction(b *testing.B) {
	db := setupTestDB(b)
	ctx := context.Background()

	// 预创建部分实体
	const entities = 200
	for i := 0; i < entities; i++ {
		seedPost(b, db, fmt.Sprintf("p%04d", i), 0, 0, base)
	}
	store := NewReactionStore(db)
	engine := vibe.NewEngine(store)
	rnd := rand.New(rand.NewSource(1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ref := vibe.EntityRef{Kind: vibe.KindPost, ID: fmt.Sprintf("p%04d", rnd.Intn(entities))}
		current, err := store.LoadEntity(ctx, ref)
		if err != nil {
			b.Fatalf("load: %v", err)
		}
		polarity := vibe.Positive
		if rnd.Intn(5) == 0 {
			polarity = vibe.Negative
		}
		if _, err := engine.RecordReaction(ctx, current, fmt.Sprintf("u%d", i), polarity, ""); err != nil {
			b.Fatalf("react: %v", err)
		}
	}
}

func BenchmarkListRanked(b *testing.B) {
	db := setupTestDB(b)
	repo := NewPostRepository(db)
	ctx := context.Background()

	const N = 5000
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < N; i++ {
		seedPost(b, db, fmt.Sprintf("p%05d", i), int64(rnd.Intn(100)), int64(rnd.Intn(30)), base)
	}

	b.ResetTimer()
	b.Run("FirstPage", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = repo.ListRanked(ctx, 0, 20)
		}
	})
	b.Run("DeepPage", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = repo.ListRanked(ctx, 4000, 20)
		}
	})
}
