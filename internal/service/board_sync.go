package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/vibeup/internal/metrics"
	"github.com/d60-Lab/vibeup/internal/ranking"
	"github.com/d60-Lab/vibeup/internal/vibe"
	"github.com/d60-Lab/vibeup/pkg/logger"
)

type boardAction int

const (
	actionPut boardAction = iota + 1
	actionRebuild
)

type boardJob struct {
	action boardAction
	ref    vibe.EntityRef
	enqAt  time.Time
}

// BoardSync 本地异步队列，把提交后的分数同步到排行榜。
// 队列满时丢弃任务并让该 kind 的排行榜失效，读路径回源数据库后会触发重建。
type BoardSync struct {
	board   *ranking.Board
	catalog *Catalog
	ch      chan boardJob

	mu         sync.Mutex
	rebuilding map[vibe.Kind]bool
}

func NewBoardSync(board *ranking.Board, catalog *Catalog, queueSize int) *BoardSync {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &BoardSync{
		board:      board,
		catalog:    catalog,
		ch:         make(chan boardJob, queueSize),
		rebuilding: make(map[vibe.Kind]bool),
	}
}

func (s *BoardSync) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case job := <-s.ch:
					metrics.BoardQueueLength.Set(float64(len(s.ch)))
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					s.handle(ctx, job)
					cancel()
					metrics.BoardSyncLag.WithLabelValues(string(job.ref.Kind)).Observe(time.Since(job.enqAt).Seconds())
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		// 等待队列自然排空一小段时间
		timeout := time.After(2 * time.Second)
		for {
			select {
			case <-timeout:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			default:
				if len(s.ch) == 0 {
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

func (s *BoardSync) handle(ctx context.Context, job boardJob) {
	kind := string(job.ref.Kind)
	switch job.action {
	case actionPut:
		applied := false
		entity, payload, err := s.catalog.Load(ctx, job.ref)
		if err == nil {
			applied, err = s.board.Put(ctx, entity, payload)
		}
		if err != nil {
			metrics.BoardJobsTotal.WithLabelValues(kind, "failed").Inc()
			logger.Warn("board put failed", zap.String("kind", kind), zap.String("id", job.ref.ID), zap.Error(err))
			s.invalidate(job.ref.Kind)
			return
		}
		if !applied {
			// 榜单未就绪，或另一个 worker 已写入更新的快照
			metrics.BoardJobsTotal.WithLabelValues(kind, "skipped").Inc()
			return
		}
		metrics.BoardJobsTotal.WithLabelValues(kind, "applied").Inc()
	case actionRebuild:
		defer s.finishRebuild(job.ref.Kind)
		entries, err := s.catalog.RankEntries(ctx, job.ref.Kind)
		if err == nil {
			err = s.board.Rebuild(ctx, job.ref.Kind, entries)
		}
		if err != nil {
			metrics.BoardRebuildsTotal.WithLabelValues(kind, "error").Inc()
			logger.Warn("board rebuild failed", zap.String("kind", kind), zap.Error(err))
			return
		}
		metrics.BoardRebuildsTotal.WithLabelValues(kind, "ok").Inc()
		logger.Info("board rebuilt", zap.String("kind", kind), zap.Int("entries", len(entries)))
	}
}

// EnqueueUpdate 实体分数变化或新建后调用
func (s *BoardSync) EnqueueUpdate(ref vibe.EntityRef) {
	if s == nil {
		return
	}
	select {
	case s.ch <- boardJob{action: actionPut, ref: ref, enqAt: time.Now()}:
		metrics.BoardQueueLength.Set(float64(len(s.ch)))
	default:
		metrics.BoardJobsTotal.WithLabelValues(string(ref.Kind), "dropped").Inc()
		logger.Warn("board queue full, drop update", zap.String("kind", string(ref.Kind)), zap.String("id", ref.ID))
		s.invalidate(ref.Kind)
	}
}

// EnqueueRebuild 同一 kind 同时最多一个重建任务
func (s *BoardSync) EnqueueRebuild(kind vibe.Kind) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.rebuilding[kind] {
		s.mu.Unlock()
		return
	}
	s.rebuilding[kind] = true
	s.mu.Unlock()

	select {
	case s.ch <- boardJob{action: actionRebuild, ref: vibe.EntityRef{Kind: kind}, enqAt: time.Now()}:
	default:
		s.finishRebuild(kind)
		logger.Warn("board queue full, drop rebuild", zap.String("kind", string(kind)))
	}
}

func (s *BoardSync) finishRebuild(kind vibe.Kind) {
	s.mu.Lock()
	delete(s.rebuilding, kind)
	s.mu.Unlock()
}

func (s *BoardSync) invalidate(kind vibe.Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.board.Invalidate(ctx, kind); err != nil {
		logger.Error("board invalidate failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// QueueLen 返回当前队列长度（采样值）。
func (s *BoardSync) QueueLen() int { return len(s.ch) }
