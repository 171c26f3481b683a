package service

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/d60-Lab/vibeup/internal/events"
	"github.com/d60-Lab/vibeup/internal/metrics"
	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/pkg/logger"
)

// Relay 轮询 outbox，把事件投递到 events.Publisher（至少一次）
type Relay struct {
	outbox       repository.OutboxRepository
	pub          events.Publisher
	clock        clockwork.Clock
	workers      int
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

const (
	// claimTimeout processing 状态超过该时长视为遗留（进程崩溃或标记失败）
	claimTimeout = 5 * time.Minute
	// requeueInterval 周期性回收遗留事件
	requeueInterval = time.Minute
)

func NewRelay(outbox repository.OutboxRepository, pub events.Publisher, clock clockwork.Clock, workers, batchSize, maxAttempts int, pollInterval time.Duration) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &Relay{
		outbox:       outbox,
		pub:          pub,
		clock:        clock,
		workers:      workers,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
	}
}

// Start 启动若干 worker 轮询处理 outbox；返回停止函数。
func (r *Relay) Start() func(context.Context) error {
	r.requeue()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(stop)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := r.clock.NewTicker(requeueInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				r.requeue()
			}
		}
	}()
	return func(ctx context.Context) error {
		close(stop)
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RequeueStale 把领取超过 claimTimeout 仍未完成的事件退回 pending
func (r *Relay) RequeueStale(ctx context.Context) (int64, error) {
	return r.outbox.Requeue(ctx, r.clock.Now().UTC().Add(-claimTimeout))
}

func (r *Relay) requeue() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := r.RequeueStale(ctx)
	if err != nil {
		logger.Warn("relay requeue failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("relay requeued stale events", zap.Int64("count", n))
	}
}

func (r *Relay) loop(stop <-chan struct{}) {
	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := r.ProcessOnce(ctx); err != nil {
				logger.Warn("relay poll failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// ProcessOnce 领取一批事件并逐条投递，返回成功投递的数量
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := r.outbox.Claim(ctx, r.batchSize, r.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	published := 0
	for _, row := range batch {
		evt := repository.EventFromOutbox(row)
		if pubErr := r.pub.Publish(ctx, evt); pubErr != nil {
			attempts := row.Attempts + 1
			result := "retried"
			if attempts >= r.maxAttempts {
				result = "failed"
			}
			metrics.RelayEventsTotal.WithLabelValues(evt.Type, result).Inc()
			logger.Warn("relay publish failed",
				zap.String("event_id", evt.ID),
				zap.String("type", evt.Type),
				zap.Int("attempts", attempts),
				zap.Error(pubErr))
			if err := r.outbox.MarkRetry(ctx, row.ID, attempts, r.maxAttempts, pubErr); err != nil {
				return published, err
			}
			continue
		}

		now := r.clock.Now().UTC()
		if err := r.outbox.MarkDone(ctx, row.ID, now); err != nil {
			return published, err
		}
		published++
		metrics.RelayEventsTotal.WithLabelValues(evt.Type, "published").Inc()
		if !row.CreatedAt.IsZero() {
			metrics.RelayLag.Observe(now.Sub(row.CreatedAt).Seconds())
		}
	}
	return published, nil
}
