package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/vibeup/internal/events"
	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

func outboxCount(t *testing.T, f *fixture, status string) int64 {
	t.Helper()
	n, err := repository.NewOutboxRepository(f.db).CountByStatus(context.Background(), status)
	require.NoError(t, err)
	return n
}

func TestRelay_PublishesInOrder(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	p := f.createPost(t, "hello")
	f.react(t, "u1", p.ID, vibe.Positive)

	pub := &fakePublisher{}
	relay := NewRelay(repository.NewOutboxRepository(f.db), pub, f.clock, 1, 10, 3, time.Millisecond)

	n, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	published := pub.Published()
	require.Len(t, published, 2)
	assert.Equal(t, events.TypePostPublished, published[0].Type)
	assert.Equal(t, events.TypeReactionRecorded, published[1].Type)
	assert.Equal(t, p.ID, published[1].AggregateID)
	assert.EqualValues(t, 2, outboxCount(t, f, model.OutboxDone))

	n, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_RetriesThenFails(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	f.createPost(t, "hello")

	pub := &fakePublisher{failN: 1}
	relay := NewRelay(repository.NewOutboxRepository(f.db), pub, f.clock, 1, 10, 2, time.Millisecond)

	n, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.EqualValues(t, 1, outboxCount(t, f, model.OutboxPending))

	n, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, outboxCount(t, f, model.OutboxDone))

	f.createPost(t, "again")
	pub.failN = -1
	for i := 0; i < 2; i++ {
		_, err := relay.ProcessOnce(ctx)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, outboxCount(t, f, model.OutboxFailed))
	assert.EqualValues(t, 0, outboxCount(t, f, model.OutboxPending))

	// failed 行不再被领取
	n, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_StartStop(t *testing.T) {
	f := newFixture(t, 16)
	f.createPost(t, "hello")
	pub := &fakePublisher{}
	relay := NewRelay(repository.NewOutboxRepository(f.db), pub, nil, 2, 10, 3, 5*time.Millisecond)

	stop := relay.Start()
	require.Eventually(t, func() bool { return len(pub.Published()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop(context.Background()))
}

func TestRelay_RequeuesStuckClaims(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	f.createPost(t, "hello")

	outbox := repository.NewOutboxRepository(f.db)
	pub := &fakePublisher{}
	relay := NewRelay(outbox, pub, f.clock, 1, 10, 3, time.Millisecond)

	// 领取后 MarkDone 未执行成功，行停留在 processing
	claimed, err := outbox.Claim(ctx, 10, f.clock.Now().UTC())
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	requeued, err := relay.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued, "fresh claims stay with their owner")

	f.clock.Advance(claimTimeout + time.Second)
	requeued, err = relay.RequeueStale(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, requeued)

	n, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, outboxCount(t, f, model.OutboxDone))
}

func TestRelay_RunningRelayRecoversStuckClaims(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	f.createPost(t, "hello")

	outbox := repository.NewOutboxRepository(f.db)
	_, err := outbox.Claim(ctx, 10, f.clock.Now().UTC())
	require.NoError(t, err)

	pub := &fakePublisher{}
	relay := NewRelay(outbox, pub, f.clock, 1, 10, 3, time.Second)
	stop := relay.Start()
	t.Cleanup(func() { _ = stop(context.Background()) })

	// 启动时的回收看不到新领取的行，之后由周期任务回收
	require.Eventually(t, func() bool {
		f.clock.Advance(requeueInterval)
		return len(pub.Published()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
