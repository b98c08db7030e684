package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"liquidityreward/internal/store"
	"liquidityreward/pkg/settlement"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) CollectChain(ctx context.Context, chain string) (int, error) {
	args := m.Called(ctx, chain)
	return args.Int(0), args.Error(1)
}

func (m *mockRunner) CollectCompetition(ctx context.Context, slug string) (int, error) {
	args := m.Called(ctx, slug)
	return args.Int(0), args.Error(1)
}

func (m *mockRunner) SettleReward(ctx context.Context, slug, rewardName string) (*settlement.Result, error) {
	args := m.Called(ctx, slug, rewardName)
	result, _ := args.Get(0).(*settlement.Result)
	return result, args.Error(1)
}

func body(t *testing.T, msg Message) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestDispatcherHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("collect chain", func(t *testing.T) {
		r := new(mockRunner)
		r.On("CollectChain", ctx, "celo").Return(4, nil)
		require.NoError(t, NewDispatcher(r).Handle(ctx, []byte(`{"type":"collect_chain","chain":"celo"}`)))
		r.AssertExpectations(t)
	})

	t.Run("already ran is acknowledged", func(t *testing.T) {
		r := new(mockRunner)
		r.On("CollectCompetition", ctx, "usdglo7").Return(0, store.ErrAlreadyRan)
		assert.NoError(t, NewDispatcher(r).Handle(ctx, body(t, Message{Type: CollectCompetition, Slug: "usdglo7"})))
	})

	t.Run("settle with failures is not an error", func(t *testing.T) {
		r := new(mockRunner)
		r.On("SettleReward", ctx, "usdglo7", "daily").Return(&settlement.Result{Completed: 1, Total: 2}, nil)
		assert.NoError(t, NewDispatcher(r).Handle(ctx, body(t, Message{Type: SettleReward, Slug: "usdglo7", Reward: "daily"})))
		r.AssertExpectations(t)
	})

	t.Run("runner error", func(t *testing.T) {
		r := new(mockRunner)
		r.On("SettleReward", ctx, "usdglo7", "daily").Return(nil, store.ErrRewardNotFound)
		err := NewDispatcher(r).Handle(ctx, body(t, Message{Type: SettleReward, Slug: "usdglo7", Reward: "daily"}))
		assert.ErrorIs(t, err, store.ErrRewardNotFound)
	})

	t.Run("invalid bodies", func(t *testing.T) {
		r := new(mockRunner)
		d := NewDispatcher(r)
		assert.Error(t, d.Handle(ctx, []byte("not json")))
		assert.Error(t, d.Handle(ctx, []byte(`{"type":"collect_chain"}`)))
		assert.Error(t, d.Handle(ctx, []byte(`{"type":"settle_reward","slug":"usdglo7"}`)))
		assert.Error(t, d.Handle(ctx, []byte(`{"type":"drop_tables"}`)))
		r.AssertNotCalled(t, "CollectChain", mock.Anything, mock.Anything)
	})
}

type recordingPublisher struct {
	queue string
	msgs  []Message
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, queueName string, message interface{}) error {
	p.queue = queueName
	p.msgs = append(p.msgs, message.(Message))
	return p.err
}

func TestSchedule(t *testing.T) {
	entries := DefaultEntries([]string{"celo"}, []string{"usdglo7"}, map[string][]string{"usdglo7": {"daily", "bonus"}})
	require.Len(t, entries, 4)
	assert.Equal(t, Message{Type: SettleReward, Slug: "usdglo7", Reward: "bonus"}, entries[3].Message)

	c := cron.New(cron.WithSeconds())
	p := &recordingPublisher{}
	require.NoError(t, Schedule(c, p, "reward_jobs", entries))
	require.Len(t, c.Entries(), 4)

	c.Entries()[0].Job.Run()
	assert.Equal(t, "reward_jobs", p.queue)
	assert.Equal(t, []Message{{Type: CollectChain, Chain: "celo"}}, p.msgs)

	p.err = errors.New("channel closed")
	assert.NotPanics(t, func() { c.Entries()[1].Job.Run() })
}

func TestScheduleRejectsInvalid(t *testing.T) {
	c := cron.New(cron.WithSeconds())
	err := Schedule(c, &recordingPublisher{}, "reward_jobs", []Entry{{Spec: "0 5 0 * * *", Message: Message{Type: CollectChain}}})
	assert.Error(t, err)

	err = Schedule(c, &recordingPublisher{}, "reward_jobs", []Entry{{Spec: "daily", Message: Message{Type: CollectChain, Chain: "celo"}}})
	assert.Error(t, err)
}
