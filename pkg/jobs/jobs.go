// Package jobs defines the queued job contract shared by the scheduler and the worker.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"liquidityreward/internal/store"
	"liquidityreward/pkg/metrics"
	"liquidityreward/pkg/settlement"

	log "github.com/sirupsen/logrus"
)

type Type string

const (
	CollectChain       Type = "collect_chain"
	CollectCompetition Type = "collect_competition"
	SettleReward       Type = "settle_reward"
)

// Message is the JSON body of a queued job.
type Message struct {
	Type   Type   `json:"type"`
	Chain  string `json:"chain,omitempty"`
	Slug   string `json:"slug,omitempty"`
	Reward string `json:"reward,omitempty"`
}

func (m Message) Validate() error {
	switch m.Type {
	case CollectChain:
		if m.Chain == "" {
			return errors.New("collect_chain job requires chain")
		}
	case CollectCompetition:
		if m.Slug == "" {
			return errors.New("collect_competition job requires slug")
		}
	case SettleReward:
		if m.Slug == "" || m.Reward == "" {
			return errors.New("settle_reward job requires slug and reward")
		}
	default:
		return fmt.Errorf("unknown job type %q", m.Type)
	}
	return nil
}

func (m Message) String() string {
	switch m.Type {
	case CollectChain:
		return fmt.Sprintf("%s(%s)", m.Type, m.Chain)
	case SettleReward:
		return fmt.Sprintf("%s(%s/%s)", m.Type, m.Slug, m.Reward)
	default:
		return fmt.Sprintf("%s(%s)", m.Type, m.Slug)
	}
}

// Runner executes jobs.
type Runner interface {
	CollectChain(ctx context.Context, chain string) (int, error)
	CollectCompetition(ctx context.Context, slug string) (int, error)
	SettleReward(ctx context.Context, slug, rewardName string) (*settlement.Result, error)
}

type Dispatcher struct {
	runner Runner
}

func NewDispatcher(runner Runner) *Dispatcher {
	return &Dispatcher{runner: runner}
}

// Handle decodes a queued body and runs it. A job that already ran today is not an error.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		metrics.JobsTotal.WithLabelValues("invalid", "error").Inc()
		return fmt.Errorf("decode job: %w", err)
	}
	if err := msg.Validate(); err != nil {
		metrics.JobsTotal.WithLabelValues("invalid", "error").Inc()
		return err
	}

	logger := log.WithField("job", msg.String())
	logger.Info("running job")

	err := d.run(ctx, msg, logger)
	switch {
	case errors.Is(err, store.ErrAlreadyRan):
		logger.Info("already collected for today")
		metrics.JobsTotal.WithLabelValues(string(msg.Type), "skipped").Inc()
		return nil
	case err != nil:
		metrics.JobsTotal.WithLabelValues(string(msg.Type), "error").Inc()
		return fmt.Errorf("%s: %w", msg, err)
	}
	metrics.JobsTotal.WithLabelValues(string(msg.Type), "success").Inc()
	return nil
}

func (d *Dispatcher) run(ctx context.Context, msg Message, logger *log.Entry) error {
	switch msg.Type {
	case CollectChain:
		n, err := d.runner.CollectChain(ctx, msg.Chain)
		if err == nil {
			logger.WithField("records", n).Info("chain collected")
		}
		return err
	case CollectCompetition:
		n, err := d.runner.CollectCompetition(ctx, msg.Slug)
		if err == nil {
			logger.WithField("records", n).Info("competition collected")
		}
		return err
	default:
		result, err := d.runner.SettleReward(ctx, msg.Slug, msg.Reward)
		if err != nil {
			return err
		}
		fields := log.Fields{"completed": result.Completed, "total": result.Total}
		if result.Completed != result.Total {
			logger.WithFields(fields).Warn("settlement finished with failures")
		} else {
			logger.WithFields(fields).Info("settlement finished")
		}
		return nil
	}
}
