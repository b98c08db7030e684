package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"liquidityreward/internal/models"
	"liquidityreward/internal/store"
	"liquidityreward/pkg/metrics"
	"liquidityreward/pkg/sources"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	jobCollectChain       = "collect_chain"
	jobCollectCompetition = "collect_competition"
)

// DailyBudget splits a monthly budget evenly over the days of the record month.
func DailyBudget(monthly decimal.Decimal, recordDate time.Time) decimal.Decimal {
	return monthly.DivRound(decimal.NewFromInt(int64(store.DaysInMonth(recordDate))), rewardPrecision)
}

// CollectChain snapshots today's readings for a chain program and stores its daily records.
// It returns store.ErrAlreadyRan when today's records already exist.
func (s *Service) CollectChain(ctx context.Context, chain string) (int, error) {
	program, ok := s.chains[strings.ToLower(chain)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	start := time.Now()
	defer func() {
		metrics.CollectionDuration.WithLabelValues(jobCollectChain).Observe(time.Since(start).Seconds())
	}()

	key := store.ChainKey(program.ChainID)
	ran, err := s.store.HasRunToday(ctx, key)
	if err != nil {
		return 0, err
	}
	if ran {
		log.WithField("chain", program.Name).Info("already collected for today")
		metrics.CollectionsTotal.WithLabelValues(jobCollectChain, "skipped").Inc()
		return 0, store.ErrAlreadyRan
	}

	readings := sources.Collect(ctx, s.sourceTimeout, program.Sources...)
	budget := DailyBudget(program.MonthlyBudget, store.TodayMidnight(s.store.Now()))
	log.WithFields(log.Fields{"chain": program.Name, "readings": len(readings), "budget": budget.String()}).Info("allocating daily rewards")

	rewards, err := s.allocator.Allocate(readings, budget)
	if err != nil {
		metrics.CollectionsTotal.WithLabelValues(jobCollectChain, "error").Inc()
		return 0, err
	}
	if _, err := s.store.EnsureProjects(ctx, program.ChainID, rewards); err != nil {
		metrics.CollectionsTotal.WithLabelValues(jobCollectChain, "error").Inc()
		return 0, fmt.Errorf("ensure projects: %w", err)
	}
	created, err := s.store.CreateDailyRecords(ctx, store.RecordBatch{
		Key:     key,
		ChainID: program.ChainID,
		Rewards: rewards,
	})
	if err != nil {
		metrics.CollectionsTotal.WithLabelValues(jobCollectChain, collectStatus(err)).Inc()
		return 0, err
	}
	metrics.CollectionsTotal.WithLabelValues(jobCollectChain, "success").Inc()
	return created, nil
}

// CollectCompetition snapshots readings once and stores records for every reward of the competition.
func (s *Service) CollectCompetition(ctx context.Context, slug string) (int, error) {
	competition, err := s.store.GetCompetition(ctx, slug)
	if err != nil {
		return 0, err
	}
	recordDate := store.TodayMidnight(s.store.Now())
	if !competition.IsActiveOn(recordDate) {
		return 0, fmt.Errorf("%w: %s", ErrCompetitionInactive, slug)
	}
	if len(competition.Rewards) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoRewards, slug)
	}
	start := time.Now()
	defer func() {
		metrics.CollectionDuration.WithLabelValues(jobCollectCompetition).Observe(time.Since(start).Seconds())
	}()

	ran, err := s.store.HasRunToday(ctx, store.RewardKey(competition.Rewards[0].ID))
	if err != nil {
		return 0, err
	}
	if ran {
		metrics.CollectionsTotal.WithLabelValues(jobCollectCompetition, "skipped").Inc()
		return 0, store.ErrAlreadyRan
	}

	readings := sources.Collect(ctx, s.sourceTimeout, s.competitionSources...)
	log.WithFields(log.Fields{"competition": slug, "readings": len(readings)}).Info("allocating competition rewards")

	var (
		total int
		errs  []error
	)
	for i := range competition.Rewards {
		reward := competition.Rewards[i]
		created, err := s.collectReward(ctx, competition, &reward, readings)
		if err != nil {
			log.WithFields(log.Fields{"competition": slug, "reward": reward.Name}).Errorf("failed to store reward records: %v", err)
			errs = append(errs, fmt.Errorf("reward %s: %w", reward.Name, err))
			continue
		}
		total += created
	}
	if err := errors.Join(errs...); err != nil {
		metrics.CollectionsTotal.WithLabelValues(jobCollectCompetition, collectStatus(err)).Inc()
		return total, err
	}
	metrics.CollectionsTotal.WithLabelValues(jobCollectCompetition, "success").Inc()
	return total, nil
}

func (s *Service) collectReward(ctx context.Context, competition *models.Competition, reward *models.Reward, readings []models.PoolReading) (int, error) {
	rewards, err := s.allocator.Allocate(readings, reward.Value)
	if err != nil {
		return 0, err
	}
	if _, err := s.store.EnsureProjects(ctx, reward.ChainID, rewards); err != nil {
		return 0, fmt.Errorf("ensure projects: %w", err)
	}
	start := competition.StartDate
	return s.store.CreateDailyRecords(ctx, store.RecordBatch{
		Key:         store.RewardKey(reward.ID),
		ChainID:     reward.ChainID,
		RewardID:    &reward.ID,
		PeriodStart: &start,
		Rewards:     rewards,
	})
}

func collectStatus(err error) string {
	if errors.Is(err, store.ErrAlreadyRan) {
		return "skipped"
	}
	return "error"
}
