// Package store owns daily project records and payouts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"liquidityreward/internal/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// PeriodKey scopes a run: one chain program or one competition reward.
type PeriodKey struct {
	kind string
	id   uint64
}

// ChainKey scopes records of a chain-wide daily program.
func ChainKey(chainID int64) PeriodKey {
	return PeriodKey{kind: "chain", id: uint64(chainID)}
}

// RewardKey scopes records of a competition reward.
func RewardKey(rewardID uint) PeriodKey {
	return PeriodKey{kind: "reward", id: uint64(rewardID)}
}

func (k PeriodKey) String() string {
	return k.kind + ":" + strconv.FormatUint(k.id, 10)
}

type Store struct {
	db    *gorm.DB
	clock clockwork.Clock
}

func New(db *gorm.DB, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{db: db, clock: clock}
}

// DB exposes the underlying handle for callers that compose their own queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// GetCompetition loads a competition and its rewards by slug.
func (s *Store) GetCompetition(ctx context.Context, slug string) (*models.Competition, error) {
	var competition models.Competition
	err := s.db.WithContext(ctx).Preload("Rewards", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("slug = ?", slug).First(&competition).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCompetitionNotFound, slug)
	}
	if err != nil {
		return nil, err
	}
	return &competition, nil
}

// GetReward loads exactly one reward by competition slug and reward name.
func (s *Store) GetReward(ctx context.Context, slug, name string) (*models.Reward, error) {
	var rewards []models.Reward
	err := s.db.WithContext(ctx).
		Joins("JOIN competition ON competition.id = reward.competition_id").
		Where("competition.slug = ? AND reward.name = ?", slug, name).
		Preload("Competition").
		Find(&rewards).Error
	if err != nil {
		return nil, err
	}
	if len(rewards) != 1 {
		return nil, fmt.Errorf("%w: %s/%s (found %d)", ErrRewardNotFound, slug, name, len(rewards))
	}
	return &rewards[0], nil
}
