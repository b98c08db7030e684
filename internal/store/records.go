package store

import (
	"context"
	"fmt"
	"time"

	"liquidityreward/internal/models"
	"liquidityreward/pkg/metrics"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordBatch is one run's allocation result for a period key.
type RecordBatch struct {
	Key      PeriodKey
	ChainID  int64
	RewardID *uint
	// PeriodStart resets monthly earnings on its day in addition to the 1st of each month.
	PeriodStart *time.Time
	Rewards     []models.PoolReward
}

// HasRunToday reports whether records already exist for key at today's boundary.
// It is an optimization; the unique index is what guarantees one set per day.
func (s *Store) HasRunToday(ctx context.Context, key PeriodKey) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ProjectRecord{}).
		Where("scope = ? AND date = ?", key.String(), TodayMidnight(s.clock.Now())).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// yesterdayEarnings maps dex/token to the previous record's monthly total.
func (s *Store) yesterdayEarnings(ctx context.Context, key PeriodKey) (map[string]decimal.Decimal, error) {
	var records []models.ProjectRecord
	err := s.db.WithContext(ctx).
		Select("project_token", "project_dex", "current_month_earnings").
		Where("scope = ? AND date = ?", key.String(), YesterdayMidnight(s.clock.Now())).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	earnings := make(map[string]decimal.Decimal, len(records))
	for _, r := range records {
		earnings[r.PoolKey()] = r.CurrentMonthEarnings
	}
	return earnings, nil
}

// CreateDailyRecords persists a batch atomically and returns the number of records created.
// It yields ErrAlreadyRan only when another run already stored this period. Any other
// failure, including two rewards with the same pool key, rolls the batch back with a
// RecordCreationError naming every failed pool.
func (s *Store) CreateDailyRecords(ctx context.Context, batch RecordBatch) (int, error) {
	date := TodayMidnight(s.clock.Now())
	scope := batch.Key.String()

	if failures := duplicatePools(batch.Rewards); len(failures) > 0 {
		log.WithFields(log.Fields{"scope": scope, "failures": len(failures)}).Error("batch has duplicate pool keys")
		return 0, &RecordCreationError{Scope: scope, Failures: failures}
	}

	previous := map[string]decimal.Decimal{}
	if !IsFirstDayOfPeriod(date, batch.PeriodStart) {
		var err error
		if previous, err = s.yesterdayEarnings(ctx, batch.Key); err != nil {
			return 0, fmt.Errorf("load yesterday earnings for %s: %w", scope, err)
		}
	}

	records := make([]models.ProjectRecord, 0, len(batch.Rewards))
	for _, r := range batch.Rewards {
		chainID := batch.ChainID
		if r.ChainID != nil {
			chainID = *r.ChainID
		}
		incentive := decimal.Zero
		if r.IncentiveTokenTVL != nil {
			incentive = *r.IncentiveTokenTVL
		}
		participating := decimal.Zero
		if r.ParticipatingTokenTVL != nil {
			participating = *r.ParticipatingTokenTVL
		}
		records = append(records, models.ProjectRecord{
			Scope:                 scope,
			ProjectToken:          r.Token,
			ProjectDex:            r.Dex,
			ProjectChainID:        chainID,
			RewardID:              batch.RewardID,
			TVL:                   r.TVL,
			IncentiveTokenTVL:     incentive,
			ParticipatingTokenTVL: participating,
			Earnings:              r.Reward,
			CurrentMonthEarnings:  previous[r.PoolKey()].Add(r.Reward),
			Date:                  date,
		})
	}

	var (
		failures  []RecordFailure
		duplicate bool
		created   int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			rec := &records[i]
			// Each insert runs in its own savepoint so one failure does not abort the rest.
			err := tx.Transaction(func(itx *gorm.DB) error {
				return itx.Create(rec).Error
			})
			if err != nil {
				if isUniqueViolation(err) {
					duplicate = true
				}
				failures = append(failures, RecordFailure{Pool: rec.PoolKey(), Error: err.Error()})
				continue
			}
			created++
		}
		if len(failures) > 0 {
			return &RecordCreationError{Scope: scope, Failures: failures}
		}
		return nil
	})
	if err != nil {
		if duplicate {
			// only another committed run makes this a no-op
			ran, rerr := s.HasRunToday(ctx, batch.Key)
			if rerr != nil {
				return 0, fmt.Errorf("recheck %s: %w", scope, rerr)
			}
			if ran {
				log.WithField("scope", scope).Warn("records already exist for today, treating run as done")
				return 0, fmt.Errorf("%w (%s)", ErrAlreadyRan, scope)
			}
		}
		log.WithFields(log.Fields{"scope": scope, "failures": len(failures)}).Errorf("failed while creating records: %v", err)
		return 0, err
	}

	metrics.RecordsCreatedTotal.WithLabelValues(batch.Key.kind).Add(float64(created))
	log.WithField("scope", scope).Infof("%d/%d records created", created, len(batch.Rewards))
	return created, nil
}

// duplicatePools reports every pool key that appears more than once in rewards.
func duplicatePools(rewards []models.PoolReward) []RecordFailure {
	counts := make(map[string]int, len(rewards))
	var keys []string
	for _, r := range rewards {
		if counts[r.PoolKey()] == 0 {
			keys = append(keys, r.PoolKey())
		}
		counts[r.PoolKey()]++
	}
	var failures []RecordFailure
	for _, k := range keys {
		if counts[k] > 1 {
			failures = append(failures, RecordFailure{Pool: k, Error: fmt.Sprintf("duplicate pool key in batch (%d readings)", counts[k])})
		}
	}
	return failures
}

// EnsureProjects registers a project per reading, skipping ones that already exist.
func (s *Store) EnsureProjects(ctx context.Context, chainID int64, rewards []models.PoolReward) (int64, error) {
	if len(rewards) == 0 {
		return 0, nil
	}
	projects := make([]models.Project, 0, len(rewards))
	for _, r := range rewards {
		chain := chainID
		if r.ChainID != nil {
			chain = *r.ChainID
		}
		projects = append(projects, models.Project{
			Name:         r.Token,
			Token:        r.Token,
			DisplayToken: r.Token,
			ChainID:      chain,
			Dex:          r.Dex,
		})
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&projects)
	if result.Error != nil {
		return 0, result.Error
	}
	log.WithField("chain_id", chainID).Infof("%d new projects created", result.RowsAffected)
	return result.RowsAffected, nil
}

// RecordDestination pairs a record with its project's payout address.
type RecordDestination struct {
	Record        models.ProjectRecord
	PayoutAddress *string
}

// TodayRecords returns today's records for a reward with their payout destinations.
func (s *Store) TodayRecords(ctx context.Context, rewardID uint) ([]RecordDestination, error) {
	var records []models.ProjectRecord
	err := s.db.WithContext(ctx).
		Where("reward_id = ? AND date = ?", rewardID, TodayMidnight(s.clock.Now())).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	tokens := make([]string, 0, len(records))
	for _, r := range records {
		tokens = append(tokens, r.ProjectToken)
	}
	var projects []models.Project
	if err := s.db.WithContext(ctx).Where("token IN ?", tokens).Find(&projects).Error; err != nil {
		return nil, err
	}
	byKey := make(map[string]*string, len(projects))
	for _, p := range projects {
		byKey[fmt.Sprintf("%s/%d/%s", p.Dex, p.ChainID, p.Token)] = p.PayoutAddress
	}

	result := make([]RecordDestination, 0, len(records))
	for _, r := range records {
		result = append(result, RecordDestination{
			Record:        r,
			PayoutAddress: byKey[fmt.Sprintf("%s/%d/%s", r.ProjectDex, r.ProjectChainID, r.ProjectToken)],
		})
	}
	return result, nil
}
