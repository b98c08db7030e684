package store

import (
	"context"
	"time"

	"liquidityreward/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"
)

// FindPayouts returns today's payouts of a reward, oldest first.
func (s *Store) FindPayouts(ctx context.Context, rewardID uint) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.db.WithContext(ctx).
		Joins("JOIN project_record ON project_record.id = payout.project_record_id").
		Where("project_record.reward_id = ? AND project_record.date = ?", rewardID, TodayMidnight(s.clock.Now())).
		Order("payout.id ASC").
		Find(&payouts).Error
	return payouts, err
}

// CreateOrFetchPayouts returns today's payouts for a reward, creating them on first call.
// Every record is validated before anything is written: one bad destination
// or an earnings value above the reward budget aborts the whole batch.
func (s *Store) CreateOrFetchPayouts(ctx context.Context, reward *models.Reward, validAddress func(string) bool) ([]models.Payout, error) {
	existing, err := s.FindPayouts(ctx, reward.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		log.WithField("reward_id", reward.ID).Info("payout records already created, fetching")
		return existing, nil
	}

	records, err := s.TodayRecords(ctx, reward.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	payouts := make([]models.Payout, 0, len(records))
	for _, r := range records {
		rec := r.Record
		if r.PayoutAddress == nil || *r.PayoutAddress == "" || !validAddress(*r.PayoutAddress) {
			err := &BusinessLogicError{Project: rec.ProjectToken, ChainID: rec.ProjectChainID, Reason: "invalid payout address"}
			log.Error(err.Error())
			return nil, err
		}
		if rec.Earnings.GreaterThan(reward.Value) {
			err := &BusinessLogicError{Project: rec.ProjectToken, ChainID: rec.ProjectChainID, Reason: "earnings above reward budget"}
			log.Error(err.Error())
			return nil, err
		}
		payouts = append(payouts, models.Payout{
			ProjectRecordID: rec.ID,
			PayoutAddress:   *r.PayoutAddress,
			TokenAddress:    reward.TokenAddress,
			Value:           rec.Earnings,
		})
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&payouts)
	if result.Error != nil {
		return nil, result.Error
	}
	log.WithField("reward_id", reward.ID).Infof("created %d payout records", result.RowsAffected)

	return s.FindPayouts(ctx, reward.ID)
}

// ClaimPayout moves a pending payout to in-flight. It returns false when the
// payout was already processed or another run holds it.
func (s *Store) ClaimPayout(ctx context.Context, id uint) (bool, error) {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND processed = ? AND is_processing = ?", id, false, false).
		Updates(map[string]interface{}{"is_processing": true, "processing_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkSettled records the transfer hash; the hash is the durable proof of settlement.
func (s *Store) MarkSettled(ctx context.Context, id uint, hash string) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":     true,
			"is_processing": false,
			"hash":          hash,
			"processed_at":  now,
		}).Error
}

// MarkBroadcast stores the hash of a sent but unconfirmed transfer and keeps the payout in-flight.
func (s *Store) MarkBroadcast(ctx context.Context, id uint, hash string) error {
	return s.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND processed = ?", id, false).
		Update("hash", hash).Error
}

// ReleasePayout returns an in-flight payout to pending after a failed transfer.
func (s *Store) ReleasePayout(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]interface{}{"is_processing": false, "processing_at": nil}).Error
}

// ReleaseStuckPayouts is the operator action for runs killed mid-batch. It
// resets in-flight payouts whose claim is older than olderThan. Payouts with a
// broadcast hash are only released when includeBroadcast is set, since their
// transfer may already be on chain.
func (s *Store) ReleaseStuckPayouts(ctx context.Context, olderThan time.Duration, includeBroadcast bool) (int64, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	query := s.db.WithContext(ctx).Model(&models.Payout{}).
		Where("is_processing = ? AND processed = ?", true, false).
		Where("processing_at IS NULL OR processing_at < ?", cutoff)
	if !includeBroadcast {
		query = query.Where("hash IS NULL")
	}
	updates := map[string]interface{}{"is_processing": false, "processing_at": nil}
	if includeBroadcast {
		updates["hash"] = nil
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	log.WithFields(log.Fields{"older_than": olderThan.String(), "include_broadcast": includeBroadcast}).
		Warnf("released %d stuck payouts", result.RowsAffected)
	return result.RowsAffected, nil
}
