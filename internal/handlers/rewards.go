package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"liquidityreward/internal/handlers/business"
	"liquidityreward/internal/models"
	"liquidityreward/internal/store"
	"liquidityreward/pkg/ledger"
	"liquidityreward/pkg/notify"
	"liquidityreward/pkg/settlement"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RewardService is the job surface behind the trigger endpoints.
type RewardService interface {
	CollectChain(ctx context.Context, chain string) (int, error)
	CollectCompetition(ctx context.Context, slug string) (int, error)
	SettleReward(ctx context.Context, slug, rewardName string) (*settlement.Result, error)
	ListPayouts(ctx context.Context, slug, rewardName string) ([]models.Payout, error)
	ReleaseStuck(ctx context.Context, olderThan time.Duration, includeBroadcast bool) (int64, error)
}

type RewardHandler struct {
	service RewardService
}

func NewRewardHandler(service RewardService) *RewardHandler {
	return &RewardHandler{service: service}
}

// ReleaseStuckReq is the body of the release-stuck operator action
type ReleaseStuckReq struct {
	OlderThanMinutes int  `json:"older_than_minutes" binding:"required,min=1"`
	IncludeBroadcast bool `json:"include_broadcast"`
}

// CollectChain snapshots today's readings for a chain program.
// GET /api/collect/chain/:chain
func (h *RewardHandler) CollectChain(c *gin.Context) {
	chain := c.Param("chain")
	created, err := h.service.CollectChain(c.Request.Context(), chain)
	if errors.Is(err, store.ErrAlreadyRan) {
		c.JSON(http.StatusOK, gin.H{"message": "Already collected for today"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Liquidity snapshot for %s collected", chain),
		"records": created,
	})
}

// CollectCompetition snapshots today's readings for every reward of a competition.
// GET /api/collect/competition?slug=
func (h *RewardHandler) CollectCompetition(c *gin.Context) {
	slug := c.Query("slug")
	if slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug is required"})
		return
	}
	created, err := h.service.CollectCompetition(c.Request.Context(), slug)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Liquidity snapshot for %s collected", slug),
		"records": created,
	})
}

// ProcessPayouts pays today's records of a reward.
// GET /api/payout/process?slug=&reward=
func (h *RewardHandler) ProcessPayouts(c *gin.Context) {
	slug, reward, ok := rewardQuery(c)
	if !ok {
		return
	}
	result, err := h.service.SettleReward(c.Request.Context(), slug, reward)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{
		"message":   notify.SettlementSummary(*result, slug+"/"+reward),
		"completed": result.Completed,
		"total":     result.Total,
		"failures":  result.Failures,
	}
	if result.Completed != result.Total {
		body["error"] = "Issues detected"
	}
	c.JSON(http.StatusOK, body)
}

// ListPayouts returns today's payouts of a reward.
// GET /api/payout?slug=&reward=
func (h *RewardHandler) ListPayouts(c *gin.Context) {
	slug, reward, ok := rewardQuery(c)
	if !ok {
		return
	}
	payouts, err := h.service.ListPayouts(c.Request.Context(), slug, reward)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payouts, "total": len(payouts)})
}

// ReleaseStuck returns stuck in-flight payouts to pending.
// POST /api/payout/release-stuck
func (h *RewardHandler) ReleaseStuck(c *gin.Context) {
	var req ReleaseStuckReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	released, err := h.service.ReleaseStuck(c.Request.Context(), time.Duration(req.OlderThanMinutes)*time.Minute, req.IncludeBroadcast)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("%d stuck payouts released", released),
		"released": released,
	})
}

func rewardQuery(c *gin.Context) (string, string, bool) {
	slug, reward := c.Query("slug"), c.Query("reward")
	if slug == "" || reward == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug and reward are required"})
		return "", "", false
	}
	return slug, reward, true
}

// writeError maps job errors to status codes.
func writeError(c *gin.Context, err error) {
	var (
		recordErr   *store.RecordCreationError
		businessErr *store.BusinessLogicError
	)
	switch {
	case errors.Is(err, store.ErrCompetitionNotFound),
		errors.Is(err, store.ErrRewardNotFound),
		errors.Is(err, business.ErrUnknownChain):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, business.ErrCompetitionInactive),
		errors.Is(err, business.ErrNoRewards),
		errors.Is(err, store.ErrAlreadyRan),
		errors.Is(err, ledger.ErrUnsupportedChain):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &recordErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "Failed to create records",
			"message":  err.Error(),
			"failures": recordErr.Failures,
		})
	case errors.As(err, &businessErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "Business logic error",
			"message":  err.Error(),
			"failures": []store.RecordFailure{{Pool: businessErr.Project, Error: businessErr.Reason}},
		})
	case errors.Is(err, business.ErrNoEligibleLiquidity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "Allocation failed",
			"message":  err.Error(),
			"failures": []store.RecordFailure{},
		})
	default:
		log.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "Internal server error",
			"message":  err.Error(),
			"failures": []store.RecordFailure{},
		})
	}
}
