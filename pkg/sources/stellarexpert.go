package sources

import (
	"context"
	"fmt"
	"strings"

	"liquidityreward/internal/models"
	"liquidityreward/pkg/ledger"

	"github.com/shopspring/decimal"
)

const (
	StellarExpertURL = "https://api.stellar.expert"
	// DefaultBlendContract is the Blend pool holding USDGLO.
	DefaultBlendContract = "CCCCIQSDILITHMM7PBSLVDT5MISSY7R26MNZXCX4H7J5JQ5FPIYOGYFS"
)

var stellarTokenDecimals = map[string]int32{
	"USDGLO": 7,
	"XLM":    7,
	"USDC":   7,
}

type contractValue struct {
	Balances []struct {
		Asset string          `json:"asset"`
		Value decimal.Decimal `json:"value"`
	} `json:"balances"`
}

// StellarExpert reads the USDGLO balance held by a Soroban pool contract.
type StellarExpert struct {
	BaseURL  string
	Contract string
	client   *httpClient
}

func NewStellarExpert(contract string) *StellarExpert {
	if contract == "" {
		contract = DefaultBlendContract
	}
	return &StellarExpert{BaseURL: StellarExpertURL, Contract: contract, client: newHTTPClient(2)}
}

func (s *StellarExpert) Name() string {
	return "stellarexpert/" + s.Contract
}

func (s *StellarExpert) Fetch(ctx context.Context) ([]models.PoolReading, error) {
	url := fmt.Sprintf("%s/explorer/public/contract/%s/value", strings.TrimRight(s.BaseURL, "/"), s.Contract)
	var value contractValue
	if err := s.client.getJSON(ctx, url, &value); err != nil {
		return nil, err
	}

	balances := make(map[string]decimal.Decimal)
	for _, b := range value.Balances {
		if b.Asset == "" || b.Value.IsZero() {
			continue
		}
		symbol := strings.ToUpper(strings.SplitN(b.Asset, "-", 2)[0])
		decimals, ok := stellarTokenDecimals[symbol]
		if !ok {
			decimals = 7
		}
		balances[symbol] = b.Value.Shift(-decimals)
	}

	usdglo, ok := balances["USDGLO"]
	if !ok {
		usdglo, ok = balances["USD"]
	}
	if !ok || usdglo.IsZero() {
		return nil, nil
	}
	tvl := usdglo.Truncate(2)
	zero := decimal.Zero
	chainID := ledger.ChainStellar
	return []models.PoolReading{{
		Token:                 "USDGLO",
		Dex:                   "blend",
		TVL:                   tvl,
		IncentiveTokenTVL:     &tvl,
		ParticipatingTokenTVL: &zero,
		ChainID:               &chainID,
	}}, nil
}
