package sources

import (
	"context"
	"fmt"
	"strings"

	"liquidityreward/internal/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	DexScreenerURL  = "https://api.dexscreener.com"
	incentiveSymbol = "USDGLO"
)

type dexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexLiquidity struct {
	Usd   decimal.Decimal `json:"usd"`
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

type dexPair struct {
	ChainID     string          `json:"chainId"`
	DexID       string          `json:"dexId"`
	PairAddress string          `json:"pairAddress"`
	PriceUsd    decimal.Decimal `json:"priceUsd"`
	BaseToken   dexToken        `json:"baseToken"`
	QuoteToken  dexToken        `json:"quoteToken"`
	Liquidity   dexLiquidity    `json:"liquidity"`
}

// DexScreener reads whitelisted pairs of the incentive token on one chain and dex.
type DexScreener struct {
	BaseURL        string
	Chain          string
	IncentiveToken string
	Dex            string
	Pools          []string
	client         *httpClient
}

func NewDexScreener(chain, incentiveToken, dex string, pools []string) *DexScreener {
	if dex == "" {
		dex = "uniswap"
	}
	return &DexScreener{
		BaseURL:        DexScreenerURL,
		Chain:          chain,
		IncentiveToken: incentiveToken,
		Dex:            dex,
		Pools:          pools,
		client:         newHTTPClient(5),
	}
}

func (d *DexScreener) Name() string {
	return "dexscreener/" + d.Chain + "/" + d.Dex
}

func (d *DexScreener) Fetch(ctx context.Context) ([]models.PoolReading, error) {
	url := fmt.Sprintf("%s/token-pairs/v1/%s/%s", strings.TrimRight(d.BaseURL, "/"), d.Chain, d.IncentiveToken)
	var pairs []dexPair
	if err := d.client.getJSON(ctx, url, &pairs); err != nil {
		return nil, err
	}

	whitelist := make(map[string]bool, len(d.Pools))
	for _, p := range d.Pools {
		whitelist[strings.ToLower(p)] = true
	}
	seen := make(map[string]bool)

	var readings []models.PoolReading
	for _, pair := range pairs {
		address := strings.ToLower(pair.PairAddress)
		if pair.DexID != d.Dex || !whitelist[address] {
			continue
		}
		seen[address] = true
		readings = append(readings, pairReading(pair, d.Dex))
	}

	if len(readings) < len(d.Pools) {
		var missing []string
		for _, p := range d.Pools {
			if !seen[strings.ToLower(p)] {
				missing = append(missing, p)
			}
		}
		log.WithField("source", d.Name()).Warnf("DexScreener missing %d pool(s): %s", len(missing), strings.Join(missing, ", "))
	}
	return readings, nil
}

// pairReading orients a pair so the incentive token side is the incentive TVL.
func pairReading(pair dexPair, dex string) models.PoolReading {
	other, incentive, participating := pair.BaseToken.Symbol, pair.Liquidity.Quote, pair.Liquidity.Base
	if pair.BaseToken.Symbol == incentiveSymbol {
		other, incentive, participating = pair.QuoteToken.Symbol, pair.Liquidity.Base, pair.Liquidity.Quote
	}
	incentiveTVL := incentive.Round(0)
	participatingTVL := participating.Mul(pair.PriceUsd).Round(0)
	return models.PoolReading{
		Token:                 other,
		Dex:                   dex,
		TVL:                   pair.Liquidity.Usd.Round(0),
		IncentiveTokenTVL:     &incentiveTVL,
		ParticipatingTokenTVL: &participatingTVL,
	}
}
