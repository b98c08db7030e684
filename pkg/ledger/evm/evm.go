// Package evm pays out native coins and ERC-20 tokens on EVM chains.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"liquidityreward/pkg/ledger"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

const erc20TransferABI = `[{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"outputs":[{"name":"success","type":"bool"}]}]`

var erc20ABI = mustParseABI(erc20TransferABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Client is the subset of ethclient.Client the ledger uses.
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Config struct {
	Name           string
	ChainID        int64
	RPCURL         string
	PrivateKey     string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	Retry          ledger.RetryPolicy
}

// Ledger sends transfers from one operator account.
type Ledger struct {
	name           string
	chainID        *big.Int
	client         Client
	key            *ecdsa.PrivateKey
	from           common.Address
	receiptTimeout time.Duration
	pollInterval   time.Duration
	retry          ledger.RetryPolicy
}

// Dial connects to cfg.RPCURL and loads the operator key.
func Dial(ctx context.Context, cfg Config) (*Ledger, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", cfg.Name, err)
	}
	return New(client, cfg)
}

func New(client Client, cfg Config) (*Ledger, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("%s: operator private key is not set", cfg.Name)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%s: parse operator private key: %w", cfg.Name, err)
	}
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = ledger.DefaultRetryPolicy()
	}
	return &Ledger{
		name:           cfg.Name,
		chainID:        big.NewInt(cfg.ChainID),
		client:         client,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		receiptTimeout: cfg.ReceiptTimeout,
		pollInterval:   cfg.PollInterval,
		retry:          cfg.Retry,
	}, nil
}

func (l *Ledger) Name() string {
	return l.name
}

func (l *Ledger) ChainID() int64 {
	return l.chainID.Int64()
}

// Address is the operator account paying out.
func (l *Ledger) Address() string {
	return l.from.Hex()
}

func (l *Ledger) ValidateAddress(address string) bool {
	return ValidAddress(address)
}

// Transfer signs and broadcasts the transfer, then waits for its receipt.
// Errors before broadcast are retried when transient. A send that may have
// reached the node, or a receipt that never arrives, is reported through
// *ledger.BroadcastError.
func (l *Ledger) Transfer(ctx context.Context, t ledger.Transfer) (string, error) {
	decimals, err := Decimals(t.Token)
	if err != nil {
		return "", err
	}
	if err := ledger.ValidateAmount(t.Amount); err != nil {
		return "", err
	}
	if !ValidAddress(t.To) {
		return "", fmt.Errorf("%w: %s", ledger.ErrInvalidAddress, t.To)
	}
	value := ToBaseUnits(t.Amount, decimals)
	if value.Sign() <= 0 {
		return "", fmt.Errorf("%w: %s below token precision", ledger.ErrInvalidAmount, t.Amount)
	}

	to := common.HexToAddress(t.To)
	msg := ethereum.CallMsg{From: l.from, To: &to, Value: value}
	if t.Token != ledger.NativeToken {
		data, err := erc20ABI.Pack("transfer", to, value)
		if err != nil {
			return "", fmt.Errorf("pack transfer: %w", err)
		}
		token := common.HexToAddress(t.Token)
		msg = ethereum.CallMsg{From: l.from, To: &token, Value: big.NewInt(0), Data: data}
	}

	var signed *types.Transaction
	err = l.retry.Do(ctx, l.name+" send", func(attempt int) error {
		tx, err := l.buildTx(ctx, msg)
		if err != nil {
			return err
		}
		signed, err = types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
		if err != nil {
			return fmt.Errorf("sign transaction: %w", err)
		}
		if err := l.client.SendTransaction(ctx, signed); err != nil {
			if ledger.AmbiguousSend(err) {
				return backoff.Permanent(&ledger.BroadcastError{Hash: signed.Hash().Hex(), Err: err})
			}
			return err
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("send %s transfer: %w", l.name, err)
	}

	hash := signed.Hash().Hex()
	log.WithFields(log.Fields{"ledger": l.name, "hash": hash, "to": t.To}).Info("mining transaction")

	receipt, err := l.waitMined(ctx, signed.Hash())
	if err != nil {
		return "", &ledger.BroadcastError{Hash: hash, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("transaction %s reverted in block %s", hash, receipt.BlockNumber)
	}
	log.WithFields(log.Fields{"ledger": l.name, "hash": hash}).Infof("mined in block %s", receipt.BlockNumber)
	return hash, nil
}

// buildTx fetches a fresh pending nonce and fee quote for every attempt.
func (l *Ledger) buildTx(ctx context.Context, msg ethereum.CallMsg) (*types.Transaction, error) {
	nonce, err := l.client.PendingNonceAt(ctx, l.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gas, err := l.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	header, err := l.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}

	if header.BaseFee == nil {
		price, err := l.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       msg.To,
			Value:    msg.Value,
			Data:     msg.Data,
		}), nil
	}

	tip, err := l.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), tip)
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        msg.To,
		Value:     msg.Value,
		Data:      msg.Data,
	}), nil
}

func (l *Ledger) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.WithField("hash", hash.Hex()).Warnf("receipt lookup failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
