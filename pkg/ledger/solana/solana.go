// Package solana pays out SOL and SPL tokens.
package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liquidityreward/pkg/ledger"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const lamportDecimals = 9

// RPC is the subset of rpc.Client the ledger uses.
type RPC interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, transaction *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Token describes an SPL mint the ledger can pay out.
type Token struct {
	Mint     string
	Decimals uint8
}

type Config struct {
	RPCURL string
	// PrivateKey is a base58 secret key. When empty the key is loaded
	// from the keystore entry of KeystoreAddress.
	PrivateKey       string
	KeystoreDir      string
	KeystoreAddress  string
	KeystorePassword string
	Tokens           []Token
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
	Retry            ledger.RetryPolicy
}

type Ledger struct {
	client         RPC
	payer          solana.PrivateKey
	tokens         map[string]uint8
	confirmTimeout time.Duration
	pollInterval   time.Duration
	retry          ledger.RetryPolicy
}

// Dial builds a ledger on an RPC endpoint.
func Dial(cfg Config) (*Ledger, error) {
	if cfg.RPCURL == "" {
		cfg.RPCURL = rpc.MainNetBeta_RPC
	}
	return New(rpc.New(cfg.RPCURL), cfg)
}

func New(client RPC, cfg Config) (*Ledger, error) {
	payer, err := operatorKey(cfg)
	if err != nil {
		return nil, err
	}
	tokens := make(map[string]uint8, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if _, err := solana.PublicKeyFromBase58(t.Mint); err != nil {
			return nil, fmt.Errorf("solana: invalid mint %s: %w", t.Mint, err)
		}
		tokens[t.Mint] = t.Decimals
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = ledger.DefaultRetryPolicy()
	}
	return &Ledger{
		client:         client,
		payer:          payer,
		tokens:         tokens,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		retry:          cfg.Retry,
	}, nil
}

func operatorKey(cfg Config) (solana.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("solana: parse operator private key: %w", err)
		}
		return key, nil
	}
	if cfg.KeystoreAddress == "" {
		return nil, errors.New("solana: operator key is not set")
	}
	account, err := NewKeystore(cfg.KeystoreDir).Load(cfg.KeystoreAddress, cfg.KeystorePassword)
	if err != nil {
		return nil, fmt.Errorf("solana: %w", err)
	}
	return solana.PrivateKey(account.PrivateKey), nil
}

func (l *Ledger) Name() string {
	return "solana"
}

func (l *Ledger) ChainID() int64 {
	return ledger.ChainSolana
}

// Address is the operator account paying out.
func (l *Ledger) Address() string {
	return l.payer.PublicKey().String()
}

func (l *Ledger) ValidateAddress(address string) bool {
	return ValidAddress(address)
}

// ValidAddress accepts base58 encoded 32-byte public keys.
func ValidAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// GetAssociatedTokenAddress derives the ATA of owner for mint.
func GetAssociatedTokenAddress(mint, owner solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress([][]byte{
		owner[:],
		solana.TokenProgramID[:],
		mint[:],
	}, solana.SPLAssociatedTokenAccountProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find associated token address: %w", err)
	}
	return address, nil
}

// ToBaseUnits truncates amount to decimals and scales it to an integer.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) uint64 {
	return amount.Truncate(int32(decimals)).Shift(int32(decimals)).BigInt().Uint64()
}

// Transfer sends SOL for the native token or an SPL transfer otherwise,
// creating the recipient's token account when it does not exist.
func (l *Ledger) Transfer(ctx context.Context, t ledger.Transfer) (string, error) {
	if err := ledger.ValidateAmount(t.Amount); err != nil {
		return "", err
	}
	to, err := solana.PublicKeyFromBase58(t.To)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ledger.ErrInvalidAddress, t.To)
	}

	var sig solana.Signature
	err = l.retry.Do(ctx, "solana send", func(attempt int) error {
		instructions, err := l.instructions(ctx, t, to)
		if err != nil {
			return err
		}
		tx, err := l.sign(ctx, instructions)
		if err != nil {
			return err
		}
		sig, err = l.client.SendTransaction(ctx, tx)
		if err != nil && ledger.AmbiguousSend(err) {
			return backoff.Permanent(&ledger.BroadcastError{Hash: tx.Signatures[0].String(), Err: err})
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("send solana transfer: %w", err)
	}

	log.WithFields(log.Fields{"signature": sig.String(), "to": t.To}).Info("confirming solana transfer")
	if err := l.confirm(ctx, sig); err != nil {
		var broadcast *ledger.BroadcastError
		if errors.As(err, &broadcast) {
			return "", err
		}
		return "", fmt.Errorf("solana transfer %s: %w", sig, err)
	}
	return sig.String(), nil
}

func (l *Ledger) instructions(ctx context.Context, t ledger.Transfer, to solana.PublicKey) ([]solana.Instruction, error) {
	payer := l.payer.PublicKey()
	if t.Token == ledger.NativeToken {
		lamports := ToBaseUnits(t.Amount, lamportDecimals)
		if lamports == 0 {
			return nil, fmt.Errorf("%w: %s below lamport precision", ledger.ErrInvalidAmount, t.Amount)
		}
		return []solana.Instruction{system.NewTransferInstruction(lamports, payer, to).Build()}, nil
	}

	decimals, ok := l.tokens[t.Token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownToken, t.Token)
	}
	amount := ToBaseUnits(t.Amount, decimals)
	if amount == 0 {
		return nil, fmt.Errorf("%w: %s below token precision", ledger.ErrInvalidAmount, t.Amount)
	}
	mint := solana.MustPublicKeyFromBase58(t.Token)
	sourceATA, err := GetAssociatedTokenAddress(mint, payer)
	if err != nil {
		return nil, err
	}
	targetATA, err := GetAssociatedTokenAddress(mint, to)
	if err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	info, err := l.client.GetAccountInfo(ctx, targetATA)
	switch {
	case errors.Is(err, rpc.ErrNotFound), err == nil && (info == nil || info.Value == nil):
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(payer, to, mint).Build())
		log.WithField("ata", targetATA.String()).Info("creating recipient token account")
	case err != nil:
		return nil, fmt.Errorf("get recipient token account: %w", err)
	}
	instructions = append(instructions, token.NewTransferInstruction(amount, sourceATA, targetATA, payer, nil).Build())
	return instructions, nil
}

// sign uses a fresh blockhash on every attempt.
func (l *Ledger) sign(ctx context.Context, instructions []solana.Instruction) (*solana.Transaction, error) {
	payer := l.payer.PublicKey()
	bh, err := l.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(instructions, bh.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &l.payer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

func (l *Ledger) confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		res, err := l.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction failed: %v", status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		} else if err != nil {
			log.WithField("signature", sig.String()).Warnf("signature status lookup failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return &ledger.BroadcastError{Hash: sig.String(), Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}
