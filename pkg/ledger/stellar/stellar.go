// Package stellar pays out XLM and USDGLO through Horizon.
package stellar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"liquidityreward/pkg/ledger"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
)

const (
	USDGLOCode   = "USDGLO"
	USDGLOIssuer = "GBBS25EGYQPGEZCGCFBKG4OAGFXU6DSOQBGTHELLJT3HZXZJ34HWS6XV"

	txTimeoutSeconds = 180
	amountPrecision  = 7
)

// MaxAmount caps a single payment.
var MaxAmount = decimal.NewFromInt(1_000_000)

// Horizon is the part of horizonclient.ClientInterface the ledger calls.
type Horizon interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	SubmitTransaction(transaction *txnbuild.Transaction) (hProtocol.Transaction, error)
}

type Config struct {
	HorizonURL        string
	Secret            string
	NetworkPassphrase string
	Retry             ledger.RetryPolicy
}

type Ledger struct {
	horizon    Horizon
	signer     *keypair.Full
	passphrase string
	retry      ledger.RetryPolicy
}

// Dial builds a ledger on a Horizon HTTP client with an explicit timeout.
func Dial(cfg Config) (*Ledger, error) {
	url := cfg.HorizonURL
	if url == "" {
		url = horizonclient.DefaultPublicNetClient.HorizonURL
	}
	client := &horizonclient.Client{
		HorizonURL: url,
		HTTP:       &http.Client{Timeout: 60 * time.Second},
	}
	return New(client, cfg)
}

func New(h Horizon, cfg Config) (*Ledger, error) {
	if cfg.Secret == "" {
		return nil, errors.New("stellar: operator secret is not set")
	}
	kp, err := keypair.ParseFull(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("stellar: parse operator secret: %w", err)
	}
	if cfg.NetworkPassphrase == "" {
		cfg.NetworkPassphrase = network.PublicNetworkPassphrase
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = ledger.DefaultRetryPolicy()
	}
	return &Ledger{horizon: h, signer: kp, passphrase: cfg.NetworkPassphrase, retry: cfg.Retry}, nil
}

func (l *Ledger) Name() string {
	return "stellar"
}

func (l *Ledger) ChainID() int64 {
	return ledger.ChainStellar
}

// Address is the operator account paying out.
func (l *Ledger) Address() string {
	return l.signer.Address()
}

func (l *Ledger) ValidateAddress(address string) bool {
	return ValidAddress(address)
}

// ValidAddress accepts ed25519 account ids (G...).
func ValidAddress(address string) bool {
	return strkey.IsValidEd25519PublicKey(address)
}

// ValidateAmount accepts amounts in (0, 1,000,000].
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: %s must be in (0, %s]", ledger.ErrInvalidAmount, amount, MaxAmount)
	}
	return nil
}

// Asset maps a token address to a Stellar asset: "native" is XLM, anything else USDGLO.
func Asset(token string) txnbuild.Asset {
	if token == ledger.NativeToken {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: USDGLOCode, Issuer: USDGLOIssuer}
}

// Transfer submits a single payment. A submission that timed out is resent
// unchanged: the envelope keeps its sequence number, so Horizon applies it at
// most once. Every other retry rebuilds the transaction from a freshly loaded
// account.
func (l *Ledger) Transfer(ctx context.Context, t ledger.Transfer) (string, error) {
	if err := ValidateAmount(t.Amount); err != nil {
		return "", err
	}
	if !ValidAddress(t.To) {
		return "", fmt.Errorf("%w: %s", ledger.ErrInvalidAddress, t.To)
	}
	payment := &txnbuild.Payment{
		Destination: t.To,
		Amount:      t.Amount.StringFixed(amountPrecision),
		Asset:       Asset(t.Token),
	}

	var (
		pending *txnbuild.Transaction
		hash    string
		inDoubt bool
	)
	err := l.retry.Do(ctx, "stellar send", func(attempt int) error {
		if pending == nil {
			tx, err := l.build(payment)
			if err != nil {
				return err
			}
			pending = tx
			if hash, err = tx.HashHex(l.passphrase); err != nil {
				return backoff.Permanent(err)
			}
		}

		log.WithFields(log.Fields{"attempt": attempt, "to": t.To, "amount": payment.Amount}).Info("submitting stellar payment")
		resp, err := l.horizon.SubmitTransaction(pending)
		if err == nil {
			hash = resp.Hash
			inDoubt = false
			return nil
		}
		return l.classifySubmit(err, &pending, &inDoubt)
	})
	if err != nil {
		if inDoubt {
			return "", &ledger.BroadcastError{Hash: hash, Err: err}
		}
		return "", fmt.Errorf("stellar payment to %s: %w", t.To, err)
	}
	log.WithFields(log.Fields{"hash": hash, "to": t.To}).Info("stellar payment successful")
	return hash, nil
}

func (l *Ledger) build(payment *txnbuild.Payment) (*txnbuild.Transaction, error) {
	account, err := l.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: l.signer.Address()})
	if err != nil {
		return nil, fmt.Errorf("load operator account: %w", horizonErr(err))
	}
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeoutSeconds)},
		Operations:           []txnbuild.Operation{payment},
	})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build transaction: %w", err))
	}
	tx, err = tx.Sign(l.passphrase, l.signer)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("sign transaction: %w", err))
	}
	return tx, nil
}

// classifySubmit decides what the next attempt submits. A Horizon timeout
// keeps the signed envelope; other transient failures discard it; a
// rejection is final.
func (l *Ledger) classifySubmit(err error, pending **txnbuild.Transaction, inDoubt *bool) error {
	status := 0
	if herr := horizonclient.GetError(err); herr != nil {
		status = herr.Problem.Status
	}
	var netErr net.Error
	timedOut := status == http.StatusGatewayTimeout || (errors.As(err, &netErr) && netErr.Timeout())
	switch {
	case timedOut:
		*inDoubt = true
		return horizonErr(err)
	case *inDoubt:
		// An earlier submission may have landed; leave the outcome to the operator.
		return backoff.Permanent(horizonErr(err))
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
		return backoff.Permanent(horizonErr(err))
	default:
		*pending = nil
		return horizonErr(err)
	}
}

// statusError exposes the Horizon status code to ledger.IsTransient.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string {
	return e.err.Error()
}

func (e *statusError) Unwrap() error {
	return e.err
}

func (e *statusError) StatusCode() int {
	return e.status
}

func horizonErr(err error) error {
	herr := horizonclient.GetError(err)
	if herr == nil {
		return err
	}
	detail := herr.Problem.Title
	if codes, cerr := herr.ResultCodes(); cerr == nil && codes != nil {
		detail = fmt.Sprintf("%s %s %v", detail, codes.TransactionCode, codes.OperationCodes)
	}
	return &statusError{status: herr.Problem.Status, err: fmt.Errorf("horizon: %s: %w", detail, err)}
}
