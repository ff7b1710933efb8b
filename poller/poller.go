// Package poller watches the ledger for a transaction tagged with a
// checkout's correlation reference and validates it against the expected
// recipient, amount, and mint before declaring the payment confirmed.
package poller

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/monstre-sol/monstrepay/pkg/metrics"
)

// Status tags a ConfirmationResult.
type Status int

const (
	// StatusNotYetFound means no transaction references the tag yet.
	// Transient; the poller keeps polling.
	StatusNotYetFound Status = iota
	// StatusFoundAndValid means the tagged transaction pays at least the
	// expected amount of the expected mint to the expected recipient.
	// Terminal.
	StatusFoundAndValid
	// StatusFoundButInvalid means a tagged transaction exists but fails
	// validation. Terminal: the poller does not revisit that signature.
	StatusFoundButInvalid
)

func (s Status) String() string {
	switch s {
	case StatusNotYetFound:
		return "not_yet_found"
	case StatusFoundAndValid:
		return "found_and_valid"
	case StatusFoundButInvalid:
		return "found_but_invalid"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ConfirmationResult is the tagged outcome of a single ledger check.
type ConfirmationResult struct {
	Status    Status
	Signature solana.Signature // set unless Status is StatusNotYetFound
	Reason    string           // set when Status is StatusFoundButInvalid
}

// Expectation pins down the transfer the poller will accept.
type Expectation struct {
	Recipient solana.PublicKey
	Mint      solana.PublicKey
	// Amount is the minimum accepted payment, in human units of the mint.
	Amount    decimal.Decimal
	Reference solana.PublicKey
}

// DefaultInterval is the polling cadence. A tunable, not correctness
// critical.
const DefaultInterval = 500 * time.Millisecond

// Config holds the collaborators for a Poller.
type Config struct {
	Ledger   Ledger
	Expect   Expectation
	Interval time.Duration
	Logger   *zap.Logger
}

// Poller checks the ledger for one checkout attempt. It holds no state of
// its own: Check is pure with respect to the ledger, and Run loops Check
// until a terminal result.
type Poller struct {
	ledger   Ledger
	expect   Expectation
	interval time.Duration
	log      *zap.Logger
}

// New creates a Poller from its config.
func New(cfg Config) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		ledger:   cfg.Ledger,
		expect:   cfg.Expect,
		interval: interval,
		log:      log,
	}
}

// Check performs one ledger query and classifies the outcome. "Not found" is
// a result, not an error; errors are reserved for failed RPC calls.
func (p *Poller) Check(ctx context.Context) (ConfirmationResult, error) {
	sig, found, err := p.ledger.OldestSignatureFor(ctx, p.expect.Reference)
	if err != nil {
		return ConfirmationResult{}, err
	}
	if !found {
		return ConfirmationResult{Status: StatusNotYetFound}, nil
	}

	detail, err := p.ledger.TransactionDetail(ctx, sig)
	if err != nil {
		return ConfirmationResult{}, err
	}
	if reason := p.validate(detail); reason != "" {
		return ConfirmationResult{Status: StatusFoundButInvalid, Signature: sig, Reason: reason}, nil
	}
	return ConfirmationResult{Status: StatusFoundAndValid, Signature: sig}, nil
}

func (p *Poller) validate(tx *LedgerTransaction) string {
	if tx.Failed {
		return "transaction failed on chain"
	}
	if !referencesKey(tx.AccountKeys, p.expect.Reference) {
		return "transaction does not reference the payment tag"
	}

	received := decimal.Zero
	for _, ch := range tx.Changes {
		if ch.Owner.Equals(p.expect.Recipient) && ch.Mint.Equals(p.expect.Mint) {
			received = received.Add(decimal.NewFromBigInt(ch.Delta, -int32(ch.Decimals)))
		}
	}
	if received.Sign() <= 0 {
		return "recipient received none of the expected token"
	}
	if received.Cmp(p.expect.Amount) < 0 {
		return fmt.Sprintf("recipient received %s, expected at least %s", received, p.expect.Amount)
	}
	return ""
}

func referencesKey(keys []solana.PublicKey, key solana.PublicKey) bool {
	for _, k := range keys {
		if k.Equals(key) {
			return true
		}
	}
	return false
}

// Run polls on the configured cadence until the result is terminal or ctx is
// cancelled. Ticks never overlap: each check runs to completion before the
// next is scheduled, so a slow RPC round trip stretches the cadence instead
// of stacking requests. Failed ledger calls are logged and treated like "not
// found yet". There is no backoff, retry cap, or timeout; cancellation is
// the caller's job.
func (p *Poller) Run(ctx context.Context) (ConfirmationResult, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ConfirmationResult{}, ctx.Err()
		case <-ticker.C:
			metrics.PollTicks.Inc()
			res, err := p.Check(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ConfirmationResult{}, ctx.Err()
				}
				p.log.Warn("confirmation check failed", zap.Error(err))
				continue
			}

			switch res.Status {
			case StatusNotYetFound:
				continue
			case StatusFoundButInvalid:
				p.log.Warn("payment found but invalid",
					zap.String("signature", res.Signature.String()),
					zap.String("reason", res.Reason))
				metrics.Confirmations.WithLabelValues("invalid").Inc()
				return res, nil
			case StatusFoundAndValid:
				p.log.Info("payment confirmed",
					zap.String("signature", res.Signature.String()))
				metrics.Confirmations.WithLabelValues("valid").Inc()
				return res, nil
			}
		}
	}
}
