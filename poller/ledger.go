package poller

import (
	"context"
	"fmt"
	"math/big"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// BalanceChange is the movement of one token balance within a confirmed
// transaction, in base units. Positive deltas are received funds.
type BalanceChange struct {
	Owner    solana.PublicKey
	Mint     solana.PublicKey
	Decimals uint8
	Delta    *big.Int
}

// LedgerTransaction is the slice of a confirmed transaction that validation
// needs.
type LedgerTransaction struct {
	Signature   solana.Signature
	Failed      bool
	AccountKeys []solana.PublicKey
	Changes     []BalanceChange
}

// Ledger exposes the two read operations a confirmation check performs. The
// RPC implementation lives below; tests supply fakes.
type Ledger interface {
	// OldestSignatureFor returns the oldest confirmed signature referencing
	// key, with found=false when none exists yet. "Not found" is the
	// expected state while the buyer has not broadcast, not an error.
	OldestSignatureFor(ctx context.Context, key solana.PublicKey) (sig solana.Signature, found bool, err error)
	// TransactionDetail fetches a confirmed transaction for validation.
	TransactionDetail(ctx context.Context, sig solana.Signature) (*LedgerTransaction, error)
}

type rpcLedger struct {
	client *rpc.Client
}

// NewRPCLedger wraps a Solana RPC client as a Ledger.
func NewRPCLedger(client *rpc.Client) Ledger {
	return &rpcLedger{client: client}
}

func (l *rpcLedger) OldestSignatureFor(ctx context.Context, key solana.PublicKey) (solana.Signature, bool, error) {
	sigs, err := l.client.GetSignaturesForAddressWithOpts(ctx, key, &rpc.GetSignaturesForAddressOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, false, fmt.Errorf("failed to query signatures: %w", err)
	}
	if len(sigs) == 0 {
		return solana.Signature{}, false, nil
	}
	// Results arrive newest first; the oldest one is the original payment.
	return sigs[len(sigs)-1].Signature, true, nil
}

func (l *rpcLedger) TransactionDetail(ctx context.Context, sig solana.Signature) (*LedgerTransaction, error) {
	maxVersion := uint64(0)
	out, err := l.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		Encoding:                       solana.EncodingBase64,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", sig, err)
	}
	if out == nil || out.Meta == nil || out.Transaction == nil {
		return nil, fmt.Errorf("transaction %s is not available yet", sig)
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", sig, err)
	}

	changes, err := balanceChanges(out.Meta)
	if err != nil {
		return nil, err
	}
	return &LedgerTransaction{
		Signature:   sig,
		Failed:      out.Meta.Err != nil,
		AccountKeys: tx.Message.AccountKeys,
		Changes:     changes,
	}, nil
}

type tokenPosition struct {
	owner    solana.PublicKey
	mint     solana.PublicKey
	decimals uint8
	pre      *big.Int
	post     *big.Int
}

// balanceChanges diffs pre and post token balances per account index.
// Accounts absent on one side (created or emptied by the transaction) count
// as zero on that side.
func balanceChanges(meta *rpc.TransactionMeta) ([]BalanceChange, error) {
	positions := map[uint16]*tokenPosition{}
	position := func(tb rpc.TokenBalance) *tokenPosition {
		pos, ok := positions[tb.AccountIndex]
		if !ok {
			pos = &tokenPosition{mint: tb.Mint, pre: new(big.Int), post: new(big.Int)}
			if tb.Owner != nil {
				pos.owner = *tb.Owner
			}
			if tb.UiTokenAmount != nil {
				pos.decimals = tb.UiTokenAmount.Decimals
			}
			positions[tb.AccountIndex] = pos
		}
		return pos
	}

	for _, tb := range meta.PreTokenBalances {
		amount, ok := new(big.Int).SetString(tb.UiTokenAmount.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("malformed token amount %q", tb.UiTokenAmount.Amount)
		}
		position(tb).pre = amount
	}
	for _, tb := range meta.PostTokenBalances {
		amount, ok := new(big.Int).SetString(tb.UiTokenAmount.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("malformed token amount %q", tb.UiTokenAmount.Amount)
		}
		position(tb).post = amount
	}

	changes := make([]BalanceChange, 0, len(positions))
	for _, pos := range positions {
		changes = append(changes, BalanceChange{
			Owner:    pos.owner,
			Mint:     pos.mint,
			Decimals: pos.decimals,
			Delta:    new(big.Int).Sub(pos.post, pos.pre),
		})
	}
	return changes, nil
}
