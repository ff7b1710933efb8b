package builder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	monstrepay "github.com/monstre-sol/monstrepay"
)

// SwapQuoter obtains a price quote and an assembled swap transaction from an
// external aggregator. Both calls are sequential and unauthenticated; the
// quote body is opaque to the builder and passed through unchanged.
type SwapQuoter interface {
	// Quote requests an exact-output quote for amount base units of
	// outputMint.
	Quote(ctx context.Context, outputMint solana.PublicKey, amount uint64) (json.RawMessage, error)
	// SwapTransaction submits the quote plus participant identities and
	// returns the assembled base64-encoded legacy transaction.
	SwapTransaction(ctx context.Context, quote json.RawMessage, user, destination solana.PublicKey) (string, error)
}

// BuildSwap builds the quote-mediated transfer: the aggregator assembles a
// swap of the configured input token into exactly the requested amount of
// the shop's mint, delivered straight to the shop's token account. The
// assembled transaction is rebuilt with the shop as fee payer and partially
// signed, so the buyer's signature is the only one missing.
func (b *Builder) BuildSwap(ctx context.Context, req Request) (*Result, error) {
	p, err := parseRequest(req)
	if err != nil {
		return nil, err
	}
	if b.quoter == nil {
		return nil, monstrepay.NewPaymentError(monstrepay.ErrCodeConfiguration, "no swap aggregator configured")
	}

	shop := b.shopKey.PublicKey()
	shopATA, _, err := solana.FindAssociatedTokenAddress(shop, b.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shop token account: %w", err)
	}

	decimals, err := b.chain.MintDecimals(ctx, b.mint)
	if err != nil {
		return nil, monstrepay.Upstreamf("failed to read mint: %v", err)
	}
	baseUnits, err := toBaseUnits(p.amount, decimals)
	if err != nil {
		return nil, err
	}

	quote, err := b.quoter.Quote(ctx, b.mint, baseUnits)
	if err != nil {
		return nil, monstrepay.Upstreamf("quote request failed: %v", err)
	}
	rawTx, err := b.quoter.SwapTransaction(ctx, quote, p.payer, shopATA)
	if err != nil {
		return nil, monstrepay.Upstreamf("swap request failed: %v", err)
	}

	swapTx, err := decodeSwapTransaction(rawTx)
	if err != nil {
		return nil, monstrepay.Upstreamf("%v", err)
	}

	// The aggregator assembles the transaction with the buyer as fee payer.
	// The shop covers fees instead, so recompile with the shop first in the
	// signer list, keeping the quote's blockhash.
	tx, err := rebuildWithFeePayer(swapTx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild swap transaction: %w", err)
	}

	if err := b.partialSign(tx); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	encoded, err := encodeTransaction(tx)
	if err != nil {
		return nil, err
	}

	b.log.Debug("built swap",
		zap.String("payer", p.payer.String()),
		zap.Uint64("base_units", baseUnits))

	return &Result{Transaction: encoded, Message: b.message}, nil
}

func decodeSwapTransaction(b64 string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode swap transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize swap transaction: %w", err)
	}
	return tx, nil
}

// rebuildWithFeePayer decompiles a legacy transaction's instructions and
// recompiles them with a new fee payer, keeping the original blockhash.
func rebuildWithFeePayer(tx *solana.Transaction, feePayer solana.PublicKey) (*solana.Transaction, error) {
	instructions, err := decompileInstructions(&tx.Message)
	if err != nil {
		return nil, err
	}

	builder := solana.NewTransactionBuilder().
		SetRecentBlockHash(tx.Message.RecentBlockhash).
		SetFeePayer(feePayer)
	for _, ix := range instructions {
		builder = builder.AddInstruction(ix)
	}
	return builder.Build()
}

// decompileInstructions resolves a compiled message's instructions back into
// instruction values with full account metas, preserving signer and
// writability flags.
func decompileInstructions(msg *solana.Message) ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, len(msg.Instructions))
	for _, ci := range msg.Instructions {
		programID, err := msg.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return nil, err
		}
		metas := make(solana.AccountMetaSlice, 0, len(ci.Accounts))
		for _, idx := range ci.Accounts {
			if int(idx) >= len(msg.AccountKeys) {
				return nil, fmt.Errorf("account index %d out of range", idx)
			}
			key := msg.AccountKeys[idx]
			isWritable, err := msg.IsWritable(key)
			if err != nil {
				return nil, err
			}
			metas = append(metas, &solana.AccountMeta{
				PublicKey:  key,
				IsSigner:   msg.IsSigner(key),
				IsWritable: isWritable,
			})
		}
		out = append(out, solana.NewInstruction(programID, metas, ci.Data))
	}
	return out, nil
}
