// Package builder constructs partially signed SPL token transfers for the
// checkout flow. The shop signs as fee payer; the returned transaction is
// missing exactly one signature, the payer's, which the scanning wallet
// supplies before broadcasting.
package builder

import (
	"context"
	"encoding/base64"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	monstrepay "github.com/monstre-sol/monstrepay"
)

const defaultMessage = "Thanks for your order!"

// Request is the wallet callback input shared by both builder modes.
type Request struct {
	// Account is the payer's public key, base58. Arrives in the POST body.
	Account string
	// Amount is the decimal amount of the configured token, e.g. "8.00".
	Amount string
	// Reference is the checkout's correlation tag public key, base58.
	Reference string
}

// Result carries the partially signed transaction back to the wallet.
type Result struct {
	Transaction string `json:"transaction"`
	Message     string `json:"message"`
}

// Config holds the collaborators for a Builder.
type Config struct {
	// Chain reads blockhashes and mint metadata. Required.
	Chain ChainReader
	// Quoter obtains swap quotes and assembled swap transactions. Required
	// only for BuildSwap.
	Quoter SwapQuoter
	// ShopKey signs as fee payer and receives the payment.
	ShopKey solana.PrivateKey
	// Mint of the token the shop accepts.
	Mint solana.PublicKey
	// Message returned alongside the transaction (optional).
	Message string
	Logger  *zap.Logger
}

// Builder builds transactions for wallet callbacks. Every call is
// independent; nothing is persisted between calls.
type Builder struct {
	chain   ChainReader
	quoter  SwapQuoter
	shopKey solana.PrivateKey
	mint    solana.PublicKey
	message string
	log     *zap.Logger
}

// New creates a Builder from its config.
func New(cfg Config) *Builder {
	message := cfg.Message
	if message == "" {
		message = defaultMessage
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{
		chain:   cfg.Chain,
		quoter:  cfg.Quoter,
		shopKey: cfg.ShopKey,
		mint:    cfg.Mint,
		message: message,
		log:     log,
	}
}

type parsedRequest struct {
	payer     solana.PublicKey
	amount    decimal.Decimal
	reference solana.PublicKey
}

// parseRequest validates all inputs before any network call.
func parseRequest(req Request) (parsedRequest, error) {
	var p parsedRequest

	if req.Amount == "" {
		return p, monstrepay.Invalidf("No amount provided")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		return p, monstrepay.Invalidf("invalid amount %q", req.Amount)
	}

	if req.Account == "" {
		return p, monstrepay.Invalidf("No account provided")
	}
	payer, err := solana.PublicKeyFromBase58(req.Account)
	if err != nil {
		return p, monstrepay.Invalidf("invalid account %q", req.Account)
	}

	if req.Reference == "" {
		return p, monstrepay.Invalidf("No reference provided")
	}
	reference, err := solana.PublicKeyFromBase58(req.Reference)
	if err != nil {
		return p, monstrepay.Invalidf("invalid reference %q", req.Reference)
	}

	p.payer = payer
	p.amount = amount
	p.reference = reference
	return p, nil
}

// BuildTransfer builds the direct transfer: amount base units of the
// configured mint from the payer's token account to the shop's, tagged with
// the reference, fee paid and partially signed by the shop.
func (b *Builder) BuildTransfer(ctx context.Context, req Request) (*Result, error) {
	p, err := parseRequest(req)
	if err != nil {
		return nil, err
	}

	shop := b.shopKey.PublicKey()

	payerATA, _, err := solana.FindAssociatedTokenAddress(p.payer, b.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive payer token account: %w", err)
	}
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

	blockhash, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, monstrepay.Upstreamf("failed to get latest blockhash: %v", err)
	}

	transferIx := token.NewTransferCheckedInstructionBuilder().
		SetAmount(baseUnits).
		SetDecimals(decimals).
		SetSourceAccount(payerATA).
		SetMintAccount(b.mint).
		SetDestinationAccount(shopATA).
		SetOwnerAccount(p.payer)

	// The reference rides along as a non-signing, read-only key so the
	// confirmation poller can find the transaction by address later.
	transferIx.Accounts = append(transferIx.Accounts,
		solana.NewAccountMeta(p.reference, false, false))

	ix, err := transferIx.ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(ix).
		SetRecentBlockHash(blockhash).
		SetFeePayer(shop).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	if err := b.partialSign(tx); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	encoded, err := encodeTransaction(tx)
	if err != nil {
		return nil, err
	}

	b.log.Debug("built transfer",
		zap.String("payer", p.payer.String()),
		zap.String("reference", p.reference.String()),
		zap.Uint64("base_units", baseUnits))

	return &Result{Transaction: encoded, Message: b.message}, nil
}

// partialSign applies the shop's signature, leaving the payer's slot empty.
func (b *Builder) partialSign(tx *solana.Transaction) error {
	shop := b.shopKey.PublicKey()
	key := b.shopKey
	_, err := tx.PartialSign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(shop) {
			return &key
		}
		return nil
	})
	return err
}

func encodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// toBaseUnits scales a human amount by the mint's decimals. Sub-base-unit
// amounts are rejected rather than truncated.
func toBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	scaled := amount.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return 0, monstrepay.Invalidf("amount %s has more than %d decimal places", amount, decimals)
	}
	units := scaled.BigInt()
	if !units.IsUint64() {
		return 0, monstrepay.Invalidf("amount %s is out of range", amount)
	}
	return units.Uint64(), nil
}
