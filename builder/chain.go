package builder

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// ChainReader is the slice of ledger state the builder needs: a recent
// blockhash to bound transaction validity, and the mint's decimal count for
// scaling amounts.
type ChainReader interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
}

type rpcChainReader struct {
	client *rpc.Client
}

// NewRPCChainReader wraps a Solana RPC client as a ChainReader.
func NewRPCChainReader(client *rpc.Client) ChainReader {
	return &rpcChainReader{client: client}
}

func (r *rpcChainReader) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := r.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

func (r *rpcChainReader) MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	account, err := r.client.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to get mint account: %w", err)
	}
	if account == nil || account.Value == nil {
		return 0, fmt.Errorf("mint account %s does not exist", mint)
	}

	var mintData token.Mint
	if err := bin.NewBinDecoder(account.Value.Data.GetBinary()).Decode(&mintData); err != nil {
		return 0, fmt.Errorf("failed to decode mint data: %w", err)
	}
	return mintData.Decimals, nil
}
