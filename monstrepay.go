// Package monstrepay contains the shared domain types for the Monstrè Pay
// point-of-sale checkout service: a merchant enters an amount, the service
// renders a Solana Pay QR code, a scanning wallet calls back for a partially
// signed USDC transfer, and a confirmation poller watches the ledger for the
// countersigned payment.
package monstrepay

import (
	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// PaymentRequest describes one checkout attempt. It is immutable once the QR
// code has been rendered and is discarded after confirmation or abandonment.
type PaymentRequest struct {
	// Amount in human units of the configured token (e.g. "8.00" USDC).
	Amount decimal.Decimal
	// Reference is a freshly generated public key used solely as a
	// correlation tag. It never signs anything; it rides along in the
	// transfer instruction so the poller can find the transaction later.
	Reference solana.PublicKey
	// Recipient is the shop wallet expected to receive the payment.
	Recipient solana.PublicKey
	// Mint of the token being transferred.
	Mint solana.PublicKey
}

// NewReference generates a fresh correlation tag. Each checkout attempt gets
// its own key so unrelated transfers can never cross-match.
func NewReference() (solana.PublicKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}
