package payrequest

import (
	"bytes"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testReference = solana.MustPublicKeyFromBase58("7sMSXETA5q7V8arZAMZY66RSQC2mAoSfb2nWaBJJXbeZ")

func TestTransactionRequestURL(t *testing.T) {
	amount := decimal.RequireFromString("8.00")

	link, err := TransactionRequestURL("http://localhost:3000", amount, testReference)
	require.NoError(t, err)

	assert.Equal(t, "/api/transaction", link.Path)
	q := link.Query()
	assert.Equal(t, "8", q.Get("amount"))
	assert.Equal(t, testReference.String(), q.Get("reference"))
}

func TestTransactionRequestURLRejectsBadBase(t *testing.T) {
	_, err := TransactionRequestURL("://nope", decimal.New(1, 0), testReference)
	require.Error(t, err)
}

func TestEncodeURL(t *testing.T) {
	amount := decimal.RequireFromString("8.00")
	link, err := TransactionRequestURL("https://shop.example", amount, testReference)
	require.NoError(t, err)

	encoded := EncodeURL(link)

	// Links with a query string are percent-encoded in full behind the
	// solana: scheme.
	assert.True(t, len(encoded) > len(URLScheme))
	assert.Equal(t, URLScheme, encoded[:len(URLScheme)])
	assert.Contains(t, encoded, "https%3A%2F%2Fshop.example%2Fapi%2Ftransaction%3F")
	assert.Contains(t, encoded, testReference.String())
	assert.NotContains(t, encoded, "+")
}

func TestEncodeURLDeterministic(t *testing.T) {
	amount := decimal.RequireFromString("12.50")
	link1, err := TransactionRequestURL("https://shop.example", amount, testReference)
	require.NoError(t, err)
	link2, err := TransactionRequestURL("https://shop.example", amount, testReference)
	require.NoError(t, err)

	assert.Equal(t, EncodeURL(link1), EncodeURL(link2))
}

func TestQR(t *testing.T) {
	png, err := QR("solana:https%3A%2F%2Fshop.example", DefaultQRSize)
	require.NoError(t, err)

	// PNG magic bytes.
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))
}
