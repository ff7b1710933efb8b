// Package payrequest encodes checkout attempts as Solana Pay transaction
// request URLs and renders them as QR codes for a scanning wallet.
package payrequest

import (
	"fmt"
	"net/url"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

// URLScheme is the Solana Pay URI scheme.
const URLScheme = "solana:"

// DefaultQRSize is the pixel width of rendered QR codes.
const DefaultQRSize = 512

// TransactionRequestURL builds the wallet callback link for one checkout
// attempt. The link is deterministic for a given (amount, reference) pair.
func TransactionRequestURL(base string, amount decimal.Decimal, reference solana.PublicKey) (*url.URL, error) {
	link, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	link = link.JoinPath("api", "transaction")

	q := url.Values{}
	q.Set("amount", amount.String())
	q.Set("reference", reference.String())
	link.RawQuery = q.Encode()
	return link, nil
}

// EncodeURL wraps a transaction request link in the solana: scheme. Links
// carrying a query string are percent-encoded in full so the wallet treats
// the whole link, query included, as the callback address.
func EncodeURL(link *url.URL) string {
	s := link.String()
	if link.RawQuery == "" {
		return URLScheme + s
	}
	return URLScheme + encodeURIComponent(s)
}

// encodeURIComponent mirrors the JavaScript function of the same name
// closely enough for wallets: QueryEscape, with spaces as %20.
func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// QR renders a payment URL as a PNG. Size 0 uses DefaultQRSize.
func QR(paymentURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(paymentURL, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	return png, nil
}
