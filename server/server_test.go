package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monstre-sol/monstrepay/builder"
	"github.com/monstre-sol/monstrepay/poller"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChain struct {
	blockhash solana.Hash
	decimals  uint8
	err       error
}

func (f *fakeChain) LatestBlockhash(context.Context) (solana.Hash, error) {
	if f.err != nil {
		return solana.Hash{}, f.err
	}
	return f.blockhash, nil
}

func (f *fakeChain) MintDecimals(context.Context, solana.PublicKey) (uint8, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.decimals, nil
}

// scriptedLedger serves a canned payment once armed. Before arming it reports
// nothing found, which keeps checkout sessions pending.
type scriptedLedger struct {
	mu     sync.Mutex
	sig    solana.Signature
	detail *poller.LedgerTransaction
}

func (l *scriptedLedger) arm(detail *poller.LedgerTransaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detail = detail
}

func (l *scriptedLedger) OldestSignatureFor(_ context.Context, _ solana.PublicKey) (solana.Signature, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.detail == nil {
		return solana.Signature{}, false, nil
	}
	return l.sig, true, nil
}

func (l *scriptedLedger) TransactionDetail(_ context.Context, _ solana.Signature) (*poller.LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.detail == nil {
		return nil, errors.New("no detail scripted")
	}
	return l.detail, nil
}

type serverFixture struct {
	server *Server
	shop   solana.PrivateKey
	mint   solana.PublicKey
	ledger *scriptedLedger
}

func newFixture(t *testing.T, chain builder.ChainReader) *serverFixture {
	t.Helper()
	shopKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	mintKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	mint := mintKey.PublicKey()

	ledger := &scriptedLedger{sig: solana.Signature{0xAA}}
	sessions := NewSessionManager(SessionConfig{
		Ledger:    ledger,
		Recipient: shopKey.PublicKey(),
		Mint:      mint,
		Interval:  time.Millisecond,
	})
	t.Cleanup(sessions.Shutdown)

	b := builder.New(builder.Config{
		Chain:   chain,
		ShopKey: shopKey,
		Mint:    mint,
	})

	srv := New(Config{
		Builder:  b,
		Sessions: sessions,
		Label:    "Monstrè Pay",
		IconURL:  "https://shop.example/icon.svg",
		BaseURL:  "https://shop.example",
	})
	return &serverFixture{server: srv, shop: shopKey, mint: mint, ledger: ledger}
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestTransactionEndpointMetadata(t *testing.T) {
	f := newFixture(t, &fakeChain{decimals: 6})

	w := doRequest(t, f.server.Handler(), http.MethodGet, "/api/transaction", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Monstrè Pay", body["label"])
	assert.Equal(t, "https://shop.example/icon.svg", body["icon"])
}

func TestTransactionEndpointInputErrors(t *testing.T) {
	f := newFixture(t, &fakeChain{decimals: 6})
	payer := f.shop.PublicKey().String()
	refKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	ref := refKey.PublicKey().String()

	tests := []struct {
		name    string
		target  string
		body    []byte
		message string
	}{
		{
			name:    "missing amount",
			target:  "/api/transaction?reference=" + ref,
			body:    []byte(`{"account":"` + payer + `"}`),
			message: "No amount provided",
		},
		{
			name:    "empty body means no account",
			target:  "/api/transaction?amount=8.00&reference=" + ref,
			body:    nil,
			message: "No account provided",
		},
		{
			name:    "missing reference",
			target:  "/api/transaction?amount=8.00",
			body:    []byte(`{"account":"` + payer + `"}`),
			message: "No reference provided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, f.server.Handler(), http.MethodPost, tt.target, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, decodeBody(t, w)["error"])
		})
	}
}

func TestTransactionEndpointBuildsTransfer(t *testing.T) {
	f := newFixture(t, &fakeChain{blockhash: solana.Hash{0x42}, decimals: 6})

	payerKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	refKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	target := "/api/transaction?amount=8.00&reference=" + refKey.PublicKey().String()
	body := []byte(`{"account":"` + payerKey.PublicKey().String() + `"}`)

	w := doRequest(t, f.server.Handler(), http.MethodPost, target, body)
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeBody(t, w)
	assert.Equal(t, "Thanks for your order!", out["message"])
	encoded, ok := out["transaction"].(string)
	require.True(t, ok)
	require.NotEmpty(t, encoded)

	tx := decodeTx(t, encoded)
	assert.Equal(t, f.shop.PublicKey(), tx.Message.AccountKeys[0])
}

func TestTransactionEndpointUpstreamFailure(t *testing.T) {
	f := newFixture(t, &fakeChain{err: errors.New("rpc down")})

	payerKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	refKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	target := "/api/transaction?amount=8.00&reference=" + refKey.PublicKey().String()
	body := []byte(`{"account":"` + payerKey.PublicKey().String() + `"}`)

	w := doRequest(t, f.server.Handler(), http.MethodPost, target, body)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error creating transaction", decodeBody(t, w)["error"])
}

func TestTransactionEndpointMethodNotAllowed(t *testing.T) {
	f := newFixture(t, &fakeChain{decimals: 6})

	w := doRequest(t, f.server.Handler(), http.MethodPut, "/api/transaction", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method not allowed", decodeBody(t, w)["error"])
}

func TestCheckoutLifecycle(t *testing.T) {
	f := newFixture(t, &fakeChain{decimals: 6})
	h := f.server.Handler()

	// Create.
	w := doRequest(t, h, http.MethodPost, "/api/checkout", []byte(`{"amount":"8.00"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody(t, w)
	id, ok := created["id"].(string)
	require.True(t, ok)
	reference, ok := created["reference"].(string)
	require.True(t, ok)
	url, ok := created["url"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(url, "solana:"))
	assert.Contains(t, url, reference)

	// Pending until the ledger shows a payment.
	w = doRequest(t, h, http.MethodGet, "/api/checkout/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", decodeBody(t, w)["status"])

	// QR renders a PNG for the same link.
	w = doRequest(t, h, http.MethodGet, "/api/checkout/"+id+"/qr", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))

	// Pay: arm the ledger with a transaction tagged with the session's
	// reference and the session flips to paid.
	ref := solana.MustPublicKeyFromBase58(reference)
	f.ledger.arm(&poller.LedgerTransaction{
		Signature:   solana.Signature{0xAA},
		AccountKeys: []solana.PublicKey{f.shop.PublicKey(), ref},
		Changes: []poller.BalanceChange{{
			Owner:    f.shop.PublicKey(),
			Mint:     f.mint,
			Decimals: 6,
			Delta:    big.NewInt(8_000_000),
		}},
	})

	require.Eventually(t, func() bool {
		w := doRequest(t, h, http.MethodGet, "/api/checkout/"+id, nil)
		return decodeBody(t, w)["status"] == "paid"
	}, time.Second, 5*time.Millisecond)

	w = doRequest(t, h, http.MethodGet, "/api/checkout/"+id, nil)
	paid := decodeBody(t, w)
	assert.Equal(t, "paid", paid["status"])
	assert.NotEmpty(t, paid["signature"])

	// Cancelling a paid checkout keeps its result.
	w = doRequest(t, h, http.MethodDelete, "/api/checkout/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", decodeBody(t, w)["status"])
}

func TestCheckoutCancelStopsPendingSession(t *testing.T) {
	f := newFixture(t, &fakeChain{decimals: 6})
	h := f.server.Handler()

	w := doRequest(t, h, http.MethodPost, "/api/checkout", []byte(`{"amount":"8.00"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody(t, w)["id"].(string)

	w = doRequest(t, h, http.MethodDelete, "/api/checkout/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stopped", decodeBody(t, w)["status"])

	w = doRequest(t, h, http.MethodGet, "/api/checkout/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stopped", decodeBody(t, w)["status"])
}

func TestCheckoutValidationAndNotFound(t *testing.T) {
	f := newFixture(t, &fakeChain{decimals: 6})
	h := f.server.Handler()

	w := doRequest(t, h, http.MethodPost, "/api/checkout", []byte(`{}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No amount provided", decodeBody(t, w)["error"])

	w = doRequest(t, h, http.MethodPost, "/api/checkout", []byte(`{"amount":"-1"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid amount", decodeBody(t, w)["error"])

	for _, target := range []string{
		"/api/checkout/nope",
		"/api/checkout/nope/qr",
	} {
		w = doRequest(t, h, http.MethodGet, target, nil)
		require.Equal(t, http.StatusNotFound, w.Code, target)
	}
	w = doRequest(t, h, http.MethodDelete, "/api/checkout/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, &fakeChain{decimals: 6})

	w := doRequest(t, f.server.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func decodeTx(t *testing.T, encoded string) *solana.Transaction {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	return tx
}
