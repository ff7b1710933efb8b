// Package jupiter is a thin client for the Jupiter v6 quote API, used for
// swap-mediated checkouts: the buyer spends one token and the shop receives
// exactly the requested amount of another.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	solana "github.com/gagliardetto/solana-go"
)

// DefaultBaseURL is the public Jupiter v6 endpoint.
const DefaultBaseURL = "https://quote-api.jup.ag/v6"

const defaultSlippageBps = 50

// Config holds client settings.
type Config struct {
	// BaseURL of the aggregator API. Defaults to DefaultBaseURL; tests point
	// it at a local server.
	BaseURL string
	// InputMint is the token the buyer spends.
	InputMint solana.PublicKey
	// SlippageBps bounds the quote's price movement. Defaults to 50.
	SlippageBps int
	HTTPClient  *http.Client
}

// Client talks to the aggregator. No retries: a failed call surfaces to the
// wallet, which re-invokes the endpoint.
type Client struct {
	baseURL     string
	inputMint   solana.PublicKey
	slippageBps int
	httpClient  *http.Client
}

// NewClient creates a Client from its config.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	slippage := cfg.SlippageBps
	if slippage <= 0 {
		slippage = defaultSlippageBps
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:     baseURL,
		inputMint:   cfg.InputMint,
		slippageBps: slippage,
		httpClient:  httpClient,
	}
}

// Quote requests an ExactOut quote converting the configured input mint into
// amount base units of outputMint. The raw quote body is returned unparsed;
// it is handed back to SwapTransaction unchanged.
func (c *Client) Quote(ctx context.Context, outputMint solana.PublicKey, amount uint64) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("inputMint", c.inputMint.String())
	q.Set("outputMint", outputMint.String())
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("swapMode", "ExactOut")
	q.Set("slippageBps", strconv.Itoa(c.slippageBps))
	q.Set("asLegacyTransaction", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote request failed with status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}
	return json.RawMessage(body), nil
}

type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	DestinationTokenAccount string          `json:"destinationTokenAccount"`
	AsLegacyTransaction     bool            `json:"asLegacyTransaction"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// SwapTransaction submits the quote plus participant identities and returns
// the assembled base64 legacy transaction.
func (c *Client) SwapTransaction(ctx context.Context, quote json.RawMessage, user, destination solana.PublicKey) (string, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:           quote,
		UserPublicKey:           user.String(),
		DestinationTokenAccount: destination.String(),
		AsLegacyTransaction:     true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("swap request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swap request failed with status %d", resp.StatusCode)
	}
	var out swapResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode swap response: %w", err)
	}
	if out.SwapTransaction == "" {
		return "", fmt.Errorf("swap response is missing the transaction")
	}
	return out.SwapTransaction, nil
}
