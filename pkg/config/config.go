package config

import (
	"github.com/caarlos0/env/v6"
	solana "github.com/gagliardetto/solana-go"

	monstrepay "github.com/monstre-sol/monstrepay"
)

// Config carries every knob the service reads from the environment. One
// instance is loaded at startup and injected into each component; nothing
// reads the environment after that.
type Config struct {
	API struct {
		Port int `env:"PORT" envDefault:"3000"`
		// BaseURL is the externally reachable address embedded in the
		// payment-request QR code. Wallets call back to it.
		BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"`
	}
	App struct {
		LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
		Label    string `env:"SHOP_LABEL" envDefault:"Monstrè Pay"`
		IconURL  string `env:"SHOP_ICON_URL" envDefault:"https://shdw-drive.genesysgo.net/HcnRQ2WJHfJzSgPrs4pPtEkiQjYTu1Bf6DmMns1yEWr8/monstre%20logo.png"`
	}
	Chain struct {
		RPCEndpoint string `env:"RPC_ENDPOINT" envDefault:"https://api.devnet.solana.com"`
		USDCMint    string `env:"USDC_MINT" envDefault:"F3hocsFVHrdTBG2yEHwnJHAJo4rZfnSwPg8d5nVMNKYE"`
		// ShopPrivateKey is the base58-encoded signing key of the shop
		// wallet. Required: the shop partial-signs every transfer as fee
		// payer.
		ShopPrivateKey string `env:"SHOP_PRIVATE_KEY"`
		PollIntervalMs int    `env:"POLL_INTERVAL_MS" envDefault:"500"`
	}
	Jupiter struct {
		BaseURL string `env:"JUPITER_BASE_URL" envDefault:"https://quote-api.jup.ag/v6"`
		// InputMint is the token the buyer spends in swap-mediated
		// checkouts; the aggregator converts it into USDC for the shop.
		InputMint   string `env:"SWAP_INPUT_MINT" envDefault:"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"`
		SlippageBps int    `env:"SWAP_SLIPPAGE_BPS" envDefault:"50"`
	}
}

// Load parses the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ShopKey decodes the shop signing key. A missing or malformed key is a
// configuration error and must be reported before any transaction work
// begins.
func (c Config) ShopKey() (solana.PrivateKey, error) {
	if c.Chain.ShopPrivateKey == "" {
		return nil, monstrepay.NewPaymentError(monstrepay.ErrCodeConfiguration, "SHOP_PRIVATE_KEY is not set")
	}
	key, err := solana.PrivateKeyFromBase58(c.Chain.ShopPrivateKey)
	if err != nil {
		return nil, monstrepay.NewPaymentError(monstrepay.ErrCodeConfiguration, "SHOP_PRIVATE_KEY is not a valid base58 key")
	}
	return key, nil
}
