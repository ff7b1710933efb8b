package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/monstre-sol/monstrepay/builder"
	"github.com/monstre-sol/monstrepay/jupiter"
	"github.com/monstre-sol/monstrepay/pkg/app"
	"github.com/monstre-sol/monstrepay/pkg/config"
	"github.com/monstre-sol/monstrepay/poller"
	"github.com/monstre-sol/monstrepay/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config parsing failed: %v", err)
	}
	lg := app.Logger(cfg.App.LogLevel)
	defer func() { _ = lg.Sync() }()

	shopKey, err := cfg.ShopKey()
	if err != nil {
		lg.Fatal("configuration error", zap.Error(err))
	}
	mint, err := solana.PublicKeyFromBase58(cfg.Chain.USDCMint)
	if err != nil {
		lg.Fatal("invalid USDC_MINT", zap.Error(err))
	}
	inputMint, err := solana.PublicKeyFromBase58(cfg.Jupiter.InputMint)
	if err != nil {
		lg.Fatal("invalid SWAP_INPUT_MINT", zap.Error(err))
	}

	rpcClient := rpc.New(cfg.Chain.RPCEndpoint)

	b := builder.New(builder.Config{
		Chain: builder.NewRPCChainReader(rpcClient),
		Quoter: jupiter.NewClient(jupiter.Config{
			BaseURL:     cfg.Jupiter.BaseURL,
			InputMint:   inputMint,
			SlippageBps: cfg.Jupiter.SlippageBps,
		}),
		ShopKey: shopKey,
		Mint:    mint,
		Logger:  lg,
	})

	sessions := server.NewSessionManager(server.SessionConfig{
		Ledger:    poller.NewRPCLedger(rpcClient),
		Recipient: shopKey.PublicKey(),
		Mint:      mint,
		Interval:  time.Duration(cfg.Chain.PollIntervalMs) * time.Millisecond,
		Logger:    lg,
	})

	srv := server.New(server.Config{
		Builder:  b,
		Sessions: sessions,
		Label:    cfg.App.Label,
		IconURL:  cfg.App.IconURL,
		BaseURL:  cfg.API.BaseURL,
		Logger:   lg,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		lg.Info("server starting",
			zap.Int("port", cfg.API.Port),
			zap.String("shop", shopKey.PublicKey().String()),
			zap.String("mint", mint.String()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	sessions.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown failed", zap.Error(err))
	}
}
