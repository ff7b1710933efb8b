// Package server exposes the checkout service over HTTP: the Solana Pay
// transaction request endpoints wallets call back into, and the checkout
// session endpoints the point-of-sale UI drives.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/monstre-sol/monstrepay/builder"
)

// Config holds the collaborators for a Server.
type Config struct {
	Builder  *builder.Builder
	Sessions *SessionManager
	// Label and IconURL are the payment request metadata wallets display.
	Label   string
	IconURL string
	// BaseURL is the externally reachable address embedded in QR codes.
	BaseURL string
	Logger  *zap.Logger
}

// Server is the HTTP layer. Handlers are stateless; concurrent requests
// share nothing but the injected collaborators.
type Server struct {
	builder  *builder.Builder
	sessions *SessionManager
	label    string
	iconURL  string
	baseURL  string
	log      *zap.Logger
	engine   *gin.Engine
}

// New creates a Server and wires its routes.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		builder:  cfg.Builder,
		sessions: cfg.Sessions,
		label:    cfg.Label,
		iconURL:  cfg.IconURL,
		baseURL:  cfg.BaseURL,
		log:      log,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Wallet callbacks. GET returns payment request metadata on both.
	r.GET("/api/transaction", s.handleMetadata)
	r.POST("/api/transaction", s.handleTransaction)
	r.GET("/api/swap", s.handleMetadata)
	r.POST("/api/swap", s.handleSwap)

	// Checkout sessions for the point-of-sale UI.
	r.POST("/api/checkout", s.handleCheckoutCreate)
	r.GET("/api/checkout/:id", s.handleCheckoutStatus)
	r.GET("/api/checkout/:id/qr", s.handleCheckoutQR)
	r.DELETE("/api/checkout/:id", s.handleCheckoutCancel)

	s.engine = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}
