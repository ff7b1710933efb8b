package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	monstrepay "github.com/monstre-sol/monstrepay"
	"github.com/monstre-sol/monstrepay/builder"
	"github.com/monstre-sol/monstrepay/payrequest"
	"github.com/monstre-sol/monstrepay/pkg/metrics"
)

type transactionBody struct {
	Account string `json:"account"`
}

func (s *Server) handleMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"label": s.label,
		"icon":  s.iconURL,
	})
}

func (s *Server) handleTransaction(c *gin.Context) {
	s.buildTransaction(c, "transfer", s.builder.BuildTransfer)
}

func (s *Server) handleSwap(c *gin.Context) {
	s.buildTransaction(c, "swap", s.builder.BuildSwap)
}

func (s *Server) buildTransaction(
	c *gin.Context,
	mode string,
	build func(context.Context, builder.Request) (*builder.Result, error),
) {
	req := builder.Request{
		Amount:    c.Query("amount"),
		Reference: c.Query("reference"),
	}
	// An absent or unparseable body is handled by the builder's own input
	// validation as a missing account.
	var body transactionBody
	if err := c.ShouldBindJSON(&body); err == nil {
		req.Account = body.Account
	}

	result, err := build(c.Request.Context(), req)
	if err != nil {
		metrics.TransactionBuilds.WithLabelValues(mode, outcomeLabel(err)).Inc()
		s.writeBuildError(c, err)
		return
	}
	metrics.TransactionBuilds.WithLabelValues(mode, "ok").Inc()
	c.JSON(http.StatusOK, result)
}

func outcomeLabel(err error) string {
	var perr *monstrepay.PaymentError
	if errors.As(err, &perr) && perr.Code == monstrepay.ErrCodeInvalidInput {
		return "invalid_input"
	}
	return "error"
}

// writeBuildError maps the error taxonomy onto HTTP. Invalid input surfaces
// with its message; everything else collapses into a uniform 500 body so no
// upstream detail leaks to the wallet.
func (s *Server) writeBuildError(c *gin.Context, err error) {
	var perr *monstrepay.PaymentError
	if errors.As(err, &perr) && perr.Code == monstrepay.ErrCodeInvalidInput {
		c.JSON(http.StatusBadRequest, gin.H{"error": perr.Message})
		return
	}
	s.log.Error("transaction build failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "error creating transaction"})
}

type checkoutBody struct {
	Amount string `json:"amount"`
}

func (s *Server) handleCheckoutCreate(c *gin.Context) {
	var body checkoutBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Amount == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No amount provided"})
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	sess, err := s.sessions.Create(amount)
	if err != nil {
		s.log.Error("failed to create checkout", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout"})
		return
	}

	payURL, err := s.paymentURL(sess)
	if err != nil {
		s.log.Error("failed to encode payment url", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":        sess.ID,
		"reference": sess.Request.Reference.String(),
		"url":       payURL,
	})
}

func (s *Server) handleCheckoutStatus(c *gin.Context) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "checkout not found"})
		return
	}
	status, signature, reason := sess.Status()
	out := gin.H{"status": string(status)}
	switch status {
	case CheckoutPaid:
		out["signature"] = signature.String()
	case CheckoutFailed:
		out["signature"] = signature.String()
		out["reason"] = reason
	}
	c.JSON(http.StatusOK, out)
}

// handleCheckoutQR regenerates the QR deterministically from the session's
// amount and reference; no image is cached.
func (s *Server) handleCheckoutQR(c *gin.Context) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "checkout not found"})
		return
	}
	payURL, err := s.paymentURL(sess)
	if err != nil {
		s.log.Error("failed to encode payment url", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render qr"})
		return
	}
	png, err := payrequest.QR(payURL, payrequest.DefaultQRSize)
	if err != nil {
		s.log.Error("failed to render qr", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render qr"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) handleCheckoutCancel(c *gin.Context) {
	if !s.sessions.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "checkout not found"})
		return
	}
	// Cancelling a terminal session keeps its result.
	sess, _ := s.sessions.Get(c.Param("id"))
	status, _, _ := sess.Status()
	c.JSON(http.StatusOK, gin.H{"status": string(status)})
}

func (s *Server) paymentURL(sess *Session) (string, error) {
	link, err := payrequest.TransactionRequestURL(s.baseURL, sess.Request.Amount, sess.Request.Reference)
	if err != nil {
		return "", err
	}
	return payrequest.EncodeURL(link), nil
}
