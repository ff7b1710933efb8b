package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	monstrepay "github.com/monstre-sol/monstrepay"
	"github.com/monstre-sol/monstrepay/poller"
)

// CheckoutStatus is the externally visible state of one checkout attempt.
type CheckoutStatus string

const (
	CheckoutPending CheckoutStatus = "pending"
	CheckoutPaid    CheckoutStatus = "paid"
	CheckoutFailed  CheckoutStatus = "failed"
	CheckoutStopped CheckoutStatus = "stopped"
)

// Session is one live checkout attempt: an immutable payment request plus
// the mutable outcome of its confirmation poll.
type Session struct {
	ID        string
	Request   monstrepay.PaymentRequest
	CreatedAt time.Time

	cancel context.CancelFunc

	mu        sync.Mutex
	status    CheckoutStatus
	signature solana.Signature
	reason    string
}

// Status returns the current state and, once terminal, the matched
// signature or failure reason.
func (s *Session) Status() (CheckoutStatus, solana.Signature, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.signature, s.reason
}

func (s *Session) setResult(res poller.ConfirmationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != CheckoutPending {
		return
	}
	switch res.Status {
	case poller.StatusFoundAndValid:
		s.status = CheckoutPaid
		s.signature = res.Signature
	case poller.StatusFoundButInvalid:
		s.status = CheckoutFailed
		s.signature = res.Signature
		s.reason = res.Reason
	}
}

func (s *Session) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == CheckoutPending {
		s.status = CheckoutStopped
	}
}

// SessionConfig holds the collaborators for a SessionManager.
type SessionConfig struct {
	Ledger    poller.Ledger
	Recipient solana.PublicKey
	Mint      solana.PublicKey
	Interval  time.Duration
	Logger    *zap.Logger
}

// SessionManager owns the in-memory checkout sessions and the confirmation
// poller running for each. Sessions live for the duration of one checkout
// attempt; nothing is persisted.
type SessionManager struct {
	ledger    poller.Ledger
	recipient solana.PublicKey
	mint      solana.PublicKey
	interval  time.Duration
	log       *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(cfg SessionConfig) *SessionManager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{
		ledger:    cfg.Ledger,
		recipient: cfg.Recipient,
		mint:      cfg.Mint,
		interval:  cfg.Interval,
		log:       log,
		sessions:  make(map[string]*Session),
	}
}

// Create registers a checkout attempt with a fresh correlation reference and
// starts its confirmation poll.
func (m *SessionManager) Create(amount decimal.Decimal) (*Session, error) {
	reference, err := monstrepay.NewReference()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reference: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID: uuid.NewString(),
		Request: monstrepay.PaymentRequest{
			Amount:    amount,
			Reference: reference,
			Recipient: m.recipient,
			Mint:      m.mint,
		},
		CreatedAt: time.Now(),
		cancel:    cancel,
		status:    CheckoutPending,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	p := poller.New(poller.Config{
		Ledger: m.ledger,
		Expect: poller.Expectation{
			Recipient: m.recipient,
			Mint:      m.mint,
			Amount:    amount,
			Reference: reference,
		},
		Interval: m.interval,
		Logger:   m.log.With(zap.String("checkout", s.ID)),
	})

	go func() {
		res, err := p.Run(ctx)
		if err != nil {
			// Cancelled. An in-flight ledger call is not aborted mid-tick;
			// its result is simply discarded.
			s.markStopped()
			return
		}
		s.setResult(res)
	}()

	return s, nil
}

// Get looks up a session by id.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Cancel tears down a session's poll, e.g. when the buyer leaves the
// checkout view. Terminal sessions keep their result.
func (m *SessionManager) Cancel(id string) bool {
	s, ok := m.Get(id)
	if !ok {
		return false
	}
	s.cancel()
	s.markStopped()
	return true
}

// Shutdown cancels every running poll.
func (m *SessionManager) Shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		s.cancel()
		s.markStopped()
	}
}
