package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status is the billing state of a persisted message.
type Status string

const (
	StatusPending Status = "pending"
	StatusDebited Status = "debited"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// IsTerminal reports whether no further billing transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDebited || s == StatusFailed || s == StatusSkipped
}

var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrBalanceRecordMissing = errors.New("balance record missing")
	ErrAlreadyBilled        = errors.New("message already billed")
)

// ErrNotPending means the message left pending before it was debited,
// usually because reconciliation abandoned it.
var ErrNotPending = errors.New("message is not pending")

// DebitRequest is one conditional debit against an organization balance.
type DebitRequest struct {
	OrganizationID uuid.UUID
	MessageID      uuid.UUID
	Credits        int64
	Tokens         int
}

// DebitResult is what the ledger reports after a successful debit.
type DebitResult struct {
	TransactionID uuid.UUID
	BalanceAfter  int64
	ChargedAt     time.Time
}

// Ledger performs the atomic balance check + debit and writes the usage
// transaction. Implementations must never read-then-write the balance, and
// must refuse with ErrNotPending when the message is no longer pending.
type Ledger interface {
	Debit(ctx context.Context, req DebitRequest) (*DebitResult, error)
}

// StatusRecorder moves an outbound message out of pending. Both calls must
// only affect rows that are still pending.
type StatusRecorder interface {
	MarkDebited(ctx context.Context, messageID uuid.UUID, tokens int, credits int64, chargedAt time.Time) error
	MarkFailed(ctx context.Context, messageID uuid.UUID, tokens int, credits int64, reason string) error
}

// Charge describes one outbound message to bill.
type Charge struct {
	OrganizationID uuid.UUID
	MessageID      uuid.UUID
	ResponseText   string
	ProvidedTokens int
}

// ChargeResult is the terminal billing outcome for a message.
type ChargeResult struct {
	Status       Status
	Quote        Quote
	BalanceAfter int64
	ChargedAt    time.Time
	Reason       string
	// NeedsReconcile is set when the debit landed but the message row could
	// not be moved to debited.
	NeedsReconcile bool
}

// Meter converts usage to credits and drives the pending -> debited|failed
// transition of outbound messages.
type Meter struct {
	policy   Policy
	ledger   Ledger
	messages StatusRecorder
	log      zerolog.Logger
}

func NewMeter(policy Policy, ledger Ledger, messages StatusRecorder, logger zerolog.Logger) *Meter {
	return &Meter{
		policy:   policy.normalized(),
		ledger:   ledger,
		messages: messages,
		log:      logger.With().Str("component", "meter").Logger(),
	}
}

// Policy returns the pricing policy in use.
func (m *Meter) Policy() Policy {
	return m.policy
}

// Charge bills one outbound message. The returned error is one of the
// sentinel errors above (or a wrapped store error); the result is always
// non-nil so callers can log the quote.
func (m *Meter) Charge(ctx context.Context, c Charge) (*ChargeResult, error) {
	quote := m.policy.Quote(c.ProvidedTokens, c.ResponseText)
	res := &ChargeResult{Status: StatusPending, Quote: quote}

	logger := m.log.With().
		Str("organization_id", c.OrganizationID.String()).
		Str("message_id", c.MessageID.String()).
		Int("tokens", quote.Tokens).
		Int64("credits", quote.Credits).
		Logger()

	debit, err := m.ledger.Debit(ctx, DebitRequest{
		OrganizationID: c.OrganizationID,
		MessageID:      c.MessageID,
		Credits:        quote.Credits,
		Tokens:         quote.Tokens,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyBilled) {
			// A previous attempt already debited this message; leave its status alone.
			res.Status = StatusDebited
			res.Reason = "already billed"
			return res, err
		}
		if errors.Is(err, ErrNotPending) {
			// Someone else settled the message; its recorded status stands.
			res.Status = StatusFailed
			res.Reason = "not pending"
			logger.Warn().Msg("⚠️ Debit refused: message already settled")
			return res, err
		}

		reason := "debit error"
		switch {
		case errors.Is(err, ErrInsufficientBalance):
			reason = "insufficient balance"
			logger.Info().Msg("💳 Debit rejected: insufficient balance")
		case errors.Is(err, ErrBalanceRecordMissing):
			reason = "balance record missing"
			logger.Error().Msg("❌ Debit aborted: organization has no credit balance row")
		default:
			logger.Error().Err(err).Msg("❌ Debit failed")
		}

		res.Status = StatusFailed
		res.Reason = reason
		if markErr := m.messages.MarkFailed(ctx, c.MessageID, quote.Tokens, quote.Credits, reason); markErr != nil {
			logger.Warn().Err(markErr).Msg("⚠️ Failed to mark message as failed")
		}
		return res, err
	}

	res.Status = StatusDebited
	res.BalanceAfter = debit.BalanceAfter
	res.ChargedAt = debit.ChargedAt

	if err := m.messages.MarkDebited(ctx, c.MessageID, quote.Tokens, quote.Credits, debit.ChargedAt); err != nil {
		// Credits stay spent: an audited orphan debit beats a double debit.
		res.NeedsReconcile = true
		logger.Warn().Err(err).
			Str("transaction_id", debit.TransactionID.String()).
			Msg("⚠️ Reconciliation needed: debit succeeded but message status update failed")
		return res, nil
	}

	logger.Info().Int64("balance_after", debit.BalanceAfter).Msg("✅ Message debited")
	return res, nil
}

// String is used in logs and alerts.
func (r *ChargeResult) String() string {
	return fmt.Sprintf("%s tokens=%d credits=%d", r.Status, r.Quote.Tokens, r.Quote.Credits)
}
