package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/alert"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/billing"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memMessages mimics the unique external_id and pending guard of the
// messages table. billed reports whether the ledger holds a usage
// transaction for a message.
type memMessages struct {
	mu        sync.Mutex
	rows      map[string]*models.Message
	upsertErr error
	markErr   error
	billed    func(uuid.UUID) bool
}

func newMemMessages() *memMessages {
	return &memMessages{rows: map[string]*models.Message{}}
}

func (m *memMessages) Upsert(_ context.Context, msg *models.Message) (*models.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, false, m.upsertErr
	}
	if existing, ok := m.rows[msg.ExternalID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	row := *msg
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Direction == models.DirectionInbound {
		row.BillingStatus = string(billing.StatusSkipped)
		row.CostCredits = 0
		row.DeliveryStatus = models.DeliveryNotApplicable
	} else if row.BillingStatus == "" {
		row.BillingStatus = string(billing.StatusPending)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	m.rows[row.ExternalID] = &row
	cp := row
	return &cp, true, nil
}

func (m *memMessages) FindByExternalID(_ context.Context, externalID string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[externalID]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memMessages) byID(id uuid.UUID) *models.Message {
	for _, row := range m.rows {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func (m *memMessages) MarkDebited(_ context.Context, id uuid.UUID, tokens int, credits int64, chargedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	row := m.byID(id)
	if row == nil || row.BillingStatus != string(billing.StatusPending) {
		return repositories.ErrNotPending
	}
	row.BillingStatus = string(billing.StatusDebited)
	row.TokensUsed = tokens
	row.CostCredits = credits
	row.ChargedAt = &chargedAt
	return nil
}

func (m *memMessages) MarkFailed(_ context.Context, id uuid.UUID, tokens int, credits int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.byID(id)
	if row == nil || row.BillingStatus != string(billing.StatusPending) {
		return repositories.ErrNotPending
	}
	row.BillingStatus = string(billing.StatusFailed)
	row.TokensUsed = tokens
	row.CostCredits = credits
	row.BillingError = reason
	return nil
}

func (m *memMessages) MarkAbandoned(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.byID(id)
	if row == nil || row.BillingStatus != string(billing.StatusPending) {
		return repositories.ErrNotPending
	}
	if m.billed != nil && m.billed(id) {
		return billing.ErrAlreadyBilled
	}
	row.BillingStatus = string(billing.StatusFailed)
	row.BillingError = reason
	if row.DeliveryStatus == models.DeliveryPending {
		row.DeliveryStatus = models.DeliveryFailed
	}
	return nil
}

func (m *memMessages) isPending(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.byID(id)
	return row != nil && row.BillingStatus == string(billing.StatusPending)
}

func (m *memMessages) UpdateDelivery(_ context.Context, id uuid.UUID, status, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row := m.byID(id); row != nil {
		row.DeliveryStatus = status
	}
	return nil
}

func (m *memMessages) FindStalePending(_ context.Context, before time.Time, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, row := range m.rows {
		if row.Direction == models.DirectionOutbound &&
			row.BillingStatus == string(billing.StatusPending) &&
			row.CreatedAt.Before(before) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMessages) count(direction string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.Direction == direction {
			n++
		}
	}
	return n
}

func (m *memMessages) get(externalID string) *models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[externalID]; ok {
		cp := *row
		return &cp
	}
	return nil
}

// memLedger serializes debits the way the conditional UPDATE does. pending
// reports whether a message may still be debited.
type memLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	txs      map[uuid.UUID]*models.UsageTransaction
	failWith error
	pending  func(uuid.UUID) bool
}

// linkStores gives both fakes the cross-table checks of the real
// repositories. Locks are only ever taken messages first, then ledger.
func linkStores(messages *memMessages, ledger *memLedger) {
	messages.billed = ledger.hasTransaction
	ledger.pending = messages.isPending
}

func newMemLedger() *memLedger {
	return &memLedger{balances: map[uuid.UUID]int64{}, txs: map[uuid.UUID]*models.UsageTransaction{}}
}

func (l *memLedger) Debit(_ context.Context, req billing.DebitRequest) (*billing.DebitResult, error) {
	if l.pending != nil && !l.pending(req.MessageID) {
		return nil, billing.ErrNotPending
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return nil, l.failWith
	}
	bal, ok := l.balances[req.OrganizationID]
	if !ok {
		return nil, billing.ErrBalanceRecordMissing
	}
	if bal < req.Credits {
		return nil, billing.ErrInsufficientBalance
	}
	if _, dup := l.txs[req.MessageID]; dup {
		return nil, billing.ErrAlreadyBilled
	}
	l.balances[req.OrganizationID] = bal - req.Credits
	tx := &models.UsageTransaction{
		ID:             uuid.New(),
		OrganizationID: req.OrganizationID,
		MessageID:      req.MessageID,
		Amount:         req.Credits,
		BalanceAfter:   bal - req.Credits,
		Tokens:         req.Tokens,
		CreatedAt:      time.Now(),
	}
	l.txs[req.MessageID] = tx
	return &billing.DebitResult{TransactionID: tx.ID, BalanceAfter: tx.BalanceAfter, ChargedAt: tx.CreatedAt}, nil
}

func (l *memLedger) FindTransactionByMessageID(_ context.Context, messageID uuid.UUID) (*models.UsageTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tx, ok := l.txs[messageID]; ok {
		return tx, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (l *memLedger) hasTransaction(messageID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.txs[messageID]
	return ok
}

func (l *memLedger) balance(org uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[org]
}

func (l *memLedger) txCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}

type memDevices struct {
	mu      sync.Mutex
	states  map[string]string
	failErr error
}

func (d *memDevices) FindByInstanceID(context.Context, string) (*models.Device, error) {
	return nil, gorm.ErrRecordNotFound
}

func (d *memDevices) FindBySessionName(context.Context, string) (*models.Device, error) {
	return nil, gorm.ErrRecordNotFound
}

func (d *memDevices) UpdateState(_ context.Context, ref, state string, _ time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failErr != nil {
		return false, d.failErr
	}
	if _, ok := d.states[ref]; !ok {
		return false, nil
	}
	d.states[ref] = state
	return true, nil
}

type fakeResolver struct {
	tc  *tenant.Context
	err error
}

func (r *fakeResolver) Resolve(context.Context, tenant.Lookup) (*tenant.Context, error) {
	return r.tc, r.err
}

type fakeGenerator struct {
	mu    sync.Mutex
	resp  *llm.Response
	err   error
	calls []llm.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	resp := *g.resp
	return &resp, nil
}

func (g *fakeGenerator) GetProviderName() string { return "fake" }

type sentText struct {
	session string
	jid     string
	text    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentText
	err  error
}

func (f *fakeSender) SendText(_ context.Context, session, jid, text string) (*whatsapp.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sentText{session: session, jid: jid, text: text})
	return &whatsapp.SendResult{MessageID: "wamid-" + uuid.NewString()[:8], Status: "sent"}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type memAlerts struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (m *memAlerts) Emit(_ context.Context, a alert.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
}

func (m *memAlerts) byCategory(c alert.Category) []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alert.Alert
	for _, a := range m.alerts {
		if a.Category == c {
			out = append(out, a)
		}
	}
	return out
}

type memSeen struct {
	mu      sync.Mutex
	seen    map[string]bool
	seenErr error
}

func (c *memSeen) Seen(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seenErr != nil {
		return false, c.seenErr
	}
	return c.seen[id], nil
}

func (c *memSeen) Mark(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[id] = true
	return nil
}

func (c *memSeen) Close() error { return nil }

var errBoom = errors.New("boom")
