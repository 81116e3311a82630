package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/alert"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/billing"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/intent"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerJID = "6281234567890@s.whatsapp.net"

type fixture struct {
	svc      *WebhookService
	messages *memMessages
	ledger   *memLedger
	devices  *memDevices
	gen      *fakeGenerator
	sender   *fakeSender
	alerts   *memAlerts
	seen     *memSeen
	tc       *tenant.Context
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()

	org := &models.Organization{ID: uuid.New(), Name: "Toko Maju", Status: models.OrganizationActive}
	device := &models.Device{ID: uuid.New(), OrganizationID: org.ID, SessionName: "toko-maju", InstanceID: "inst-1"}
	bot := &models.Chatbot{
		ID:              uuid.New(),
		OrganizationID:  org.ID,
		Name:            "Maju Bot",
		FallbackEnabled: true,
		IsActive:        true,
		Intents: []models.Intent{{
			ID:        uuid.New(),
			Name:      "pricing",
			Patterns:  pq.StringArray{"price"},
			Responses: pq.StringArray{"Our price list is on the website."},
			IsActive:  true,
		}},
	}

	f := &fixture{
		messages: newMemMessages(),
		ledger:   newMemLedger(),
		devices:  &memDevices{states: map[string]string{"inst-1": models.DeviceDisconnected}},
		gen:      &fakeGenerator{resp: &llm.Response{Text: "Hi there! How can we help?", InputTokens: 200, OutputTokens: 1000, Provider: "fake"}},
		sender:   &fakeSender{},
		alerts:   &memAlerts{},
		seen:     &memSeen{seen: map[string]bool{}},
		tc:       &tenant.Context{Organization: org, Device: device, Chatbot: bot},
	}
	f.ledger.balances[org.ID] = balance
	linkStores(f.messages, f.ledger)

	meter := billing.NewMeter(billing.DefaultPolicy(), f.ledger, f.messages, zerolog.Nop())
	f.svc = NewWebhookService(
		&fakeResolver{tc: f.tc},
		f.messages,
		f.devices,
		f.seen,
		intent.NewMatcher(),
		f.gen,
		meter,
		f.sender,
		f.alerts,
		WebhookConfig{FallbackReply: "Sorry, please try again later."},
		zerolog.Nop(),
	)
	return f
}

func (f *fixture) delivery(externalID, text string) Delivery {
	return Delivery{
		CorrelationID: utils.NewCorrelationID(),
		Tenant:        f.tc,
		Event: &whatsapp.MessageUpsert{
			Instance:   "toko-maju",
			InstanceID: "inst-1",
			RemoteJID:  customerJID,
			ExternalID: externalID,
			Text:       text,
		},
	}
}

func TestProcessFallbackReplyIsBilledAndSent(t *testing.T) {
	f := newFixture(t, 5)

	outcome, err := f.svc.Process(context.Background(), f.delivery("A1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplied, outcome)

	inbound := f.messages.get("A1")
	require.NotNil(t, inbound)
	assert.Equal(t, models.DirectionInbound, inbound.Direction)
	assert.Equal(t, string(billing.StatusSkipped), inbound.BillingStatus)
	assert.Equal(t, int64(0), inbound.CostCredits)

	outbound := f.messages.get(OutboundExternalID("A1"))
	require.NotNil(t, outbound)
	assert.Equal(t, string(billing.StatusDebited), outbound.BillingStatus)
	assert.Equal(t, int64(2), outbound.CostCredits)
	assert.Equal(t, 1200, outbound.TokensUsed)
	assert.Equal(t, models.DeliverySent, outbound.DeliveryStatus)
	assert.Equal(t, customerJID, outbound.Counterparty)

	assert.Equal(t, int64(3), f.ledger.balance(f.tc.Organization.ID))
	require.Equal(t, 1, f.sender.count())
	assert.Equal(t, "toko-maju", f.sender.sent[0].session)
	assert.Equal(t, customerJID, f.sender.sent[0].jid)

	require.Len(t, f.gen.calls, 1)
	assert.Equal(t, "hello", f.gen.calls[0].UserMessage)
	assert.Contains(t, f.gen.calls[0].SystemPrompt, "Toko Maju")
}

func TestProcessInsufficientBalanceMarksFailed(t *testing.T) {
	f := newFixture(t, 0)

	outcome, err := f.svc.Process(context.Background(), f.delivery("B1", "hello"))
	require.ErrorIs(t, err, billing.ErrInsufficientBalance)
	assert.Equal(t, OutcomeNotBilled, outcome)

	outbound := f.messages.get(OutboundExternalID("B1"))
	require.NotNil(t, outbound)
	assert.Equal(t, string(billing.StatusFailed), outbound.BillingStatus)
	assert.Equal(t, "insufficient balance", outbound.BillingError)
	assert.Equal(t, models.DeliveryFailed, outbound.DeliveryStatus)

	assert.Equal(t, int64(0), f.ledger.balance(f.tc.Organization.ID))
	assert.Equal(t, 0, f.ledger.txCount())
	assert.Equal(t, 0, f.sender.count())
	assert.Empty(t, f.alerts.byCategory(alert.CategoryInsufficientBalance))
}

func TestProcessRedeliveryIsNoOp(t *testing.T) {
	for _, withCache := range []bool{true, false} {
		t.Run(fmt.Sprintf("cache=%v", withCache), func(t *testing.T) {
			f := newFixture(t, 5)
			if !withCache {
				f.svc.seen = &memSeen{seen: map[string]bool{}, seenErr: errBoom}
			}

			_, err := f.svc.Process(context.Background(), f.delivery("A1", "hello"))
			require.NoError(t, err)

			outcome, err := f.svc.Process(context.Background(), f.delivery("A1", "hello"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeDuplicate, outcome)

			assert.Equal(t, 1, f.messages.count(models.DirectionInbound))
			assert.Equal(t, 1, f.messages.count(models.DirectionOutbound))
			assert.Equal(t, int64(3), f.ledger.balance(f.tc.Organization.ID))
			assert.Equal(t, 1, f.sender.count())
		})
	}
}

func TestProcessIntentMatchSkipsGenerator(t *testing.T) {
	f := newFixture(t, 5)

	outcome, err := f.svc.Process(context.Background(), f.delivery("C1", "What is the PRICE of rice?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplied, outcome)
	assert.Empty(t, f.gen.calls)

	outbound := f.messages.get(OutboundExternalID("C1"))
	require.NotNil(t, outbound)
	assert.Equal(t, "Our price list is on the website.", outbound.Content)
	assert.GreaterOrEqual(t, outbound.TokensUsed, billing.DefaultPolicy().MinChargeTokens)
	assert.Equal(t, int64(1), outbound.CostCredits)
	assert.Contains(t, string(outbound.Metadata), SourceIntent)
}

func TestProcessPassesChatbotTemperature(t *testing.T) {
	f := newFixture(t, 5)
	f.tc.Chatbot.Temperature = llm.Temperature(0)

	_, err := f.svc.Process(context.Background(), f.delivery("T1", "hello"))
	require.NoError(t, err)

	require.Len(t, f.gen.calls, 1)
	require.NotNil(t, f.gen.calls[0].Temperature)
	assert.Equal(t, float32(0), *f.gen.calls[0].Temperature)
}

func TestProcessNoMatchWithoutFallback(t *testing.T) {
	f := newFixture(t, 5)
	f.tc.Chatbot.FallbackEnabled = false

	outcome, err := f.svc.Process(context.Background(), f.delivery("D1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, outcome)

	assert.Equal(t, 1, f.messages.count(models.DirectionInbound))
	assert.Equal(t, 0, f.messages.count(models.DirectionOutbound))
	assert.Equal(t, 0, f.sender.count())
	assert.Equal(t, int64(5), f.ledger.balance(f.tc.Organization.ID))
}

func TestProcessAIFailureSendsApology(t *testing.T) {
	f := newFixture(t, 5)
	f.gen.err = context.DeadlineExceeded

	outcome, err := f.svc.Process(context.Background(), f.delivery("E1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplied, outcome)

	require.Equal(t, 1, f.sender.count())
	assert.Equal(t, "Sorry, please try again later.", f.sender.sent[0].text)

	alerts := f.alerts.byCategory(alert.CategoryAPIFailure)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.SeverityMedium, alerts[0].Severity)

	outbound := f.messages.get(OutboundExternalID("E1"))
	require.NotNil(t, outbound)
	assert.Equal(t, billing.DefaultPolicy().MinChargeTokens, outbound.TokensUsed)
	assert.Equal(t, int64(1), outbound.CostCredits)
}

func TestProcessAIFailureUsesChatbotApology(t *testing.T) {
	f := newFixture(t, 5)
	f.gen.resp = &llm.Response{Text: "   "}
	f.tc.Chatbot.FallbackReply = "Maaf, coba lagi nanti."

	_, err := f.svc.Process(context.Background(), f.delivery("E2", "hello"))
	require.NoError(t, err)
	require.Equal(t, 1, f.sender.count())
	assert.Equal(t, "Maaf, coba lagi nanti.", f.sender.sent[0].text)
}

func TestProcessSendFailureKeepsDebit(t *testing.T) {
	f := newFixture(t, 5)
	f.sender.err = errors.New("gateway unreachable")

	outcome, err := f.svc.Process(context.Background(), f.delivery("F1", "hello"))
	require.ErrorIs(t, err, ErrAPIFailure)
	assert.Equal(t, OutcomeUndelivered, outcome)

	outbound := f.messages.get(OutboundExternalID("F1"))
	require.NotNil(t, outbound)
	assert.Equal(t, string(billing.StatusDebited), outbound.BillingStatus)
	assert.Equal(t, models.DeliveryFailed, outbound.DeliveryStatus)
	assert.Equal(t, int64(3), f.ledger.balance(f.tc.Organization.ID))

	alerts := f.alerts.byCategory(alert.CategoryAPIFailure)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, customerJID, alerts[0].Phone)
}

func TestProcessMissingBalanceRowIsCritical(t *testing.T) {
	f := newFixture(t, 0)
	delete(f.ledger.balances, f.tc.Organization.ID)

	outcome, err := f.svc.Process(context.Background(), f.delivery("G1", "hello"))
	require.ErrorIs(t, err, billing.ErrBalanceRecordMissing)
	assert.Equal(t, OutcomeNotBilled, outcome)
	assert.Equal(t, 0, f.sender.count())

	alerts := f.alerts.byCategory(alert.CategoryBalanceRecordMissing)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.SeverityCritical, alerts[0].Severity)
}

func TestProcessPersistenceFailureAborts(t *testing.T) {
	f := newFixture(t, 5)
	f.messages.upsertErr = errors.New("connection refused")

	_, err := f.svc.Process(context.Background(), f.delivery("H1", "hello"))
	require.ErrorIs(t, err, ErrPersistenceFailed)

	assert.Empty(t, f.gen.calls)
	assert.Equal(t, 0, f.sender.count())
	alerts := f.alerts.byCategory(alert.CategoryPersistenceFailed)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.SeverityHigh, alerts[0].Severity)
}

func TestProcessStatusUpdateFailureAlertsReconciliation(t *testing.T) {
	f := newFixture(t, 5)
	f.messages.markErr = errors.New("write timeout")

	outcome, err := f.svc.Process(context.Background(), f.delivery("R1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplied, outcome)
	assert.Equal(t, int64(3), f.ledger.balance(f.tc.Organization.ID))
	assert.Len(t, f.alerts.byCategory(alert.CategoryReconciliation), 1)
}

// reconcileFirstMeter runs a reconciliation pass right before each charge.
type reconcileFirstMeter struct {
	reconcile *ReconcileService
	next      UsageMeter
}

func (m reconcileFirstMeter) Charge(ctx context.Context, c billing.Charge) (*billing.ChargeResult, error) {
	if _, err := m.reconcile.Run(ctx); err != nil {
		return nil, err
	}
	return m.next.Charge(ctx, c)
}

func TestProcessAbandonedBeforeChargeIsNeverDebited(t *testing.T) {
	f := newFixture(t, 5)
	rec := NewReconcileService(f.messages, f.ledger, f.alerts, ReconcileConfig{StaleAfter: time.Minute}, zerolog.Nop())
	rec.now = func() time.Time { return time.Now().Add(time.Hour) }
	f.svc.meter = reconcileFirstMeter{reconcile: rec, next: f.svc.meter}

	outcome, err := f.svc.Process(context.Background(), f.delivery("S1", "hello"))
	require.ErrorIs(t, err, billing.ErrNotPending)
	assert.Equal(t, OutcomeNotBilled, outcome)

	outbound := f.messages.get(OutboundExternalID("S1"))
	require.NotNil(t, outbound)
	assert.Equal(t, string(billing.StatusFailed), outbound.BillingStatus)
	assert.Equal(t, ReasonAbandoned, outbound.BillingError)
	assert.Equal(t, models.DeliveryFailed, outbound.DeliveryStatus)

	assert.Equal(t, int64(5), f.ledger.balance(f.tc.Organization.ID))
	assert.Equal(t, 0, f.ledger.txCount())
	assert.Equal(t, 0, f.sender.count())
	assert.Len(t, f.alerts.byCategory(alert.CategoryReconciliation), 1)
	assert.Empty(t, f.alerts.byCategory(alert.CategoryPersistenceFailed))
}

func TestProcessIgnoresEchoesAndEmptyText(t *testing.T) {
	f := newFixture(t, 5)

	echo := f.delivery("I1", "hello")
	echo.Event.FromMe = true
	outcome, err := f.svc.Process(context.Background(), echo)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	outcome, err = f.svc.Process(context.Background(), f.delivery("I2", "  "))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	assert.Equal(t, 0, f.messages.count(models.DirectionInbound))
}

func TestProcessVirtualDeviceStoresNoDeviceRef(t *testing.T) {
	f := newFixture(t, 5)
	f.tc.Device = &models.Device{OrganizationID: f.tc.Organization.ID, SessionName: "toko-maju", Virtual: true}

	d := f.delivery("V1", "hello")
	d.Event.Instance = ""
	_, err := f.svc.Process(context.Background(), d)
	require.NoError(t, err)

	inbound := f.messages.get("V1")
	require.NotNil(t, inbound)
	assert.Nil(t, inbound.DeviceID)
	require.Equal(t, 1, f.sender.count())
	assert.Equal(t, "toko-maju", f.sender.sent[0].session)
}

func TestDispatchConcurrentDeliveriesNeverOverspend(t *testing.T) {
	const (
		balance    = int64(10)
		perMessage = int64(3)
		deliveries = 8
	)

	f := newFixture(t, balance)
	f.gen.resp = &llm.Response{Text: "ok", InputTokens: 1000, OutputTokens: 2000}

	for i := 0; i < deliveries; i++ {
		f.svc.Dispatch(f.delivery(fmt.Sprintf("P%d", i), "hello"))
	}
	f.svc.Wait()

	succeeded := int(balance / perMessage)
	assert.Equal(t, balance-int64(succeeded)*perMessage, f.ledger.balance(f.tc.Organization.ID))
	assert.Equal(t, succeeded, f.ledger.txCount())
	assert.Equal(t, succeeded, f.sender.count())
	assert.Equal(t, deliveries, f.messages.count(models.DirectionOutbound))

	for i := 0; i < deliveries; i++ {
		out := f.messages.get(OutboundExternalID(fmt.Sprintf("P%d", i)))
		require.NotNil(t, out)
		assert.True(t, billing.Status(out.BillingStatus).IsTerminal())
	}
}

func TestDispatchSameEventConcurrentlyBillsOnce(t *testing.T) {
	f := newFixture(t, 10)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.Dispatch(f.delivery("SAME", "hello"))
		}()
	}
	wg.Wait()
	f.svc.Wait()

	assert.Equal(t, 1, f.messages.count(models.DirectionInbound))
	assert.Equal(t, 1, f.messages.count(models.DirectionOutbound))
	assert.Equal(t, 1, f.ledger.txCount())
	assert.Equal(t, 1, f.sender.count())
}

type memAlertStore struct {
	mu    sync.Mutex
	saved []alert.Alert
}

func (m *memAlertStore) Save(_ context.Context, a *alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *a)
	return nil
}

func (m *memAlertStore) List(context.Context, alert.Filter) (*alert.ListResponse, error) {
	return &alert.ListResponse{}, nil
}

func TestResolveUnknownInstanceAlertsCritical(t *testing.T) {
	f := newFixture(t, 5)
	store := &memAlertStore{}
	alerts := alert.NewService(alert.Config{}, store, nil, nil, zerolog.Nop())
	f.svc.alerts = alerts
	f.svc.resolver = &fakeResolver{err: fmt.Errorf("%w: instance ghost", tenant.ErrTenantNotFound)}

	ctx := utils.WithCorrelationID(context.Background(), "corr-123")
	_, err := f.svc.Resolve(ctx, &whatsapp.MessageUpsert{Instance: "ghost", RemoteJID: customerJID, ExternalID: "X1"})
	require.ErrorIs(t, err, tenant.ErrTenantNotFound)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, alerts.Close(closeCtx))

	require.Len(t, store.saved, 1)
	assert.Equal(t, alert.SeverityCritical, store.saved[0].Severity)
	assert.Equal(t, alert.CategoryTenantNotFound, store.saved[0].Category)
	assert.Equal(t, "corr-123", store.saved[0].CorrelationID)
	assert.Equal(t, 0, f.messages.count(models.DirectionInbound))
}

func TestResolveErrorClasses(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category alert.Category
		wantErr  error
	}{
		{"no chatbot", tenant.ErrNoActiveChatbot, alert.CategoryNoActiveChatbot, tenant.ErrNoActiveChatbot},
		{"store error", errors.New("db down"), alert.CategoryPersistenceFailed, ErrPersistenceFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 5)
			f.svc.resolver = &fakeResolver{err: tt.err}

			_, err := f.svc.Resolve(context.Background(), &whatsapp.MessageUpsert{Instance: "x"})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Len(t, f.alerts.byCategory(tt.category), 1)
		})
	}
}

func TestHandleConnectionUpdate(t *testing.T) {
	f := newFixture(t, 5)

	require.NoError(t, f.svc.HandleConnectionUpdate(context.Background(), &whatsapp.ConnectionUpdate{Instance: "inst-1", State: "open"}))
	assert.Equal(t, models.DeviceConnected, f.devices.states["inst-1"])

	require.NoError(t, f.svc.HandleConnectionUpdate(context.Background(), &whatsapp.ConnectionUpdate{Instance: "unknown", State: "close"}))

	f.devices.failErr = errBoom
	err := f.svc.HandleConnectionUpdate(context.Background(), &whatsapp.ConnectionUpdate{Instance: "inst-1", State: "close"})
	require.ErrorIs(t, err, ErrPersistenceFailed)
}

func TestIntentRules(t *testing.T) {
	id := uuid.New()
	rules := IntentRules([]models.Intent{{ID: id, Name: "hours", Patterns: pq.StringArray{"open"}, Position: 3, IsActive: true}})
	require.Len(t, rules, 1)
	assert.Equal(t, id.String(), rules[0].ID)
	assert.Equal(t, []string{"open"}, rules[0].Patterns)
	assert.Equal(t, 3, rules[0].Position)
	assert.True(t, rules[0].Active)
}
