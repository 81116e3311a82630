package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/whatsapp"
)

// Notifier pushes an alert to a human.
type Notifier interface {
	Notify(ctx context.Context, a *Alert) error
}

// TextSender is the part of the WhatsApp gateway the admin notifier needs.
type TextSender interface {
	SendText(ctx context.Context, session, jid, text string) (*whatsapp.SendResult, error)
}

// AdminNotifier sends alerts to the operator's own WhatsApp number through
// an operator-owned session.
type AdminNotifier struct {
	sender  TextSender
	session string
	phone   string
}

// NewAdminNotifier returns nil when no admin phone or session is configured.
func NewAdminNotifier(sender TextSender, session, phone string) *AdminNotifier {
	if sender == nil || session == "" || phone == "" {
		return nil
	}
	return &AdminNotifier{sender: sender, session: session, phone: phone}
}

func (n *AdminNotifier) Notify(ctx context.Context, a *Alert) error {
	if _, err := n.sender.SendText(ctx, n.session, n.phone, FormatAlert(a)); err != nil {
		return fmt.Errorf("failed to send WhatsApp to admin %s: %w", n.phone, err)
	}
	return nil
}

// FormatAlert renders an alert as a WhatsApp message.
func FormatAlert(a *Alert) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🚨 *%s alert: %s*\n\n", strings.ToUpper(string(a.Severity)), a.Category))
	sb.WriteString(a.Message)
	sb.WriteString("\n")
	if a.OrganizationID != nil {
		sb.WriteString(fmt.Sprintf("\n🏢 Organization: %s", a.OrganizationID))
	}
	if a.Phone != "" {
		sb.WriteString(fmt.Sprintf("\n👤 Phone: %s", a.Phone))
	}
	if a.Error != "" {
		sb.WriteString(fmt.Sprintf("\n❌ Error: %s", a.Error))
	}
	if a.CorrelationID != "" {
		sb.WriteString(fmt.Sprintf("\n🔎 Correlation: %s", a.CorrelationID))
	}
	return sb.String()
}
