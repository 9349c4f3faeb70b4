package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
)

// Notifier delivers an availability alert for one entry. It reports an error
// when delivery could not be confirmed, so callers can retry on a later
// sweep.
type Notifier interface {
	NotifyAvailability(ctx context.Context, entry *models.MonitoredEntry, data *models.ProductData) error
}

// Mailer sends availability alerts over SMTP.
type Mailer struct {
	host     string
	port     int
	user     string
	password string
	from     string
	fromName string
	logger   *slog.Logger
}

type MailerOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

func NewMailer(opts MailerOptions, logger *slog.Logger) *Mailer {
	return &Mailer{
		host:     opts.Host,
		port:     opts.Port,
		user:     opts.User,
		password: opts.Password,
		from:     opts.From,
		fromName: opts.FromName,
		logger:   logger.With("component", "mailer"),
	}
}

// NotifyAvailability emails the entry owner that the second-chance variant
// came in stock.
func (m *Mailer) NotifyAvailability(ctx context.Context, entry *models.MonitoredEntry, data *models.ProductData) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.fromName, m.from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := msg.To(entry.UserEmail); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	name := data.Name
	if name == "" {
		name = models.UnknownProductName
	}

	msg.Subject(fmt.Sprintf("Tweede Kans beschikbaar: %s", name))
	msg.SetBodyString(mail.TypeTextPlain, m.textBody(entry, data, name))
	msg.AddAlternativeString(mail.TypeTextHTML, m.htmlBody(entry, data, name))

	client, err := mail.NewClient(m.host,
		mail.WithPort(m.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.user),
		mail.WithPassword(m.password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	defer client.Close()

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send availability mail: %w", err)
	}

	m.logger.Info("availability mail sent",
		"entry_id", entry.ID,
		"recipient", entry.UserEmail)

	return nil
}

func (m *Mailer) textBody(entry *models.MonitoredEntry, data *models.ProductData, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goed nieuws! %s is nu beschikbaar als Tweede Kans.\n\n", name)

	if data.DiscountPrice != nil {
		fmt.Fprintf(&b, "Tweede Kans prijs: %s\n", formatEuros(*data.DiscountPrice))
	}
	if data.OriginalPrice != nil {
		fmt.Fprintf(&b, "Nieuwprijs: %s\n", formatEuros(*data.OriginalPrice))
	}
	if pct, ok := savingsPercent(data); ok {
		fmt.Fprintf(&b, "Besparing: %d%%\n", pct)
	}

	fmt.Fprintf(&b, "\nBekijk het product: %s\n", entry.ProductURL)
	return b.String()
}

func (m *Mailer) htmlBody(entry *models.MonitoredEntry, data *models.ProductData, name string) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family: sans-serif; max-width: 600px;">`)
	fmt.Fprintf(&b, `<h2>%s is nu beschikbaar als Tweede Kans</h2>`, name)

	if data.ImageURL != nil {
		fmt.Fprintf(&b, `<img src="%s" alt="%s" style="max-width: 240px;">`, *data.ImageURL, name)
	}

	b.WriteString(`<table style="border-collapse: collapse; margin: 16px 0;">`)
	if data.DiscountPrice != nil {
		fmt.Fprintf(&b, `<tr><td style="padding: 4px 12px 4px 0;">Tweede Kans prijs</td><td><strong>%s</strong></td></tr>`, formatEuros(*data.DiscountPrice))
	}
	if data.OriginalPrice != nil {
		fmt.Fprintf(&b, `<tr><td style="padding: 4px 12px 4px 0;">Nieuwprijs</td><td>%s</td></tr>`, formatEuros(*data.OriginalPrice))
	}
	if pct, ok := savingsPercent(data); ok {
		fmt.Fprintf(&b, `<tr><td style="padding: 4px 12px 4px 0;">Besparing</td><td>%d%%</td></tr>`, pct)
	}
	b.WriteString(`</table>`)

	fmt.Fprintf(&b, `<p><a href="%s">Bekijk het product</a></p>`, entry.ProductURL)
	b.WriteString(`</div>`)
	return b.String()
}

// formatEuros renders integer cents as a Dutch-style euro amount, with a
// period grouping the thousands.
func formatEuros(cents int64) string {
	euros := groupThousands(cents / 100)
	rest := cents % 100
	if rest == 0 {
		return fmt.Sprintf("€%s,-", euros)
	}
	return fmt.Sprintf("€%s,%02d", euros, rest)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// savingsPercent computes the discount relative to the new price, rounded
// down. Reported only when both prices are known and the math is sane.
func savingsPercent(data *models.ProductData) (int64, bool) {
	if data.OriginalPrice == nil || data.DiscountPrice == nil {
		return 0, false
	}
	original := *data.OriginalPrice
	discount := *data.DiscountPrice
	if original <= 0 || discount >= original {
		return 0, false
	}
	return (original - discount) * 100 / original, true
}
