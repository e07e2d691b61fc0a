package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"spendguard/internal/model"
)

// EmailChannel delivers limit alerts over SMTP with STARTTLS and plain
// auth, the usual submission setup on port 587.
type EmailChannel struct {
	host     string
	port     string
	username string
	password string
	to       string
}

func NewEmailChannel(host, port, username, password, to string) *EmailChannel {
	return &EmailChannel{host: host, port: port, username: username, password: password, to: to}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, payload model.AlertPayload) error {
	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.username)
	fmt.Fprintf(&b, "To: %s\r\n", e.to)
	b.WriteString("Subject: API Spending Alert - Hourly Limit Exceeded\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(formatEmailBody(payload))

	// net/smtp has no context hook; the engine treats notifier errors as
	// best effort, so a hung server is bounded by the SMTP dial timeout
	// rather than the request context.
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := e.host + ":" + e.port
	if err := smtp.SendMail(addr, auth, e.username, []string{e.to}, []byte(b.String())); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

func formatEmailBody(p model.AlertPayload) string {
	rows := [][2]string{
		{"Hour", p.HourStart.Format("2006-01-02 15:00")},
		{"Total Spend", model.FormatDollars(p.TotalSpendMicros)},
		{"Hourly Limit", model.FormatDollars(p.LimitMicros)},
		{"Overage", model.FormatDollars(p.OverageMicros)},
		{"Request Count", fmt.Sprintf("%d", p.RequestCount)},
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(`<h2 style="color: #d32f2f;">API Spending Alert</h2>`)
	b.WriteString("<p>Your API spending has exceeded the hourly limit.</p>")
	b.WriteString(`<table style="border-collapse: collapse;">`)
	for _, row := range rows {
		fmt.Fprintf(&b,
			`<tr><td style="padding: 8px; border: 1px solid #ddd;"><strong>%s</strong></td><td style="padding: 8px; border: 1px solid #ddd;">%s</td></tr>`,
			row[0], row[1])
	}
	b.WriteString("</table>")
	b.WriteString("<p><strong>Action Required:</strong> Please review your API usage.</p>")
	fmt.Fprintf(&b, `<p style="color: #666; font-size: 12px;">Generated by spendguard at %s</p>`,
		time.Now().UTC().Format("2006-01-02 15:04:05"))
	b.WriteString("</body></html>")
	return b.String()
}
