// Package alert notifies support about purchases that need manual follow-up.
package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"github.com/jordan-wright/email"
	log "github.com/sirupsen/logrus"
)

// Alert describes one operator-visible incident.
type Alert struct {
	Subject   string
	PaymentID string
	PackageID string
	Err       error
	Fields    map[string]string
}

// Body renders the plain-text message.
func (a Alert) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "payment_id: %s\n", a.PaymentID)
	if a.PackageID != "" {
		fmt.Fprintf(&b, "package_id: %s\n", a.PackageID)
	}
	if a.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", a.Err)
	}
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, a.Fields[k])
	}
	return b.String()
}

// Alerter delivers alerts. Delivery is best-effort.
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// LogAlerter only logs. Used when SMTP is not configured.
type LogAlerter struct{}

func (LogAlerter) Alert(ctx context.Context, a Alert) error {
	log.WithFields(log.Fields{
		"payment_id": a.PaymentID,
		"package_id": a.PackageID,
		"error":      a.Err,
	}).Warn("operator alert: " + a.Subject)
	return nil
}

// EmailAlerter mails alerts to the support inbox over SMTP.
type EmailAlerter struct {
	host string
	port string
	user string
	pass string
	from string
	to   string

	send func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewEmailAlerter(host, port, user, pass, from, to string) *EmailAlerter {
	return &EmailAlerter{
		host: host, port: port, user: user, pass: pass, from: from, to: to,
		send: func(e *email.Email, addr string, auth smtp.Auth) error { return e.Send(addr, auth) },
	}
}

func (s *EmailAlerter) Alert(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.pass, s.host)
	}

	e := email.NewEmail()
	e.From = s.from
	e.To = []string{s.to}
	e.Subject = "[esim-checkout] " + a.Subject
	e.Text = []byte(a.Body())

	if err := s.send(e, addr, auth); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	return nil
}
