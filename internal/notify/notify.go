// Package notify sends receipts of committed money movements to account owners.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/configpkg"
	"github.com/go-petr/mini-bank/pkg/moneypkg"
	"github.com/jordan-wright/email"
	"github.com/rs/zerolog"
)

// Notifier delivers a receipt to its owner.
type Notifier interface {
	Receipt(ctx context.Context, to domain.Principal, r domain.Receipt) error
}

// New returns a Mailer when SMTP is configured and Nop otherwise.
func New(config configpkg.Config) Notifier {
	if config.SMTPHost == "" {
		return Nop{}
	}

	return NewMailer(config)
}

// Nop drops every receipt.
type Nop struct{}

// Receipt implements Notifier.
func (Nop) Receipt(context.Context, domain.Principal, domain.Receipt) error { return nil }

// sendFunc matches (*email.Email).Send.
type sendFunc func(e *email.Email, addr string, a smtp.Auth) error

// Mailer sends receipts over SMTP.
type Mailer struct {
	from string
	addr string
	auth smtp.Auth
	send sendFunc
}

// NewMailer returns a Mailer for the SMTP settings of config.
func NewMailer(config configpkg.Config) *Mailer {
	var auth smtp.Auth
	if config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", config.SMTPUsername, config.SMTPPassword, config.SMTPHost)
	}

	return &Mailer{
		from: config.SenderEmail,
		addr: fmt.Sprintf("%s:%s", config.SMTPHost, config.SMTPPort),
		auth: auth,
		send: func(e *email.Email, addr string, a smtp.Auth) error { return e.Send(addr, a) },
	}
}

// Receipt sends the receipt to the owner's email.
func (m *Mailer) Receipt(ctx context.Context, to domain.Principal, r domain.Receipt) error {
	l := zerolog.Ctx(ctx)

	if to.Email == "" {
		return nil
	}

	e := Compose(m.from, to, r)

	if err := m.send(e, m.addr, m.auth); err != nil {
		return fmt.Errorf("send receipt %s: %w", r.Reference, err)
	}

	l.Info().Str("reference", r.Reference).Msg("receipt sent")

	return nil
}

// Compose builds the receipt email.
func Compose(from string, to domain.Principal, r domain.Receipt) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{to.Email}

	var action string

	switch r.Kind {
	case domain.IntentDeposit:
		e.Subject = "Deposit Notification"
		action = fmt.Sprintf("Your account %s has been credited with %s.", r.Account, moneypkg.String(r.Amount))
	case domain.IntentWithdraw:
		e.Subject = "Withdrawal Notification"
		action = fmt.Sprintf("An amount of %s has been withdrawn from your account %s.", moneypkg.String(r.Amount), r.Account)
	default:
		e.Subject = "Transfer Notification"
		action = fmt.Sprintf("You transferred %s from your account %s to %s.", moneypkg.String(r.Amount), r.Account, r.Counterparty)
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Dear %s,\n\n", to.Name)
	sb.WriteString(action + "\n")
	fmt.Fprintf(&sb, "Reference: %s\n", r.Reference)
	fmt.Fprintf(&sb, "Current balance: %s\n", moneypkg.String(r.NewBalance))
	sb.WriteString("\nBest regards,\nMini Bank")

	e.Text = []byte(sb.String())

	return e
}
