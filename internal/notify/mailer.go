package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"marketplace-bidding/internal/config"
)

// SMTPClient is the part of *mail.Client the mailer needs
type SMTPClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends decision emails over SMTP
type Mailer struct {
	host     string
	from     string
	currency string
	client   SMTPClient
}

// NewMailer builds a mailer from cfg. client defaults to a go-mail client
// for cfg.Host using STARTTLS when offered and PLAIN auth when a username is
// set.
func NewMailer(cfg config.SMTPConfig, currency string, client SMTPClient) (*Mailer, error) {
	if client == nil {
		opts := []mail.Option{mail.WithTLSPolicy(mail.TLSOpportunistic)}
		if cfg.Port > 0 {
			opts = append(opts, mail.WithPort(cfg.Port))
		}
		if cfg.Username != "" {
			opts = append(opts,
				mail.WithSMTPAuth(mail.SMTPAuthPlain),
				mail.WithUsername(cfg.Username),
				mail.WithPassword(cfg.Password))
		}
		c, err := mail.NewClient(cfg.Host, opts...)
		if err != nil {
			return nil, fmt.Errorf("notify: smtp client for %q: %w", cfg.Host, err)
		}
		client = c
	}
	if currency == "" {
		currency = "ksh"
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &Mailer{host: cfg.Host, from: from, currency: currency, client: client}, nil
}

// Send delivers msg. The dial and the SMTP exchange are bound to ctx.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.Email, "\r\n") || strings.ContainsAny(msg.Status, "\r\n") {
		return fmt.Errorf("%w: header injection in message", ErrSendFailed)
	}

	em, err := m.compose(msg)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, em); err != nil {
		return fmt.Errorf("%w: smtp %s: %v", ErrSendFailed, m.host, err)
	}
	return nil
}

func (m *Mailer) compose(msg Message) (*mail.Msg, error) {
	em := mail.NewMsg()
	if err := em.From(m.from); err != nil {
		return nil, fmt.Errorf("%w: sender %q: %v", ErrSendFailed, m.from, err)
	}
	if err := em.To(msg.Email); err != nil {
		return nil, fmt.Errorf("%w: recipient %q: %v", ErrSendFailed, msg.Email, err)
	}
	em.Subject(msg.Subject())
	em.SetBodyString(mail.TypeTextPlain, msg.Body(m.currency))
	return em, nil
}
