package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel/attribute"

	"github.com/psantana5/pgobserver/internal/config"
	"github.com/psantana5/pgobserver/pkg/logging"
	"github.com/psantana5/pgobserver/pkg/tracing"
)

// SMTPNotifier delivers a Request over one implicit-TLS SMTP session.
// Every failure collapses to false; nothing is retried or queued.
type SMTPNotifier struct {
	cfg       config.EmailConfig
	logger    *logging.Logger
	tlsConfig *tls.Config
}

// Option configures an SMTPNotifier
type Option func(*SMTPNotifier)

// WithTLSConfig replaces the TLS settings of the SMTPS connection,
// e.g. to trust a relay signed by a private CA.
func WithTLSConfig(c *tls.Config) Option {
	return func(n *SMTPNotifier) { n.tlsConfig = c }
}

// NewSMTPNotifier creates a notifier for cfg
func NewSMTPNotifier(cfg config.EmailConfig, logger *logging.Logger, opts ...Option) *SMTPNotifier {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultSMTPTimeout
	}
	n := &SMTPNotifier{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Message renders req as a UTF-8 text/plain email from the sender to all recipients
func (n *SMTPNotifier) Message(req Request) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8))
	if err := msg.From(n.cfg.Sender()); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.cfg.Sender(), err)
	}
	if err := msg.To(n.cfg.Recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	msg.Subject(req.Subject)
	msg.SetBodyString(mail.TypeTextPlain, req.Body)
	return msg, nil
}

// Send connects, authenticates and submits req. Returns true if the server accepted it.
func (n *SMTPNotifier) Send(ctx context.Context, req Request) bool {
	fields := n.cfg.LogFields()
	fields["subject"] = req.Subject

	msg, err := n.Message(req)
	if err != nil {
		n.logger.Error(fmt.Sprintf("Notification not sent: %v", err), fields)
		return false
	}

	if n.logger.Enabled(logging.DEBUG) {
		var buf bytes.Buffer
		if _, err := msg.WriteTo(&buf); err == nil {
			n.logger.Debug("Notification message:\n" + buf.String())
		}
	}

	client, err := mail.NewClient(n.cfg.Server, n.clientOptions()...)
	if err != nil {
		n.logger.Error(fmt.Sprintf("Notification not sent: %v", err), fields)
		return false
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		tracing.SetError(ctx, err)
		n.logger.Error(fmt.Sprintf("Notification not sent: %v", err), fields)
		return false
	}

	tracing.AddEvent(ctx, "smtp.accepted", attribute.String("server", n.cfg.Address()))
	n.logger.Info("Notification sent", fields)
	return true
}

// clientOptions: implicit TLS, username/password auth with whichever
// mechanism the server offers (PLAIN, LOGIN, CRAM-MD5, SCRAM)
func (n *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		mail.WithUsername(n.cfg.Username),
		mail.WithPassword(n.cfg.Password),
		mail.WithTimeout(n.cfg.Timeout),
	}
	if n.tlsConfig != nil {
		opts = append(opts, mail.WithTLSConfig(n.tlsConfig))
	}
	return opts
}
