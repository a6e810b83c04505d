// Package smtp submits composed messages to the account's outbound relay.
// Delivery is at-least-once: the caller retries on transient failures, so
// a crash between acceptance and acknowledgment can duplicate a send.
package smtp

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime/v2"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/mail"
)

// Sender submits messages over implicit TLS (port 465) or STARTTLS.
type Sender struct {
	cfg config.SMTP
}

// NewSender returns a Sender with the given configuration.
func NewSender(cfg config.SMTP) *Sender {
	return &Sender{cfg: cfg}
}

// BuildMIME renders the outgoing message to wire format.  The generated
// Message-ID is embedded so the copy appended to Sent matches what was
// transmitted.
func BuildMIME(msg *mail.Outgoing) ([]byte, error) {
	b := enmime.Builder().
		From(msg.FromName, msg.From).
		Subject(msg.Subject).
		Header("Message-ID", generateMessageID(msg.From)).
		Text([]byte(msg.Text))
	if msg.HTML != "" {
		b = b.HTML([]byte(msg.HTML))
	}
	for _, to := range msg.To {
		b = b.To("", to)
	}
	for _, cc := range msg.CC {
		b = b.CC("", cc)
	}
	for _, bcc := range msg.BCC {
		b = b.BCC("", bcc)
	}
	if msg.InReplyTo != "" {
		b = b.Header("In-Reply-To", msg.InReplyTo).
			Header("References", msg.InReplyTo)
	}
	for _, a := range msg.Attachments {
		b = b.AddAttachment(a.Content, a.MimeType, a.FileName)
	}
	part, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building message: %w: %v", mail.ErrDataQuality, err)
	}
	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return buf.Bytes(), nil
}

func generateMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// Send renders the message and submits it, returning the raw bytes that
// went over the wire so the caller can file them into the Sent folder.
func (s *Sender) Send(a *mail.Account, password string, msg *mail.Outgoing) ([]byte, error) {
	raw, err := BuildMIME(msg)
	if err != nil {
		return nil, err
	}
	recipients := make([]string, 0, len(msg.To)+len(msg.CC)+len(msg.BCC))
	recipients = append(recipients, msg.To...)
	recipients = append(recipients, msg.CC...)
	recipients = append(recipients, msg.BCC...)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients: %w", mail.ErrDataQuality)
	}

	c, err := s.connect(a)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	auth := smtp.PlainAuth("", a.Username, password, a.SMTPHost)
	if err := c.Auth(auth); err != nil {
		return nil, classify("authenticating", err)
	}
	if err := c.Mail(msg.From); err != nil {
		return nil, classify("setting sender", err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return nil, classify(fmt.Sprintf("adding recipient %s", rcpt), err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return nil, classify("opening data stream", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, classify("writing message", err)
	}
	if err := w.Close(); err != nil {
		return nil, classify("finishing message", err)
	}
	if err := c.Quit(); err != nil {
		return nil, classify("closing session", err)
	}
	return raw, nil
}

// connect dials the relay.  Port 465 is implicit TLS; anything else opens
// plain and upgrades with STARTTLS before authenticating.
func (s *Sender) connect(a *mail.Account) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", a.SMTPHost, a.SMTPPort)
	tlsCfg := &tls.Config{ServerName: a.SMTPHost, MinVersion: tls.VersionTLS12}

	conn, err := net.DialTimeout("tcp", addr, s.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w: %v", addr, mail.ErrTransient, err)
	}
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout))

	if a.SMTPPort == 465 {
		conn = tls.Client(conn, tlsCfg)
	}
	c, err := smtp.NewClient(conn, a.SMTPHost)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("starting session with %s: %w: %v", addr, mail.ErrTransient, err)
	}
	if a.SMTPPort != 465 {
		if err := c.StartTLS(tlsCfg); err != nil {
			c.Close()
			return nil, classify("starting TLS", err)
		}
	}
	return c, nil
}

// classify wraps an SMTP error with its retry category.  Authentication
// rejections map to mail.ErrAuth; 4xx responses and network failures are
// transient; other 5xx responses are permanent.
func classify(op string, err error) error {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch {
		case proto.Code == 530 || proto.Code == 534 || proto.Code == 535 || proto.Code == 538:
			return fmt.Errorf("%s: %w: %v", op, mail.ErrAuth, err)
		case proto.Code >= 400 && proto.Code < 500:
			return fmt.Errorf("%s: %w: %v", op, mail.ErrTransient, err)
		}
		return fmt.Errorf("%s: %v", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, mail.ErrTransient, err)
}
