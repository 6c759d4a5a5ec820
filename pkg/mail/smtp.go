package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/logger"
)

// SMTPConfig carries the outbound transport settings. Port 465 uses implicit
// TLS; any other port negotiates STARTTLS.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // defaults to Username
}

// SMTPSender sends HTML mail through an authenticated SMTP relay. It
// satisfies Sender.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates the config and returns a sender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("incomplete smtp configuration")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send delivers one HTML message, retrying once on transport failure.
func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	msg := buildMessage(s.cfg.From, to, subject, html)

	err := retry.Do(
		func() error { return s.deliver(to, msg) },
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(time.Second),
		retry.OnRetry(func(_ uint, err error) {
			logger.G(ctx).WithError(err).WithField("to", to).Warn("retrying email send")
		}),
	)
	return errors.Wrapf(err, "failed to send email to %s", to)
}

func (s *SMTPSender) deliver(to string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	var client *smtp.Client
	if s.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return errors.Wrap(err, "tls dial failed")
		}
		client, err = smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return errors.Wrap(err, "smtp handshake failed")
		}
	} else {
		var err error
		client, err = smtp.Dial(addr)
		if err != nil {
			return errors.Wrap(err, "smtp dial failed")
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return errors.Wrap(err, "starttls failed")
		}
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return errors.Wrap(err, "smtp auth failed")
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return errors.Wrap(err, "mail from rejected")
	}
	if err := client.Rcpt(to); err != nil {
		return errors.Wrap(err, "recipient rejected")
	}

	w, err := client.Data()
	if err != nil {
		return errors.Wrap(err, "data command failed")
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return errors.Wrap(err, "failed to write message body")
	}
	return errors.Wrap(w.Close(), "failed to finish message")
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Message-ID: <%s@claimflow>\r\n", uuid.NewString())
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")
	return []byte(b.String())
}
