package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-signals/internal/alert"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
)

// SMTP connection security modes.
const (
	SecuritySSL      = "SSL"
	SecuritySTARTTLS = "STARTTLS"
	SecurityNone     = "NONE"
)

// DefaultSubjectPrefix starts every mail subject.
const DefaultSubjectPrefix = "[FTU-DSTC Alerts] "

// transient SMTP reply codes
var transientSMTPCodes = map[int]bool{421: true, 450: true, 451: true, 452: true}

type EmailConfig struct {
	Host          string
	Port          int
	Security      string
	Username      string
	Password      string
	From          string
	To            []string
	SubjectPrefix string
	// Env is appended to the subject in brackets when set.
	Env     string
	Timeout time.Duration
}

// smtpClient is the subset of *smtp.Client used to send one message.
type smtpClient interface {
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// EmailChannel sends one plain text mail per alert.
type EmailChannel struct {
	config EmailConfig
	dial   func(ctx context.Context) (smtpClient, error)
}

var _ Channel = (*EmailChannel)(nil)

func NewEmailChannel(config EmailConfig) (*EmailChannel, error) {
	if config.Host == "" || config.From == "" || len(config.To) == 0 {
		return nil, errors.New(errors.ErrCodeChannelUnavailable, "email channel needs host, sender and recipients")
	}

	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	c := &EmailChannel{config: config}
	c.dial = c.dialSMTP

	return c, nil
}

func (c *EmailChannel) Name() string {
	return "email"
}

func (c *EmailChannel) Send(ctx context.Context, a types.Alert) (Response, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return Response{Body: err.Error()}, classifySMTPError(err)
	}
	defer client.Close()

	if c.config.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)); err != nil {
			return smtpResponse(err), classifySMTPError(err)
		}
	}

	if err := client.Mail(c.config.From); err != nil {
		return smtpResponse(err), classifySMTPError(err)
	}

	for _, to := range c.config.To {
		if err := client.Rcpt(to); err != nil {
			return smtpResponse(err), classifySMTPError(err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return smtpResponse(err), classifySMTPError(err)
	}

	if _, err := w.Write([]byte(c.Message(a))); err != nil {
		return smtpResponse(err), classifySMTPError(err)
	}

	if err := w.Close(); err != nil {
		return smtpResponse(err), classifySMTPError(err)
	}

	if err := client.Quit(); err != nil {
		return smtpResponse(err), classifySMTPError(err)
	}

	return Response{Code: 250, Body: "OK"}, nil
}

// Subject is prefix + "TICKER EVENT [env]".
func (c *EmailChannel) Subject(a types.Alert) string {
	prefix := c.config.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	subject := fmt.Sprintf("%s%s %s", prefix, a.Ticker, a.EventType)
	if c.config.Env != "" {
		subject += " [" + c.config.Env + "]"
	}

	return subject
}

// Message renders the RFC 5322 message with headers.
func (c *EmailChannel) Message(a types.Alert) string {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", c.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.config.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", c.Subject(a)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Ticker: %s\r\n", a.Ticker)
	fmt.Fprintf(&b, "Event: %s\r\n", a.EventType)
	fmt.Fprintf(&b, "Window: %s\r\n", a.When)
	fmt.Fprintf(&b, "Price: %s\r\n", alert.FormatPrice(a.Price))
	fmt.Fprintf(&b, "Reason: %s\r\n", a.Explain)

	return b.String()
}

func (c *EmailChannel) dialSMTP(ctx context.Context) (smtpClient, error) {
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	dialer := &net.Dialer{Timeout: c.config.Timeout}
	tlsConfig := &tls.Config{ServerName: c.config.Host}

	var (
		conn net.Conn
		err  error
	)

	if strings.EqualFold(c.config.Security, SecuritySSL) {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, c.config.Host)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to start smtp session: %w", err)
	}

	if strings.EqualFold(c.config.Security, SecuritySTARTTLS) {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()

			return nil, fmt.Errorf("failed to start tls: %w", err)
		}
	}

	return client, nil
}

func smtpResponse(err error) Response {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return Response{Code: protoErr.Code, Body: protoErr.Msg}
	}

	return Response{Body: err.Error()}
}

// classifySMTPError treats 421/450/451/452 replies and network failures as transient.
func classifySMTPError(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if transientSMTPCodes[protoErr.Code] {
			return Transient(err, 0)
		}

		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err, 0)
	}

	return err
}
