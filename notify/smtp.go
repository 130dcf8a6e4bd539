// Package notify delivers price alerts by e-mail.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"strings"

	"gopkg.in/gomail.v2"
)

// Message is one alert. ImagePath, when set, is embedded inline.
type Message struct {
	To        string
	Subject   string
	Body      string
	ImagePath string
}

// NotificationError wraps every delivery failure. Callers treat it as
// non-fatal.
type NotificationError struct {
	To  string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.To, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

type SMTPNotifierOptions struct {
	Host     string // default smtp.gmail.com
	Port     int    // default 587 (STARTTLS)
	Username string // sender address
	Password string // sender secret (app password)
	From     string // defaults to Username
}

// SMTPNotifier sends alerts through an authenticated SMTP relay.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPNotifier(opts SMTPNotifierOptions) (*SMTPNotifier, error) {
	if strings.TrimSpace(opts.Username) == "" || opts.Password == "" {
		return nil, errors.New("smtp username and password are required")
	}
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "smtp.gmail.com"
	}
	port := opts.Port
	if port <= 0 {
		port = 587
	}
	from := strings.TrimSpace(opts.From)
	if from == "" {
		from = opts.Username
	}
	return &SMTPNotifier{
		dialer: gomail.NewDialer(host, port, opts.Username, opts.Password),
		from:   from,
	}, nil
}

// Send blocks until the relay accepted the message or ctx is done.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return &NotificationError{To: msg.To, Err: errors.New("empty recipient")}
	}
	if msg.ImagePath != "" {
		if _, err := os.Stat(msg.ImagePath); err != nil {
			return &NotificationError{To: msg.To, Err: err}
		}
	}
	m := BuildMessage(n.from, msg)

	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return &NotificationError{To: msg.To, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &NotificationError{To: msg.To, Err: ctx.Err()}
	}
}

// ProofContentID names the embedded proof image. Proof file names come
// from deck titles and may hold spaces, which a Content-ID cannot.
const ProofContentID = "proof-image"

// BuildMessage renders msg as a plain text part with an HTML alternative
// that shows the embedded image.
func BuildMessage(from string, msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	var b strings.Builder
	b.WriteString("<html><body>")
	for _, line := range strings.Split(msg.Body, "\n") {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>\n")
	}
	if msg.ImagePath != "" {
		m.Embed(msg.ImagePath, gomail.SetHeader(map[string][]string{
			"Content-ID": {"<" + ProofContentID + ">"},
		}))
		fmt.Fprintf(&b, `<img src="cid:%s" alt="proof">`, ProofContentID)
	}
	b.WriteString("</body></html>")
	m.AddAlternative("text/html", b.String())
	return m
}
