package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
)

// SMTP sends reminder emails through a plain SMTP relay. Messages are
// composed as single-part text/plain MIME.
type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Now      func() time.Time
}

func (m SMTP) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Send composes and delivers one message. The SMTP dialog honors
// STARTTLS when the server advertises it.
func (m SMTP) Send(ctx context.Context, to, subject, body string) error {
	if m.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	msg, err := m.compose(to, subject, body)
	if err != nil {
		return fmt.Errorf("compose message to %s: %w", to, err)
	}

	addr := m.Host + ":" + m.Port
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, m.From, []string{to}, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m SMTP) compose(to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer
	var h mail.Header
	h.SetDate(m.now())
	h.SetAddressList("From", []*mail.Address{{Address: m.From}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
