package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.Error(t, err)
	require.Contains(t, err.Error(), "host is required")

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "port is required")

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, mailer)
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{
		To:      []string{"member@example.com"},
		Subject: "Reminder",
		Body:    "Your session starts soon",
	})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "pods@example.com",
	})
	require.NoError(t, err)

	sm, ok := mailer.(*smtpMailer)
	require.True(t, ok)
	require.Equal(t, 10*time.Second, sm.cfg.Timeout)
}

func TestSMTPMailerEnvelopeValidation(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{From: "pods@example.com", To: []string{"  ", "\t"}})
	require.ErrorContains(t, err, "at least one recipient")

	err = mailer.Send(context.Background(), Message{To: []string{"member@example.com"}})
	require.ErrorContains(t, err, "sender address is required")

	err = mailer.Send(context.Background(), Message{From: "invalid-from", To: []string{"member@example.com"}})
	require.ErrorContains(t, err, "invalid from address")

	err = mailer.Send(context.Background(), Message{From: "pods@example.com", To: []string{"member@example.com", "bad-address"}})
	require.ErrorContains(t, err, "invalid recipient address")
}

type fakeSession struct {
	from  string
	rcpts []string
	body  bytes.Buffer
	quit  bool
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (f *fakeSession) Auth(smtp.Auth) error            { return nil }
func (f *fakeSession) Mail(from string) error          { f.from = from; return nil }
func (f *fakeSession) Rcpt(to string) error            { f.rcpts = append(f.rcpts, to); return nil }
func (f *fakeSession) Data() (io.WriteCloser, error)   { return nopWriteCloser{&f.body}, nil }
func (f *fakeSession) Quit() error                     { f.quit = true; return nil }
func (f *fakeSession) Close() error                    { return nil }

func TestSMTPMailerSendWritesEnvelopeAndBody(t *testing.T) {
	session := &fakeSession{}
	mailer := &smtpMailer{
		cfg: SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 25, From: "pods@example.com", Timeout: time.Second},
		dial: func(context.Context, SMTPSettings) (smtpSession, error) {
			return session, nil
		},
	}

	err := mailer.Send(context.Background(), Message{
		To:       []string{"a@example.com", "a@example.com", "b@example.com"},
		Subject:  "Pod ready",
		Body:     "Welcome aboard",
		Priority: "high",
	})
	require.NoError(t, err)
	require.Equal(t, "pods@example.com", session.from)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, session.rcpts)
	require.True(t, session.quit)
	require.Contains(t, session.body.String(), "X-Priority: 1")
	require.True(t, strings.HasSuffix(session.body.String(), "Welcome aboard"))
}

func TestSMTPMailerSendPropagatesDialError(t *testing.T) {
	mailer := &smtpMailer{
		cfg: SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 25, From: "pods@example.com", Timeout: time.Second},
		dial: func(context.Context, SMTPSettings) (smtpSession, error) {
			return nil, errors.New("connection refused")
		},
	}
	err := mailer.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.ErrorContains(t, err, "connection refused")
}

func TestFormatMessageSanitisesSubject(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, Message{Subject: "Subject\r\nBreak", Body: "Body"})
	require.Contains(t, content, "From: from@example.com")
	require.Contains(t, content, "Subject: Subject  Break")
	require.NotContains(t, content, "X-Priority")
	require.True(t, strings.HasSuffix(content, "Body"))
}

func TestRecorderKeepsMessages(t *testing.T) {
	rec := &Recorder{}
	require.NoError(t, rec.Send(context.Background(), Message{Subject: "one"}))
	rec.Err = errors.New("down")
	require.Error(t, rec.Send(context.Background(), Message{Subject: "two"}))

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "two", msgs[1].Subject)
}
