package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/rbacadmin/internal/auth"
	jobmetrics "github.com/odyssey-erp/rbacadmin/internal/jobs"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers rendered mail.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Render turns a mail request into subject and body text.
func Render(mail auth.Mail) (Message, error) {
	name := mail.Name
	if name == "" {
		name = "there"
	}
	switch mail.Kind {
	case auth.MailVerifyEmail:
		return Message{
			To:      mail.To,
			Subject: "Verify your email address",
			Body:    fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening the link below:\n\n%s\n\nThe link expires shortly. If you did not sign up, ignore this message.\n", name, mail.Link),
		}, nil
	case auth.MailPasswordReset:
		return Message{
			To:      mail.To,
			Subject: "Reset your password",
			Body:    fmt.Sprintf("Hi %s,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\nIf you did not request this, you can ignore this message.\n", name, mail.Link),
		}, nil
	default:
		return Message{}, fmt.Errorf("jobs: unknown mail kind %q", mail.Kind)
	}
}

// SendEmailJob processes TaskTypeSendEmail tasks.
type SendEmailJob struct {
	Sender  Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle renders and sends one message. Malformed payloads are not retried.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("send email: handler not configured")
	}
	run := j.Metrics.Track(TaskTypeSendEmail)
	var mail auth.Mail
	if err := json.Unmarshal(t.Payload(), &mail); err != nil {
		return run.End(fmt.Errorf("send email: decode payload: %v: %w", err, asynq.SkipRetry))
	}
	msg, err := Render(mail)
	if err != nil {
		return run.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	if err := run.End(j.Sender.Send(ctx, msg)); err != nil {
		j.logger().Warn("send email", slog.String("kind", string(mail.Kind)), slog.Any("error", err))
		return err
	}
	j.Metrics.MailDelivered(string(mail.Kind))
	j.logger().Info("email sent", slog.String("kind", string(mail.Kind)))
	return nil
}

func (j *SendEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the message.
func (s LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail (log sender)", slog.String("to", msg.To), slog.String("subject", msg.Subject), slog.String("body", msg.Body))
	return nil
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender builds an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// Send delivers msg.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	var a smtp.Auth
	if s.cfg.Username != "" {
		host, _, err := net.SplitHostPort(s.cfg.Addr)
		if err != nil {
			return fmt.Errorf("smtp: addr: %w", err)
		}
		a = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	if err := s.send(s.cfg.Addr, a, s.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}
