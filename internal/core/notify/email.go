package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gowvp/roadeye/internal/metrics"
	"github.com/wneessen/go-mail"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	UseSSL   bool // 465 端口使用隐式 TLS
}

// Email 通过 SMTP 发送告警邮件
type Email struct {
	cfg  EmailConfig
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewEmail(cfg EmailConfig) *Email {
	e := Email{cfg: cfg}
	e.send = e.sendSMTP
	return &e
}

// Enabled 是否配置了发件服务器与收件人
func (e *Email) Enabled() bool {
	return e.cfg.Host != "" && e.cfg.Port > 0 && e.cfg.From != "" && len(e.cfg.To) > 0
}

// Notify implements [Notifier].
func (e *Email) Notify(ctx context.Context, a Alert) error {
	err := e.Send(ctx, Subject(a.Severity), Body(a))
	metrics.ObserveNotify("email", err)
	return err
}

// Send 发送纯文本邮件
func (e *Email) Send(ctx context.Context, subject, body string) error {
	if !e.Enabled() {
		return fmt.Errorf("email: %w", ErrNotConfigured)
	}
	msg, err := e.buildMessage(subject, body)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	if err := e.send(ctx, msg); err != nil {
		return fmt.Errorf("email send failed: to='%s', subject='%s', error=%w", strings.Join(e.cfg.To, ","), subject, err)
	}
	return nil
}

func (e *Email) buildMessage(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(e.cfg.To...); err != nil {
		return nil, err
	}
	msg.Subject(headerLine(subject))
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerLine 邮件头只允许单行
func headerLine(s string) string {
	return headerBreaks.Replace(s)
}

// sendSMTP 465 端口直接建立 TLS 连接，其余端口按服务端能力尝试 STARTTLS
func (e *Email) sendSMTP(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithTimeout(15 * time.Second),
	}
	if e.cfg.UseSSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if e.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}
	c, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return c.DialAndSendWithContext(ctx, msg)
}

// Subject 告警邮件标题
func Subject(severity string) string {
	if severity == "" {
		severity = "Unknown"
	}
	return fmt.Sprintf("Accident Alert - Severity (%s)", severity)
}

// Body 告警邮件正文
func Body(a Alert) string {
	location := a.Location
	if location == "" {
		location = "Unknown location"
	}
	severity := a.Severity
	if severity == "" {
		severity = "Unknown"
	}

	var b strings.Builder
	b.WriteString("Accident Alert\n\n")
	fmt.Fprintf(&b, "Severity: %s\n", severity)
	if a.SeverityPercentage > 0 {
		fmt.Fprintf(&b, "Confidence: %d%%\n", a.SeverityPercentage)
	}
	fmt.Fprintf(&b, "Location: %s\n", location)
	fmt.Fprintf(&b, "Latitude: %v\n", a.Latitude)
	fmt.Fprintf(&b, "Longitude: %v\n\n", a.Longitude)
	fmt.Fprintf(&b, "Google Maps Link:\n%s\n\n", a.MapsLink())
	if a.ImageURL != "" {
		fmt.Fprintf(&b, "Evidence:\n%s\n\n", a.ImageURL)
	}
	b.WriteString("Accident Detection System")
	return b.String()
}
