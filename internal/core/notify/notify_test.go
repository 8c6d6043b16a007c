package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/go-mail"
)

type notifierFunc func(context.Context, Alert) error

func (f notifierFunc) Notify(ctx context.Context, a Alert) error { return f(ctx, a) }

func testAlert() Alert {
	return Alert{
		AccidentID:         42,
		VideoName:          "crash.mp4",
		Severity:           "High",
		SeverityPercentage: 82,
		Location:           "Whitefield, Bengaluru",
		City:               "Whitefield",
		Latitude:           12.9698,
		Longitude:          77.75,
		ImageURL:           "http://127.0.0.1:8080/static/evidence/20250105/accident_crash_x.jpg",
		Date:               time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC),
	}
}

func TestSubjectAndBody(t *testing.T) {
	a := testAlert()
	if s := Subject(a.Severity); s != "Accident Alert - Severity (High)" {
		t.Fatalf("subject = %s", s)
	}
	if s := Subject(""); s != "Accident Alert - Severity (Unknown)" {
		t.Fatalf("subject = %s", s)
	}

	body := Body(a)
	for _, want := range []string{
		"Severity: High",
		"Location: Whitefield, Bengaluru",
		"Latitude: 12.9698",
		"Longitude: 77.75",
		"https://www.google.com/maps/search/?api=1&query=12.9698,77.75",
		a.ImageURL,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
	if !strings.Contains(Body(Alert{}), "Location: Unknown location") {
		t.Fatal("expect default location")
	}
}

// renderMessage 以 SMTP DATA 的形式输出邮件，返回头部与正文
func renderMessage(t *testing.T, msg *mail.Msg) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	header, body, ok := strings.Cut(buf.String(), "\r\n\r\n")
	if !ok {
		t.Fatalf("message without header/body separator: %q", buf.String())
	}
	return header, body
}

func TestEmailNotify(t *testing.T) {
	e := NewEmail(EmailConfig{
		Host: "smtp.example.com", Port: 465, From: "alert@example.com",
		To: []string{"ops@example.com"}, UseSSL: true,
	})
	var got *mail.Msg
	e.send = func(_ context.Context, msg *mail.Msg) error {
		got = msg
		return nil
	}
	if err := e.Notify(context.Background(), testAlert()); err != nil {
		t.Fatal(err)
	}
	header, body := renderMessage(t, got)
	if !strings.Contains(header, "To: <ops@example.com>") {
		t.Fatalf("header = %s", header)
	}
	if !strings.Contains(header, "Subject: Accident Alert - Severity (High)") {
		t.Fatalf("header = %s", header)
	}
	if !strings.Contains(body, "Accident Alert") || !strings.Contains(body, "Severity: High") {
		t.Fatalf("body = %s", body)
	}
}

func TestEmailSubjectHeaderInjection(t *testing.T) {
	e := NewEmail(EmailConfig{
		Host: "smtp.example.com", Port: 465, From: "alert@example.com",
		To: []string{"ops@example.com"}, UseSSL: true,
	})
	var got *mail.Msg
	e.send = func(_ context.Context, msg *mail.Msg) error {
		got = msg
		return nil
	}
	a := testAlert()
	a.Severity = "High)\r\nBcc: attacker@evil\r\nX-Injected: yes\r\n\r\nforged body ("
	if err := e.Notify(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	header, _ := renderMessage(t, got)
	for _, line := range strings.Split(header, "\r\n") {
		if strings.HasPrefix(line, "Bcc:") || strings.HasPrefix(line, "X-Injected:") {
			t.Fatalf("injected header line %q in:\n%s", line, header)
		}
	}
}

func TestEmailNotConfigured(t *testing.T) {
	e := NewEmail(EmailConfig{Host: "smtp.example.com", Port: 465})
	if err := e.Notify(context.Background(), testAlert()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expect ErrNotConfigured, got %v", err)
	}
}

func TestEmailSendError(t *testing.T) {
	e := NewEmail(EmailConfig{Host: "h", Port: 25, From: "a@b", To: []string{"c@d"}})
	sendErr := errors.New("535 auth failed")
	e.send = func(context.Context, *mail.Msg) error { return sendErr }
	if err := e.Send(context.Background(), "s", "b"); !errors.Is(err, sendErr) {
		t.Fatalf("expect wrapped send error, got %v", err)
	}
}

func TestMulti(t *testing.T) {
	var called []string
	errA := errors.New("a down")
	m := Multi{
		notifierFunc(func(context.Context, Alert) error { called = append(called, "a"); return errA }),
		notifierFunc(func(context.Context, Alert) error { called = append(called, "b"); return nil }),
	}
	err := m.Notify(context.Background(), testAlert())
	if !errors.Is(err, errA) {
		t.Fatalf("expect joined error, got %v", err)
	}
	if strings.Join(called, ",") != "a,b" {
		t.Fatalf("all notifiers should run, got %v", called)
	}
	if err := (Multi{}).Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("empty multi = %v", err)
	}
}

func TestNewKafkaMessage(t *testing.T) {
	msg, err := NewKafkaMessage("accident-alerts", testAlert())
	if err != nil {
		t.Fatal(err)
	}
	if *msg.TopicPartition.Topic != "accident-alerts" || string(msg.Key) != "42" {
		t.Fatalf("topic=%s key=%s", *msg.TopicPartition.Topic, msg.Key)
	}
	var got Alert
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.Severity != "High" || got.SeverityPercentage != 82 || !got.Date.Equal(testAlert().Date) {
		t.Fatalf("payload = %+v", got)
	}
}

func TestKafkaConfigMap(t *testing.T) {
	m := *KafkaConfig{BootstrapServers: "localhost:9092", Topic: "t"}.ConfigMap()
	if m["bootstrap.servers"] != "localhost:9092" {
		t.Fatalf("servers = %v", m["bootstrap.servers"])
	}
	if _, ok := m["sasl.mechanism"]; ok {
		t.Fatal("sasl should be omitted when not configured")
	}

	m = *KafkaConfig{BootstrapServers: "b", SecurityProtocol: "SASL_SSL", SASLMechanism: "PLAIN", SASLUsername: "u"}.ConfigMap()
	if m["security.protocol"] != "SASL_SSL" || m["sasl.username"] != "u" {
		t.Fatalf("config = %v", m)
	}
}

func TestNewKafkaNotConfigured(t *testing.T) {
	if _, err := NewKafka(KafkaConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expect ErrNotConfigured, got %v", err)
	}
}
