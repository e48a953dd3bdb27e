package notify

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNotifyNumericChat(t *testing.T) {
	s := &fakeSender{}
	n := NewWithSender(s, "-100123", quietLogger())

	ok, err := n.Notify(context.Background(), 42, "anna", "<b>hi</b> & bye")
	if err != nil || !ok {
		t.Fatalf("Notify() = %v, %v", ok, err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(s.sent))
	}
	msg := s.sent[0].(tgbotapi.MessageConfig)
	if msg.ChatID != -100123 || msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("ChatID = %d, ParseMode = %q", msg.ChatID, msg.ParseMode)
	}
	if !strings.Contains(msg.Text, "&lt;b&gt;hi&lt;/b&gt; &amp; bye") {
		t.Errorf("Text not escaped: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "anna (42)") {
		t.Errorf("Text missing sender: %q", msg.Text)
	}
}

func TestNotifyChannel(t *testing.T) {
	s := &fakeSender{}
	n := NewWithSender(s, "@kiberone_directors", quietLogger())

	if ok, err := n.Notify(context.Background(), 1, "", "hello"); err != nil || !ok {
		t.Fatalf("Notify() = %v, %v", ok, err)
	}
	msg := s.sent[0].(tgbotapi.MessageConfig)
	if msg.ChannelUsername != "@kiberone_directors" {
		t.Errorf("ChannelUsername = %q", msg.ChannelUsername)
	}
}

func TestNotifyFailures(t *testing.T) {
	s := &fakeSender{err: errors.New("blocked")}
	n := NewWithSender(s, "1", quietLogger())
	if ok, err := n.Notify(context.Background(), 1, "", "hello"); err == nil || ok {
		t.Errorf("Notify() with failing sender = %v, %v", ok, err)
	}

	bad := NewWithSender(&fakeSender{}, "directors", quietLogger())
	if ok, err := bad.Notify(context.Background(), 1, "", "hello"); err == nil || ok {
		t.Errorf("Notify() with invalid chat = %v, %v", ok, err)
	}
}

func TestDisabledNotifier(t *testing.T) {
	n, err := New("", "", quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if n.Enabled() {
		t.Error("Enabled() = true without token")
	}
	if ok, err := n.Notify(context.Background(), 1, "", "hello"); err != nil || ok {
		t.Errorf("Notify() = %v, %v; want false, nil", ok, err)
	}
}
