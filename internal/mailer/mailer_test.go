package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"eventcert/internal/config"
)

func TestBrevoSend(t *testing.T) {
	var got brevoPayload
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<1@brevo>"}`))
	}))
	defer srv.Close()

	s := NewBrevoSender(config.MailConfig{
		BrevoEndpoint: srv.URL,
		BrevoAPIKey:   "key-123",
		SenderEmail:   "noreply@example.org",
		SenderName:    "Certificates",
	}, nil)

	err := s.Send(context.Background(), Message{
		To:          "ada@example.com",
		Subject:     "Your certificate",
		HTML:        "<p>Hi</p>",
		Attachments: []Attachment{{Name: "Certificate.pdf", Content: []byte("%PDF-1.3")}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if apiKey != "key-123" {
		t.Fatalf("api key header = %q", apiKey)
	}
	if got.To[0].Email != "ada@example.com" || got.To[0].Name != "ada" {
		t.Fatalf("unexpected recipient %+v", got.To)
	}
	if len(got.Attachment) != 1 || got.Attachment[0].Name != "Certificate.pdf" {
		t.Fatalf("unexpected attachments %+v", got.Attachment)
	}
	if b, _ := base64.StdEncoding.DecodeString(got.Attachment[0].Content); string(b) != "%PDF-1.3" {
		t.Fatalf("attachment content not base64 encoded")
	}
}

func TestBrevoRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_parameter"}`))
	}))
	defer srv.Close()

	s := NewBrevoSender(config.MailConfig{BrevoEndpoint: srv.URL}, nil)
	if err := s.Send(context.Background(), Message{To: "a@b.c"}); err == nil {
		t.Fatalf("expected non-201 to fail")
	}
}

func TestInvalidRecipient(t *testing.T) {
	for _, s := range []Sender{
		NewBrevoSender(config.MailConfig{BrevoEndpoint: "http://127.0.0.1:0"}, nil),
		NewLogSender(nil),
	} {
		if err := s.Send(context.Background(), Message{To: "nobody"}); !errors.Is(err, ErrInvalidRecipient) {
			t.Fatalf("expected ErrInvalidRecipient, got %v", err)
		}
	}
}

func TestNewSelectsDriver(t *testing.T) {
	s, err := New(config.MailConfig{Driver: "log"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := s.(*LogSender); !ok {
		t.Fatalf("expected log sender, got %T", s)
	}
	s, _ = New(config.MailConfig{Driver: "disabled"}, nil)
	if err := s.Send(context.Background(), Message{To: "a@b.c"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, err := New(config.MailConfig{Driver: "smtp"}, nil); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
