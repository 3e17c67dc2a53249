package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/cadence/internal/model"
)

func TestSendGridSend(t *testing.T) {
	var auth, path string
	var body struct {
		From struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"from"`
		Subject          string `json:"subject"`
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newSendGridClient("sg-key", "Cadence", "noreply@example.com", server.URL)
	if err := client.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}

	if auth != "Bearer sg-key" {
		t.Errorf("authorization = %q, want %q", auth, "Bearer sg-key")
	}
	if path != "/v3/mail/send" {
		t.Errorf("path = %q, want /v3/mail/send", path)
	}
	if body.From.Email != "noreply@example.com" || body.From.Name != "Cadence" {
		t.Errorf("from = %+v", body.From)
	}
	if body.Subject != "Upload due today: Daily sketch" {
		t.Errorf("subject = %q", body.Subject)
	}
	if len(body.Personalizations) != 1 || len(body.Personalizations[0].To) != 1 ||
		body.Personalizations[0].To[0].Email != "alice@example.com" {
		t.Errorf("personalizations = %+v", body.Personalizations)
	}
}

func TestSendGridAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newSendGridClient("bad-key", "Cadence", "noreply@example.com", server.URL)
	err := client.Send(context.Background(), testMessage())
	if !errors.Is(err, model.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestSendGridNotConfigured(t *testing.T) {
	client := NewSendGridClient("", "Cadence", "noreply@example.com")
	if err := client.Send(context.Background(), testMessage()); err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}
