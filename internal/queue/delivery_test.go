package queue_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/perimetra/fenceline/internal/queue"
	"github.com/perimetra/fenceline/model"
)

func TestHTTPSenderSuccess(t *testing.T) {
	var got model.FencePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := queue.NewHTTPSender(srv.URL, queue.WithHTTPClient(srv.Client()))
	payload := testPayload(t, "ui-a")
	if err := sender.Send(context.Background(), payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.FenceID != "ui-a" {
		t.Fatalf("server received fence_id %q, want ui-a", got.FenceID)
	}
}

func TestHTTPSenderServerErrorWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "database unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := queue.NewHTTPSender(srv.URL, queue.WithHTTPClient(srv.Client()))
	err := sender.Send(context.Background(), testPayload(t, "ui-a"))
	if err == nil {
		t.Fatal("Send should fail on a 500")
	}
	if got, want := err.Error(), "Server 500: database unavailable"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

func TestHTTPSenderServerErrorEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sender := queue.NewHTTPSender(srv.URL, queue.WithHTTPClient(srv.Client()))
	err := sender.Send(context.Background(), testPayload(t, "ui-a"))
	if err == nil {
		t.Fatal("Send should fail on a 404")
	}
	// Falls back to the standard status text when the body is empty.
	if got, want := err.Error(), "Server 404: Not Found"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

func TestHTTPSenderTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	sender := queue.NewHTTPSender(url)
	if err := sender.Send(context.Background(), testPayload(t, "ui-a")); err == nil {
		t.Fatal("Send to a closed server should fail")
	}
}
