package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNotify_OK(t *testing.T) {
	var got Message
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/notify" {
			t.Fatalf("path = %s, want /api/notify", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg := Message{
		Audience:   AudienceCustomer,
		CustomerID: 7,
		Event:      EventOrderStateChanged,
		OrderID:    "o-1",
		From:       "PENDING_MANUAL_APPROVAL",
		To:         "AWAITING_ACCOUNT_SELECTION",
		Text:       "order approved",
	}

	if err := client.Notify(ctx, msg); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if got.Audience != AudienceCustomer || got.Event != EventOrderStateChanged || got.OrderID != "o-1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestNotify_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Notify(ctx, Message{Audience: AudienceAdmin, Text: "x"}); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestNotify_NotConfigured(t *testing.T) {
	var client *Client

	if err := client.Notify(context.Background(), Message{}); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
