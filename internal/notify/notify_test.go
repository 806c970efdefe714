package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/confmerch-system/internal/model"
)

func testOrder() *model.Order {
	return &model.Order{
		ID:      "7f9c24e5-1b9a-4a78-9f5c-2f15a1c90c11",
		EventID: 3,
		Status:  model.OrderStatusPending,
		Customer: model.CustomerInfo{
			Name:  "Ivanov",
			Email: "ivanov@example.com",
		},
		Cost: model.CostBreakdown{FinalTotal: 20000},
	}
}

func TestWebhookNotifier_OrderCreated(t *testing.T) {
	received := make(chan Message, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content-type = %q, want application/json", ct)
		}

		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		received <- msg
	}))
	defer ts.Close()

	n := NewWebhookNotifier(ts.URL, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	n.OrderCreated(ctx, testOrder())

	select {
	case msg := <-received:
		if msg.Type != EventOrderCreated {
			t.Fatalf("type = %q, want %q", msg.Type, EventOrderCreated)
		}
		if msg.OrderID != "7f9c24e5-1b9a-4a78-9f5c-2f15a1c90c11" {
			t.Fatalf("unexpected order id: %s", msg.OrderID)
		}
		if msg.FinalTotal != 20000 {
			t.Fatalf("final total = %d, want 20000", msg.FinalTotal)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook not delivered")
	}
}

func TestWebhookNotifier_StatusChanged(t *testing.T) {
	received := make(chan Message, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		received <- msg
	}))
	defer ts.Close()

	n := NewWebhookNotifier(ts.URL, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	n.OrderStatusChanged(ctx, testOrder(), model.OrderStatusPending, model.OrderStatusConfirmed)

	select {
	case msg := <-received:
		if msg.Type != EventOrderStatusChanged {
			t.Fatalf("type = %q, want %q", msg.Type, EventOrderStatusChanged)
		}
		if msg.PrevStatus != model.OrderStatusPending || msg.Status != model.OrderStatusConfirmed {
			t.Fatalf("status transition = %q -> %q, want pending -> confirmed", msg.PrevStatus, msg.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook not delivered")
	}
}

func TestWebhookNotifier_ServerErrorDoesNotPanic(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	n := NewWebhookNotifier(ts.URL, zap.NewNop())
	n.client.RetryMax = 0

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Доставка не возвращает ошибку: отказ обработчика лишь логируется.
	n.OrderCreated(ctx, testOrder())
}
