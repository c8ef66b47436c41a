package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"orderflow/internal/messaging"
)

// scriptedQueue hands out the given bodies in order, then blocks until the
// context is cancelled. It records every acknowledged delivery.
type scriptedQueue struct {
	mu     sync.Mutex
	bodies [][]byte
	next   int
	acked  []Delivery
	done   chan struct{}
}

func newScriptedQueue(bodies ...[]byte) *scriptedQueue {
	return &scriptedQueue{bodies: bodies, done: make(chan struct{})}
}

func (q *scriptedQueue) Fetch(ctx context.Context) (Delivery, error) {
	q.mu.Lock()
	if q.next < len(q.bodies) {
		body := q.bodies[q.next]
		handle := q.next
		q.next++
		q.mu.Unlock()
		return Delivery{Body: body, Handle: handle}, nil
	}
	q.mu.Unlock()

	close(q.done)
	<-ctx.Done()
	return Delivery{}, ctx.Err()
}

func (q *scriptedQueue) Ack(ctx context.Context, d Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, d)
	return nil
}

func (q *scriptedQueue) ackCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.acked)
}

// failingStore rejects every insert.
type failingStore struct{}

func (failingStore) Insert(ctx context.Context, rec Record) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingStore) GetByTransactionID(ctx context.Context, transactionID string) (Record, error) {
	return Record{}, ErrRecordNotFound
}

type countingMetrics struct {
	mu                           sync.Mutex
	ingested, duplicate, dropped int
}

func (m *countingMetrics) AddAuditIngested() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested++
}

func (m *countingMetrics) AddAuditDuplicate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicate++
}

func (m *countingMetrics) AddAuditDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *countingMetrics) snapshot() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ingested, m.duplicate, m.dropped
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encodeMessage(t *testing.T, msg messaging.TransactionMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func validMessage(txnID string) messaging.TransactionMessage {
	return messaging.TransactionMessage{
		CustomerID:    "CUST_1",
		OrderID:       "order-1",
		ProductID:     "PROD_1",
		Amount:        100,
		TransactionID: txnID,
		Timestamp:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// drain runs the consumer until the queue is exhausted.
func drain(t *testing.T, consumer *Consumer, queue *scriptedQueue) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(ctx) }()

	select {
	case <-queue.done:
	case <-ctx.Done():
		t.Fatalf("queue never drained")
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestConsumer_RecordsTransaction(t *testing.T) {
	queue := newScriptedQueue(encodeMessage(t, validMessage("TXN_1")))
	store := NewInMemoryStore()
	metrics := &countingMetrics{}

	drain(t, NewConsumer(queue, store, testLogger(), metrics), queue)

	rec, err := store.GetByTransactionID(context.Background(), "TXN_1")
	if err != nil {
		t.Fatalf("GetByTransactionID: %v", err)
	}
	if rec.OrderID != "order-1" || rec.Amount != 100 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Status != StatusCompleted {
		t.Fatalf("status = %q, want %q", rec.Status, StatusCompleted)
	}
	if rec.RecordedAt.IsZero() {
		t.Fatalf("expected RecordedAt to be set")
	}
	if queue.ackCount() != 1 {
		t.Fatalf("acked %d messages, want 1", queue.ackCount())
	}
	if ingested, _, _ := metrics.snapshot(); ingested != 1 {
		t.Fatalf("ingested = %d, want 1", ingested)
	}
}

func TestConsumer_DuplicateTransactionKeptOnce(t *testing.T) {
	body := encodeMessage(t, validMessage("TXN_1"))
	queue := newScriptedQueue(body, body)
	store := NewInMemoryStore()
	metrics := &countingMetrics{}

	drain(t, NewConsumer(queue, store, testLogger(), metrics), queue)

	if store.Len() != 1 {
		t.Fatalf("stored %d records, want 1", store.Len())
	}
	if queue.ackCount() != 2 {
		t.Fatalf("acked %d messages, want 2", queue.ackCount())
	}
	ingested, duplicate, dropped := metrics.snapshot()
	if ingested != 1 || duplicate != 1 || dropped != 0 {
		t.Fatalf("counters = %d/%d/%d, want 1/1/0", ingested, duplicate, dropped)
	}
}

func TestConsumer_DropsMalformedMessage(t *testing.T) {
	queue := newScriptedQueue(
		[]byte("{not json"),
		encodeMessage(t, validMessage("TXN_2")),
	)
	store := NewInMemoryStore()
	metrics := &countingMetrics{}

	drain(t, NewConsumer(queue, store, testLogger(), metrics), queue)

	if store.Len() != 1 {
		t.Fatalf("stored %d records, want 1", store.Len())
	}
	if queue.ackCount() != 2 {
		t.Fatalf("acked %d messages, want 2; poison messages must not wedge the queue", queue.ackCount())
	}
	if _, _, dropped := metrics.snapshot(); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}

func TestConsumer_DropsInvalidMessage(t *testing.T) {
	missingTxn := validMessage("")
	negative := validMessage("TXN_3")
	negative.Amount = -5

	queue := newScriptedQueue(
		encodeMessage(t, missingTxn),
		encodeMessage(t, negative),
	)
	store := NewInMemoryStore()
	metrics := &countingMetrics{}

	drain(t, NewConsumer(queue, store, testLogger(), metrics), queue)

	if store.Len() != 0 {
		t.Fatalf("stored %d records, want 0", store.Len())
	}
	if _, _, dropped := metrics.snapshot(); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
}

func TestConsumer_DropsAfterInsertFailure(t *testing.T) {
	queue := newScriptedQueue(encodeMessage(t, validMessage("TXN_1")))
	metrics := &countingMetrics{}

	drain(t, NewConsumer(queue, failingStore{}, testLogger(), metrics), queue)

	if queue.ackCount() != 1 {
		t.Fatalf("acked %d messages, want 1", queue.ackCount())
	}
	if _, _, dropped := metrics.snapshot(); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}
