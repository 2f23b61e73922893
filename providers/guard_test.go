package providers

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Begin(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return true, nil
	}
	m.keys[key] = "in_progress"
	return false, nil
}

func (m *memoryStore) Complete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = "completed"
	return nil
}

func (m *memoryStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type stubProvider struct {
	*ComputopProvider
	captures int
	err      error
}

func (s *stubProvider) CaptureTransaction(ctx context.Context, tx *Transaction, clientIP string) error {
	s.captures++
	return s.err
}

func TestCaptureGuardRejectsDuplicates(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{ComputopProvider: newTestComputop(t)}
	store := newMemoryStore()
	p := WithCaptureGuard(stub, store, discardLogger())

	tx := newComputopTx(t, MethodCredit)
	if err := p.CaptureTransaction(context.Background(), tx, ""); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	if err := p.CaptureTransaction(context.Background(), tx, ""); !errors.Is(err, ErrDuplicateCapture) {
		t.Errorf("second capture err = %v, want ErrDuplicateCapture", err)
	}
	if stub.captures != 1 {
		t.Errorf("captures = %d, want 1", stub.captures)
	}
	if store.keys["capture:computop:ORD-1"] != "completed" {
		t.Errorf("store = %v", store.keys)
	}
}

func TestCaptureGuardReleasesOnFailure(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{ComputopProvider: newTestComputop(t), err: errors.New("boom")}
	store := newMemoryStore()
	p := WithCaptureGuard(stub, store, nil)

	tx := newComputopTx(t, MethodCredit)
	if err := tx.SetTransactionToken("EC-1"); err != nil {
		t.Fatal(err)
	}
	if err := p.CaptureTransaction(context.Background(), tx, ""); err == nil {
		t.Fatal("expected failure")
	}
	if len(store.keys) != 0 {
		t.Errorf("key not released: %v", store.keys)
	}

	stub.err = nil
	if err := p.CaptureTransaction(context.Background(), tx, ""); err != nil {
		t.Errorf("explicit retry after failure: %v", err)
	}
	if _, ok := store.keys["capture:computop:EC-1"]; !ok {
		t.Errorf("expected token based key, got %v", store.keys)
	}
}

func TestCaptureGuardDelegatesEverythingElse(t *testing.T) {
	t.Parallel()

	inner := newTestComputop(t)
	p := WithCaptureGuard(inner, newMemoryStore(), nil)

	if p.Name() != "computop" {
		t.Errorf("Name = %s", p.Name())
	}
	url, err := p.CreatePaymentURL(context.Background(), newComputopTx(t, MethodDebit), RedirectURLs{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := inner.CreatePaymentURL(context.Background(), newComputopTx(t, MethodDebit), RedirectURLs{}, nil)
	if url != want {
		t.Errorf("guarded url differs from inner url")
	}
}

func TestCaptureGuardNeverRecapturesCapturedTransaction(t *testing.T) {
	t.Parallel()

	srv := newNVPServer(t, map[string]string{
		"DoExpressCheckoutPayment": "ACK=Success&PAYMENTINFO_0_TRANSACTIONID=NEW",
	})
	p := WithCaptureGuard(newTestPayPal(t, srv.URL), newMemoryStore(), discardLogger())

	tx := newPayPalTx(t)
	_ = tx.SetTransactionToken("EC-1")
	_ = tx.SetTransactionID("OLD")

	for i := 0; i < 2; i++ {
		if err := p.CaptureTransaction(context.Background(), tx, ""); !errors.Is(err, ErrFieldAlreadySet) {
			t.Errorf("attempt %d err = %v, want ErrFieldAlreadySet", i+1, err)
		}
	}
	if n := srv.count(); n != 0 {
		t.Errorf("gateway received %d capture requests, want 0", n)
	}
}
