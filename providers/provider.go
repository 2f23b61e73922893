package providers

import (
	"context"
	"net/http"
	"sort"

	"github.com/shopspring/decimal"
)

// Order supplies the amount and currency a transaction is created from.
// TotalPrice is expressed in minor currency units (cents).
type Order interface {
	TotalPrice() decimal.Decimal
	Currency() string
}

// Request gives access to named fields of an inbound gateway callback,
// whether they arrived in the query string or a form body.
type Request interface {
	Get(name string) string
}

type httpRequest struct {
	r *http.Request
}

// HTTPRequest adapts a net/http request to Request.
func HTTPRequest(r *http.Request) Request {
	return httpRequest{r: r}
}

func (h httpRequest) Get(name string) string {
	return h.r.FormValue(name)
}

// RedirectURLs are the pages the gateway sends the payer back to.
type RedirectURLs struct {
	Success string
	Error   string
	Cancel  string
}

// Provider defines the lifecycle every gateway integration exposes (Adapter Pattern).
type Provider interface {
	Name() string

	// CreateTransaction seeds a transaction from order, or returns an empty one when order is nil.
	CreateTransaction(order Order) *Transaction

	AuthorizeTransaction(ctx context.Context, tx *Transaction) error

	// CaptureTransaction finalizes the payment. clientIP is the payer's address
	// as seen by the caller and may be empty.
	CaptureTransaction(ctx context.Context, tx *Transaction, clientIP string) error

	// CreatePaymentURL returns the URL the payer's browser is sent to.
	CreatePaymentURL(ctx context.Context, tx *Transaction, urls RedirectURLs, params map[string]string) (string, error)

	// CreateTransactionFromRequest builds a transaction from a gateway callback.
	CreateTransactionFromRequest(ctx context.Context, req Request) (*Transaction, error)
}

func newTransaction(order Order) *Transaction {
	tx := &Transaction{}
	if order == nil {
		return tx
	}
	tx.Currency = order.Currency()
	if amount := order.TotalPrice().IntPart(); amount > 0 {
		tx.amount = amount
	}
	return tx
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
