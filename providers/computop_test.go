package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"payment-gateway-adapter/codec"
)

type testOrder struct {
	total    decimal.Decimal
	currency string
}

func (o testOrder) TotalPrice() decimal.Decimal { return o.total }
func (o testOrder) Currency() string            { return o.currency }

type fakeRequest map[string]string

func (f fakeRequest) Get(name string) string { return f[name] }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestComputop(t *testing.T) *ComputopProvider {
	t.Helper()
	p, err := NewComputopProvider(ComputopConfig{MerchantID: "M1", Password: "p", HMACKey: "k"}, discardLogger())
	if err != nil {
		t.Fatalf("NewComputopProvider: %v", err)
	}
	return p
}

func newComputopTx(t *testing.T, method PaymentMethod) *Transaction {
	t.Helper()
	tx := &Transaction{Currency: "EUR", PaymentMethod: method}
	if err := tx.SetReference("ORD-1"); err != nil {
		t.Fatal(err)
	}
	if err := tx.SetAmount(1999); err != nil {
		t.Fatal(err)
	}
	return tx
}

// decodePaymentURL decrypts the Data parameter of a redirect URL.
func decodePaymentURL(t *testing.T, raw string) (base string, query url.Values, plain string) {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	query = u.Query()
	length, err := strconv.Atoi(query.Get("Len"))
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	c, err := codec.NewCipher("p")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Decrypt(query.Get("Data"), length)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	return u.Scheme + "://" + u.Host + u.Path, query, string(b)
}

func TestComputopCreateTransaction(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)

	tests := []struct {
		name     string
		total    string
		wantAmt  int64
		currency string
	}{
		{"whole cents", "1999", 1999, "EUR"},
		{"fraction truncated", "1999.7", 1999, "CHF"},
		{"zero", "0", 0, "USD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tx := p.CreateTransaction(testOrder{total: decimal.RequireFromString(tt.total), currency: tt.currency})
			if tx.Amount() != tt.wantAmt {
				t.Errorf("Amount = %d, want %d", tx.Amount(), tt.wantAmt)
			}
			if tx.Currency != tt.currency {
				t.Errorf("Currency = %s, want %s", tx.Currency, tt.currency)
			}
		})
	}

	empty := p.CreateTransaction(nil)
	if empty.Amount() != 0 || empty.Currency != "" || empty.Reference() != "" {
		t.Errorf("expected empty transaction, got %+v", empty)
	}
}

func TestComputopPaymentURLGolden(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)
	tx := newComputopTx(t, MethodCredit)

	raw, err := p.CreatePaymentURL(context.Background(), tx, RedirectURLs{
		Success: "https://shop.example/ok",
		Error:   "https://shop.example/fail",
	}, nil)
	if err != nil {
		t.Fatalf("CreatePaymentURL: %v", err)
	}

	if !strings.HasPrefix(raw, DefaultComputopCreditCardURL+"?MerchantID=M1&Len=") {
		t.Errorf("unexpected url prefix: %s", raw)
	}
	if !strings.Contains(raw, "MerchantID=M1") {
		t.Errorf("url does not contain MerchantID=M1: %s", raw)
	}

	base, query, plain := decodePaymentURL(t, raw)
	if base != DefaultComputopCreditCardURL {
		t.Errorf("base = %s, want %s", base, DefaultComputopCreditCardURL)
	}

	want := "MerchantID=M1&Response=encrypt&Currency=EUR&TransID=ORD-1&Amount=1999" +
		"&URLSuccess=https://shop.example/ok&URLFailure=https://shop.example/fail" +
		"&MAC=3120ef40a4c5f2dc94968f00bc8db90db60950596507a8d722109875ac77e74f"
	if plain != want {
		t.Errorf("plaintext =\n%s\nwant\n%s", plain, want)
	}
	if query.Get("Len") != strconv.Itoa(len(want)) {
		t.Errorf("Len = %s, want %d", query.Get("Len"), len(want))
	}
}

func TestComputopPaymentURLRouting(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)
	tests := []struct {
		method PaymentMethod
		want   string
	}{
		{MethodDebit, DefaultComputopDebitURL},
		{MethodCredit, DefaultComputopCreditCardURL},
		{MethodOther, DefaultComputopCreditCardURL},
		{"", DefaultComputopCreditCardURL},
		{"DEBIT", DefaultComputopCreditCardURL},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			t.Parallel()
			raw, err := p.CreatePaymentURL(context.Background(), newComputopTx(t, tt.method), RedirectURLs{}, nil)
			if err != nil {
				t.Fatalf("CreatePaymentURL: %v", err)
			}
			if !strings.HasPrefix(raw, tt.want+"?") {
				t.Errorf("url %s does not start with %s", raw, tt.want)
			}
		})
	}
}

func TestComputopPaymentURLDeterministic(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)
	urls := RedirectURLs{Success: "https://shop.example/ok"}
	params := map[string]string{"OrderDesc": "Test", "UserData": "abc"}

	first, err := p.CreatePaymentURL(context.Background(), newComputopTx(t, MethodCredit), urls, params)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.CreatePaymentURL(context.Background(), newComputopTx(t, MethodCredit), urls, params)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("payment url not deterministic:\n%s\n%s", first, second)
	}
}

func TestComputopPaymentURLExtraParams(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)
	raw, err := p.CreatePaymentURL(context.Background(), newComputopTx(t, MethodCredit), RedirectURLs{}, map[string]string{
		"OrderDesc": "Two items",
		"Amount":    "1",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _, plain := decodePaymentURL(t, raw)
	if !strings.HasSuffix(plain, "&OrderDesc=Two items") {
		t.Errorf("extra param not appended: %s", plain)
	}
	if !strings.Contains(plain, "&Amount=1999&") || strings.Contains(plain, "Amount=1&") {
		t.Errorf("reserved Amount was overridden: %s", plain)
	}
}

func TestComputopPaymentURLRequiresFields(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)

	noCurrency := newComputopTx(t, MethodCredit)
	noCurrency.Currency = ""
	if _, err := p.CreatePaymentURL(context.Background(), noCurrency, RedirectURLs{}, nil); !errors.Is(err, ErrCurrencyRequired) {
		t.Errorf("err = %v, want ErrCurrencyRequired", err)
	}

	noRef := &Transaction{Currency: "EUR"}
	if _, err := p.CreatePaymentURL(context.Background(), noRef, RedirectURLs{}, nil); !errors.Is(err, ErrReferenceRequired) {
		t.Errorf("err = %v, want ErrReferenceRequired", err)
	}
}

func callbackRequest(t *testing.T, plain string) fakeRequest {
	t.Helper()
	c, err := codec.NewCipher("p")
	if err != nil {
		t.Fatal(err)
	}
	return fakeRequest{
		"Data": c.Encrypt([]byte(plain)),
		"Len":  strconv.Itoa(len(plain)),
	}
}

func TestComputopTransactionFromRequest(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)
	mac := codec.ResponseMAC("k", "PAY42", "ORD-1", "M1", "OK", "00000000")
	plain := "MID=M1&PayID=PAY42&XID=X77&TransID=ORD-1&Type=SSL&Status=OK&Code=00000000" +
		"&Description=success%20%26%20done&MAC=" + mac

	tx, err := p.CreateTransactionFromRequest(context.Background(), callbackRequest(t, plain))
	if err != nil {
		t.Fatalf("CreateTransactionFromRequest: %v", err)
	}

	checks := map[string][2]string{
		"TransactionID":    {tx.TransactionID(), "PAY42"},
		"TransactionToken": {tx.TransactionToken(), "X77"},
		"Reference":        {tx.Reference(), "ORD-1"},
		"RequestType":      {tx.RequestType, "SSL"},
		"ResponseCode":     {tx.ResponseCode, "00000000"},
		"Status":           {tx.Status, "OK"},
		"ResponseMessage":  {tx.ResponseMessage, "success & done"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", name, c[0], c[1])
		}
	}
}

func TestComputopTransactionFromRequestWithoutMAC(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)
	tx, err := p.CreateTransactionFromRequest(context.Background(),
		callbackRequest(t, "PayID=P1&TransID=ORD-9&Status=FAILED&Code=21000000"))
	if err != nil {
		t.Fatalf("CreateTransactionFromRequest: %v", err)
	}
	if tx.Status != "FAILED" || tx.TransactionToken() != "" {
		t.Errorf("unexpected transaction %+v", tx)
	}
}

func TestComputopTransactionFromRequestMalformed(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)
	valid := callbackRequest(t, "PayID=P1&TransID=ORD-1&Status=OK&Code=0")

	tests := []struct {
		name string
		req  fakeRequest
	}{
		{"missing data", fakeRequest{"Len": "10"}},
		{"missing len", fakeRequest{"Data": valid["Data"]}},
		{"non numeric len", fakeRequest{"Data": valid["Data"], "Len": "ten"}},
		{"len too long", fakeRequest{"Data": valid["Data"], "Len": "4096"}},
		{"not hex", fakeRequest{"Data": "XYZ", "Len": "3"}},
		{"missing status", callbackRequest(t, "PayID=P1&TransID=ORD-1&Code=0")},
		{"missing pay id", callbackRequest(t, "TransID=ORD-1&Status=OK&Code=0")},
		{"mac mismatch", callbackRequest(t, "PayID=P1&TransID=ORD-1&Status=OK&Code=0&MAC=deadbeef")},
		{"bad escape", callbackRequest(t, "PayID=P1&TransID=ORD-1&Status=OK&Code=0&Description=%zz")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tx, err := p.CreateTransactionFromRequest(context.Background(), tt.req)
			var merr *MalformedResponseError
			if !errors.As(err, &merr) {
				t.Fatalf("err = %v, want MalformedResponseError", err)
			}
			if tx != nil {
				t.Errorf("expected no transaction, got %+v", tx)
			}
		})
	}
}

func TestComputopRoundTripThroughHTTPRequest(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)
	plain := "PayID=P1&TransID=ORD-1&Status=OK&Code=00000000"
	req := callbackRequest(t, plain)

	q := url.Values{}
	q.Set("Data", req["Data"])
	q.Set("Len", req["Len"])
	r := httptest.NewRequest("GET", "/v1/callback/computop?"+q.Encode(), nil)

	tx, err := p.CreateTransactionFromRequest(context.Background(), HTTPRequest(r))
	if err != nil {
		t.Fatalf("CreateTransactionFromRequest: %v", err)
	}
	if tx.Reference() != "ORD-1" || tx.TransactionID() != "P1" {
		t.Errorf("unexpected transaction %+v", tx)
	}
}

func TestComputopAuthorizeAndCaptureAreNoOps(t *testing.T) {
	t.Parallel()

	p := newTestComputop(t)
	tx := newComputopTx(t, MethodCredit)

	if err := p.AuthorizeTransaction(context.Background(), tx); err != nil {
		t.Errorf("AuthorizeTransaction: %v", err)
	}
	if err := p.CaptureTransaction(context.Background(), tx, "203.0.113.7"); err != nil {
		t.Errorf("CaptureTransaction: %v", err)
	}
	if tx.TransactionID() != "" || tx.Status != "" {
		t.Errorf("no-op mutated transaction: %+v", tx)
	}
}

func TestNewComputopProviderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewComputopProvider(ComputopConfig{MerchantID: "M1", Password: "p"}, nil); err == nil {
		t.Error("expected error without hmac key")
	}
	if _, err := NewComputopProvider(ComputopConfig{MerchantID: "M1", Password: strings.Repeat("x", 57), HMACKey: "k"}, nil); err == nil {
		t.Error("expected error for oversized blowfish key")
	}
}
