package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payment-gateway-adapter/codec"
)

const (
	DefaultPayPalVersion = "63.0"
	DefaultPayPalLocale  = "en_US"
	DefaultPayPalTimeout = 30 * time.Second

	defaultRequestType = "Sale"
)

// HTTPDoer sends an HTTP request. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PayPalConfig holds the NVP API credentials and endpoints.
type PayPalConfig struct {
	APIUsername     string
	APIPassword     string
	APISignature    string
	APIEndpoint     string
	RedirectBaseURL string
	Subject         string
	APIVersion      string
	Locale          string
	Timeout         time.Duration
}

// PayPalProvider implements Provider for the signed NVP Express Checkout API.
type PayPalProvider struct {
	cfg     PayPalConfig
	client  HTTPDoer
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	log     *slog.Logger
}

type PayPalOption func(*PayPalProvider)

// WithHTTPClient replaces the transport used for API calls.
func WithHTTPClient(c HTTPDoer) PayPalOption {
	return func(p *PayPalProvider) { p.client = c }
}

// WithBreaker replaces the circuit breaker guarding the API endpoint.
func WithBreaker(cb *gobreaker.CircuitBreaker) PayPalOption {
	return func(p *PayPalProvider) { p.breaker = cb }
}

func NewPayPalProvider(cfg PayPalConfig, log *slog.Logger, opts ...PayPalOption) (*PayPalProvider, error) {
	if cfg.APIUsername == "" || cfg.APIPassword == "" || cfg.APISignature == "" {
		return nil, errors.New("paypal: api username, password and signature are required")
	}
	if cfg.APIEndpoint == "" || cfg.RedirectBaseURL == "" {
		return nil, errors.New("paypal: api endpoint and redirect base url are required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultPayPalVersion
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultPayPalLocale
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPayPalTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	p := &PayPalProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		tracer: otel.Tracer("paypal-provider"),
		log:    log.With("provider", "paypal"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = NewBreaker("paypal-api")
	}
	return p, nil
}

// NewBreaker returns a circuit breaker that opens after five consecutive
// transport failures and probes again after thirty seconds.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

func (p *PayPalProvider) Name() string {
	return "paypal"
}

func (p *PayPalProvider) CreateTransaction(order Order) *Transaction {
	return newTransaction(order)
}

// AuthorizeTransaction is a no-op: SetExpressCheckout in CreatePaymentURL authorizes.
func (p *PayPalProvider) AuthorizeTransaction(ctx context.Context, tx *Transaction) error {
	return nil
}

func (p *PayPalProvider) CaptureTransaction(ctx context.Context, tx *Transaction, clientIP string) error {
	if tx.TransactionToken() == "" {
		return ErrTokenRequired
	}
	if id := tx.TransactionID(); id != "" {
		return fmt.Errorf("%w: transaction id is %q, refusing to capture again", ErrFieldAlreadySet, id)
	}

	var params codec.Values
	params.Set("TOKEN", tx.TransactionToken())
	params.Set("PAYERID", tx.PayerID)
	params.Set("PAYMENTREQUEST_0_PAYMENTACTION", requestType(tx))
	params.Set("PAYMENTREQUEST_0_AMT", majorUnits(tx.Amount()))
	params.Set("PAYMENTREQUEST_0_CURRENCYCODE", tx.Currency)
	if ref := tx.Reference(); ref != "" {
		params.Set("PAYMENTREQUEST_0_DESC", ref)
	}
	if clientIP != "" {
		params.Set("IPADDRESS", clientIP)
	}

	resp, err := p.apiCall(ctx, "DoExpressCheckoutPayment", params)
	if err != nil {
		return err
	}

	if id, ok := resp.Get("PAYMENTINFO_0_TRANSACTIONID"); ok && id != "" {
		if err := tx.SetTransactionID(id); err != nil {
			return err
		}
	} else {
		p.log.WarnContext(ctx, "capture acknowledged without transaction id", "token", tx.TransactionToken())
	}
	if status, ok := resp.Get("PAYMENTINFO_0_PAYMENTSTATUS"); ok {
		tx.Status = status
	} else {
		tx.Status = resp.Value("ACK")
	}
	return nil
}

// CreatePaymentURL registers the checkout with SetExpressCheckout and returns
// the redirect URL for the issued token. Caller params override the defaults.
func (p *PayPalProvider) CreatePaymentURL(ctx context.Context, tx *Transaction, urls RedirectURLs, params map[string]string) (string, error) {
	if tx.Currency == "" {
		return "", ErrCurrencyRequired
	}
	if token := tx.TransactionToken(); token != "" {
		return "", fmt.Errorf("%w: transaction token is %q, refusing a new checkout", ErrFieldAlreadySet, token)
	}

	var req codec.Values
	req.Set("AMT", majorUnits(tx.Amount()))
	req.Set("PAYMENTREQUEST_0_PAYMENTACTION", requestType(tx))
	req.Set("RETURNURL", urls.Success)
	req.Set("CANCELURL", urls.Cancel)
	req.Set("CURRENCYCODE", tx.Currency)
	req.Set("NOSHIPPING", "1")
	req.Set("ALLOWNOTE", "0")
	req.Set("ADDROVERRIDE", "0")
	req.Set("LOCALECODE", p.cfg.Locale)
	req.Set("SOLUTIONTYPE", "Sole")
	req.Set("LANDINGPAGE", "Billing")
	for _, k := range sortedKeys(params) {
		req.Set(k, params[k])
	}

	resp, err := p.apiCall(ctx, "SetExpressCheckout", req)
	if err != nil {
		return "", err
	}

	token := resp.Value("TOKEN")
	if token == "" {
		return "", malformed(p.Name(), "SetExpressCheckout response without TOKEN", nil)
	}
	if err := tx.SetTransactionToken(token); err != nil {
		return "", err
	}
	return p.cfg.RedirectBaseURL + token, nil
}

// CreateTransactionFromRequest looks up the checkout named by the inbound token.
func (p *PayPalProvider) CreateTransactionFromRequest(ctx context.Context, req Request) (*Transaction, error) {
	token := req.Get("token")
	if token == "" {
		return nil, malformed(p.Name(), "missing token", nil)
	}

	var params codec.Values
	params.Set("TOKEN", token)
	resp, err := p.apiCall(ctx, "GetExpressCheckoutDetails", params)
	if err != nil {
		return nil, err
	}

	amt := firstOf(resp, "AMT", "PAYMENTREQUEST_0_AMT")
	amount, err := minorUnits(amt)
	if err != nil {
		return nil, malformed(p.Name(), "invalid AMT", err)
	}

	tx := p.CreateTransaction(nil)
	if err := tx.SetAmount(amount); err != nil {
		return nil, malformed(p.Name(), "invalid AMT", err)
	}
	if err := tx.SetTransactionToken(firstOf(resp, "TOKEN")); err != nil {
		return nil, err
	}
	if err := tx.SetReference(firstOf(resp, "INVNUM", "PAYMENTREQUEST_0_INVNUM")); err != nil {
		return nil, err
	}
	tx.Currency = firstOf(resp, "CURRENCYCODE", "PAYMENTREQUEST_0_CURRENCYCODE")
	tx.PayerID = resp.Value("PAYERID")
	tx.Status = resp.Value("ACK")
	return tx, nil
}

// apiCall signs params, posts them to the NVP endpoint and returns the
// parsed response. Calls are never retried.
func (p *PayPalProvider) apiCall(ctx context.Context, method string, params codec.Values) (codec.Values, error) {
	ctx, span := p.tracer.Start(ctx, "paypal."+method)
	defer span.End()

	params.Set("METHOD", method)
	params.Set("VERSION", p.cfg.APIVersion)
	params.Set("PWD", p.cfg.APIPassword)
	params.Set("USER", p.cfg.APIUsername)
	params.Set("SIGNATURE", p.cfg.APISignature)
	if p.cfg.Subject != "" {
		params.Set("SUBJECT", p.cfg.Subject)
	}

	p.log.DebugContext(ctx, "sending paypal api request", "method", method, "params", redact(params))

	body, err := p.post(ctx, params.Encode())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unreachable")
		p.log.ErrorContext(ctx, "paypal api unreachable", "method", method, "err", err)
		return nil, &GatewayUnreachableError{Provider: p.Name(), Method: method, Err: err}
	}

	resp, err := codec.DecodeNVP(string(body))
	if err != nil {
		span.RecordError(err)
		return nil, malformed(p.Name(), method+" response", err)
	}

	p.log.DebugContext(ctx, "received paypal api response", "method", method, "response", resp.Map())

	ack, ok := resp.Get("ACK")
	span.SetAttributes(attribute.String("paypal.ack", ack))
	if !ok || !strings.EqualFold(ack, "success") {
		span.SetStatus(codes.Error, "ack "+ack)
		p.log.WarnContext(ctx, "paypal api call failed", "method", method, "ack", ack, "response", resp.Map())
		return nil, &GatewayError{Provider: p.Name(), Method: method, Response: resp.Map()}
	}
	return resp, nil
}

func (p *PayPalProvider) post(ctx context.Context, body string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	out, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIEndpoint, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		res, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, fmt.Errorf("unexpected http status %s", res.Status)
		}
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(b) == 0 {
			return nil, errors.New("empty response body")
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func requestType(tx *Transaction) string {
	if tx.RequestType != "" {
		return tx.RequestType
	}
	return defaultRequestType
}

// majorUnits renders minor units as a two-decimal major amount: 1999 -> "19.99".
func majorUnits(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// minorUnits parses a major amount back to minor units: "19.99" -> 1999.
func minorUnits(major string) (int64, error) {
	d, err := decimal.NewFromString(major)
	if err != nil {
		return 0, err
	}
	return d.Shift(2).IntPart(), nil
}

func firstOf(v codec.Values, keys ...string) string {
	for _, k := range keys {
		if s, ok := v.Get(k); ok && s != "" {
			return s
		}
	}
	return ""
}

var secretKeys = map[string]bool{"PWD": true, "SIGNATURE": true}

func redact(v codec.Values) map[string]string {
	m := v.Map()
	for k := range m {
		if secretKeys[k] {
			m[k] = "***"
		}
	}
	return m
}
