package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payment-gateway-adapter/cache"
	"payment-gateway-adapter/config"
	"payment-gateway-adapter/logging"
	"payment-gateway-adapter/providers"
)

// Aggregator holds references to all providers
type Aggregator struct {
	Providers map[string]providers.Provider
	Timeout   time.Duration
	Log       *slog.Logger
}

// newAggregator initializes the service with every configured provider.
func newAggregator(cfg *config.Config, log *slog.Logger, store providers.CaptureStore) (*Aggregator, error) {
	a := &Aggregator{
		Providers: map[string]providers.Provider{},
		Timeout:   cfg.Timeout,
		Log:       log,
	}

	if cfg.Computop.Enabled() {
		p, err := providers.NewComputopProvider(cfg.Computop.Provider(), log)
		if err != nil {
			return nil, err
		}
		a.register(p, store)
	}
	if cfg.PayPal.Enabled() {
		p, err := providers.NewPayPalProvider(cfg.PayPal.Provider(), log)
		if err != nil {
			return nil, err
		}
		a.register(p, store)
	}
	return a, nil
}

func (a *Aggregator) register(p providers.Provider, store providers.CaptureStore) {
	if store != nil {
		p = providers.WithCaptureGuard(p, store, a.Log)
	}
	a.Providers[p.Name()] = p
}

func (a *Aggregator) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Post("/v1/payments/{provider}", a.PayHandler)
	r.Post("/v1/payments/{provider}/capture", a.CaptureHandler)
	r.Get("/v1/callback/{provider}", a.CallbackHandler)
	r.Post("/v1/callback/{provider}", a.CallbackHandler)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

type payRequest struct {
	Reference     string            `json:"reference"`
	Amount        decimal.Decimal   `json:"amount"`
	CurrencyCode  string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	RequestType   string            `json:"request_type"`
	SuccessURL    string            `json:"success_url"`
	ErrorURL      string            `json:"error_url"`
	CancelURL     string            `json:"cancel_url"`
	Params        map[string]string `json:"params"`
}

func (p payRequest) TotalPrice() decimal.Decimal { return p.Amount }
func (p payRequest) Currency() string            { return p.CurrencyCode }

type payResponse struct {
	URL         string                 `json:"url"`
	Transaction *providers.Transaction `json:"transaction"`
}

// PayHandler creates a transaction for the order in the body and returns the payment URL.
func (a *Aggregator) PayHandler(w http.ResponseWriter, r *http.Request) {
	provider, ok := a.provider(w, r)
	if !ok {
		return
	}

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid Request Body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.Timeout)
	defer cancel()

	tx := provider.CreateTransaction(req)
	tx.PaymentMethod = providers.PaymentMethod(req.PaymentMethod)
	tx.RequestType = req.RequestType
	if err := tx.SetReference(req.Reference); err != nil {
		a.fail(w, r, err)
		return
	}

	a.Log.InfoContext(ctx, "starting transaction", "reference", tx.Reference(), "provider", provider.Name())

	if err := provider.AuthorizeTransaction(ctx, tx); err != nil {
		a.fail(w, r, err)
		return
	}
	url, err := provider.CreatePaymentURL(ctx, tx, providers.RedirectURLs{
		Success: req.SuccessURL,
		Error:   req.ErrorURL,
		Cancel:  req.CancelURL,
	}, req.Params)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, payResponse{URL: url, Transaction: tx})
}

// CallbackHandler turns a gateway redirect or notification into a transaction.
func (a *Aggregator) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	provider, ok := a.provider(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.Timeout)
	defer cancel()

	tx, err := provider.CreateTransactionFromRequest(ctx, providers.HTTPRequest(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Log.InfoContext(ctx, "callback processed", "provider", provider.Name(), "reference", tx.Reference(), "status", tx.Status)
	writeJSON(w, http.StatusOK, tx)
}

// CaptureHandler captures the transaction in the body on behalf of the caller's client.
func (a *Aggregator) CaptureHandler(w http.ResponseWriter, r *http.Request) {
	provider, ok := a.provider(w, r)
	if !ok {
		return
	}

	var tx providers.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid Request Body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.Timeout)
	defer cancel()

	if err := provider.CaptureTransaction(ctx, &tx, clientIP(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	a.Log.InfoContext(ctx, "transaction captured", "provider", provider.Name(), "reference", tx.Reference(), "transaction_id", tx.TransactionID())
	writeJSON(w, http.StatusOK, &tx)
}

func (a *Aggregator) provider(w http.ResponseWriter, r *http.Request) (providers.Provider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := a.Providers[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Provider " + name + " not found"})
	}
	return p, ok
}

func (a *Aggregator) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	a.Log.ErrorContext(r.Context(), "provider error", "request_id", w.Header().Get(headerRequestID), "status", status, "err", err)

	body := map[string]any{"error": err.Error()}
	var gerr *providers.GatewayError
	if errors.As(err, &gerr) {
		body["response"] = gerr.Response
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	var (
		unreachable *providers.GatewayUnreachableError
		gateway     *providers.GatewayError
		malformed   *providers.MalformedResponseError
	)
	switch {
	case errors.As(err, &unreachable):
		return http.StatusServiceUnavailable
	case errors.As(err, &gateway):
		return http.StatusBadGateway
	case errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.Is(err, providers.ErrDuplicateCapture), errors.Is(err, providers.ErrFieldAlreadySet):
		return http.StatusConflict
	case errors.Is(err, providers.ErrCurrencyRequired), errors.Is(err, providers.ErrReferenceRequired),
		errors.Is(err, providers.ErrTokenRequired), errors.Is(err, providers.ErrNegativeAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

const headerRequestID = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(headerRequestID, rid)
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	configPath := flag.String("config", os.Getenv("PAYGATE_CONFIG"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store providers.CaptureStore
	if cfg.Redis.Addr != "" {
		rs := cache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := rs.Ping(ctx); err != nil {
			log.Error("redis ping failed", "addr", cfg.Redis.Addr, "err", err)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
	}

	aggregator, err := newAggregator(cfg, log, store)
	if err != nil {
		log.Error("provider setup failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           aggregator.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting server", "port", cfg.Port, "providers", len(aggregator.Providers))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
