package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"payment-gateway-adapter/codec"
)

const (
	DefaultComputopCreditCardURL = "https://www.netkauf.de/paygate/payssl.aspx"
	DefaultComputopDebitURL      = "https://www.netkauf.de/paygate/payelv.aspx"
)

// ComputopConfig holds the merchant credentials for the encrypted redirect gateway.
type ComputopConfig struct {
	MerchantID    string
	Password      string
	HMACKey       string
	CreditCardURL string
	DebitURL      string
}

// ComputopProvider implements Provider for the encrypted redirect gateway.
// Authorization and capture happen at the gateway; the outcome only reaches
// us through the encrypted callback.
type ComputopProvider struct {
	cfg    ComputopConfig
	cipher *codec.Cipher
	log    *slog.Logger
}

func NewComputopProvider(cfg ComputopConfig, log *slog.Logger) (*ComputopProvider, error) {
	if cfg.MerchantID == "" || cfg.Password == "" || cfg.HMACKey == "" {
		return nil, errors.New("computop: merchant id, password and hmac key are required")
	}
	if cfg.CreditCardURL == "" {
		cfg.CreditCardURL = DefaultComputopCreditCardURL
	}
	if cfg.DebitURL == "" {
		cfg.DebitURL = DefaultComputopDebitURL
	}
	c, err := codec.NewCipher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("computop: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &ComputopProvider{cfg: cfg, cipher: c, log: log.With("provider", "computop")}, nil
}

func (p *ComputopProvider) Name() string {
	return "computop"
}

func (p *ComputopProvider) CreateTransaction(order Order) *Transaction {
	return newTransaction(order)
}

// AuthorizeTransaction is a no-op: the gateway authorizes during the redirect.
func (p *ComputopProvider) AuthorizeTransaction(ctx context.Context, tx *Transaction) error {
	p.log.DebugContext(ctx, "authorize is driven by gateway callback", "reference", tx.Reference())
	return nil
}

// CaptureTransaction is a no-op: capture is reported through the callback.
func (p *ComputopProvider) CaptureTransaction(ctx context.Context, tx *Transaction, clientIP string) error {
	p.log.DebugContext(ctx, "capture is driven by gateway callback", "reference", tx.Reference())
	return nil
}

// CreatePaymentURL encrypts the payment request into the redirect URL.
// The plaintext must not be URL-encoded: the gateway decrypts and splits it as is.
func (p *ComputopProvider) CreatePaymentURL(ctx context.Context, tx *Transaction, urls RedirectURLs, params map[string]string) (string, error) {
	if tx.Currency == "" {
		return "", ErrCurrencyRequired
	}
	if tx.Reference() == "" {
		return "", ErrReferenceRequired
	}

	amount := strconv.FormatInt(tx.Amount(), 10)

	var plain codec.Values
	plain.Set("MerchantID", p.cfg.MerchantID)
	plain.Set("Response", "encrypt")
	plain.Set("Currency", tx.Currency)
	plain.Set("TransID", tx.Reference())
	plain.Set("Amount", amount)
	plain.Set("URLSuccess", urls.Success)
	plain.Set("URLFailure", urls.Error)
	plain.Set("MAC", codec.RequestMAC(p.cfg.HMACKey, "", tx.Reference(), p.cfg.MerchantID, amount, tx.Currency))

	for _, k := range sortedKeys(params) {
		if _, reserved := plain.Get(k); !reserved {
			plain.Set(k, params[k])
		}
	}

	raw := plain.Raw()
	data := p.cipher.Encrypt([]byte(raw))

	var query codec.Values
	query.Set("MerchantID", p.cfg.MerchantID)
	query.Set("Len", strconv.Itoa(len(raw)))
	query.Set("Data", data)

	p.log.DebugContext(ctx, "payment url created", "reference", tx.Reference(), "len", len(raw), "method", tx.PaymentMethod)
	return p.baseURL(tx) + "?" + query.Encode(), nil
}

func (p *ComputopProvider) baseURL(tx *Transaction) string {
	if tx.PaymentMethod == MethodDebit {
		return p.cfg.DebitURL
	}
	return p.cfg.CreditCardURL
}

// CreateTransactionFromRequest decrypts the callback payload. Nothing is
// returned unless every required field is present and the MAC, when sent, matches.
func (p *ComputopProvider) CreateTransactionFromRequest(ctx context.Context, req Request) (*Transaction, error) {
	data := req.Get("Data")
	if data == "" {
		return nil, malformed(p.Name(), "missing Data", nil)
	}
	length, err := strconv.Atoi(req.Get("Len"))
	if err != nil {
		return nil, malformed(p.Name(), "invalid Len", err)
	}

	plain, err := p.cipher.Decrypt(data, length)
	if err != nil {
		return nil, malformed(p.Name(), "decrypt", err)
	}
	fields, err := codec.DecodeNVP(string(plain))
	if err != nil {
		return nil, malformed(p.Name(), "parse payload", err)
	}

	for _, key := range []string{"PayID", "TransID", "Status", "Code"} {
		if _, ok := fields.Get(key); !ok {
			return nil, malformed(p.Name(), "missing "+key, nil)
		}
	}

	if mac, ok := fields.Get("MAC"); ok {
		want := codec.ResponseMAC(p.cfg.HMACKey, fields.Value("PayID"), fields.Value("TransID"),
			p.cfg.MerchantID, fields.Value("Status"), fields.Value("Code"))
		if !codec.VerifyMAC(want, mac) {
			p.log.WarnContext(ctx, "callback mac mismatch", "trans_id", fields.Value("TransID"), "pay_id", fields.Value("PayID"))
			return nil, malformed(p.Name(), "MAC mismatch", nil)
		}
	}

	tx := p.CreateTransaction(nil)
	if err := tx.SetTransactionID(fields.Value("PayID")); err != nil {
		return nil, err
	}
	if err := tx.SetTransactionToken(fields.Value("XID")); err != nil {
		return nil, err
	}
	if err := tx.SetReference(fields.Value("TransID")); err != nil {
		return nil, err
	}
	tx.RequestType = fields.Value("Type")
	tx.ResponseCode = fields.Value("Code")
	tx.Status = fields.Value("Status")
	tx.ResponseMessage = fields.Value("Description")

	p.log.InfoContext(ctx, "callback decoded", "reference", tx.Reference(), "pay_id", tx.TransactionID(), "status", tx.Status, "code", tx.ResponseCode)
	return tx, nil
}
