package providers

import (
	"encoding/json"
	"fmt"
)

// PaymentMethod selects the gateway route for a transaction.
type PaymentMethod string

const (
	MethodCredit PaymentMethod = "credit"
	MethodDebit  PaymentMethod = "debit"
	MethodOther  PaymentMethod = "other"
)

// Transaction is one payment attempt. Reference, TransactionID and
// TransactionToken are write-once: the setters refuse to replace a value
// that is already set, so protocol-ordering bugs fail loudly.
type Transaction struct {
	reference        string
	amount           int64
	transactionID    string
	transactionToken string

	Currency        string
	PaymentMethod   PaymentMethod
	PayerID         string
	RequestType     string
	ResponseCode    string
	ResponseMessage string
	Status          string
}

// Reference is the merchant order id.
func (t *Transaction) Reference() string { return t.reference }

// Amount is the amount in minor currency units.
func (t *Transaction) Amount() int64 { return t.amount }

// TransactionID is the id the gateway assigned to the payment.
func (t *Transaction) TransactionID() string { return t.transactionID }

// TransactionToken is the gateway session or authorization token.
func (t *Transaction) TransactionToken() string { return t.transactionToken }

func (t *Transaction) SetReference(v string) error {
	return setOnce("reference", &t.reference, v)
}

func (t *Transaction) SetTransactionID(v string) error {
	return setOnce("transaction id", &t.transactionID, v)
}

func (t *Transaction) SetTransactionToken(v string) error {
	return setOnce("transaction token", &t.transactionToken, v)
}

// SetAmount sets the amount in minor units.
func (t *Transaction) SetAmount(v int64) error {
	if v < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, v)
	}
	t.amount = v
	return nil
}

func setOnce(field string, dst *string, v string) error {
	if *dst == "" || *dst == v {
		*dst = v
		return nil
	}
	return fmt.Errorf("%w: %s is %q, refusing %q", ErrFieldAlreadySet, field, *dst, v)
}

type transactionJSON struct {
	Reference        string        `json:"reference,omitempty"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency,omitempty"`
	PaymentMethod    PaymentMethod `json:"payment_method,omitempty"`
	TransactionID    string        `json:"transaction_id,omitempty"`
	TransactionToken string        `json:"transaction_token,omitempty"`
	PayerID          string        `json:"payer_id,omitempty"`
	RequestType      string        `json:"request_type,omitempty"`
	ResponseCode     string        `json:"response_code,omitempty"`
	ResponseMessage  string        `json:"response_message,omitempty"`
	Status           string        `json:"status,omitempty"`
}

func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		Reference:        t.reference,
		Amount:           t.amount,
		Currency:         t.Currency,
		PaymentMethod:    t.PaymentMethod,
		TransactionID:    t.transactionID,
		TransactionToken: t.transactionToken,
		PayerID:          t.PayerID,
		RequestType:      t.RequestType,
		ResponseCode:     t.ResponseCode,
		ResponseMessage:  t.ResponseMessage,
		Status:           t.Status,
	})
}

// UnmarshalJSON restores a transaction handed back by the persistence layer.
// Write-once fields still go through their guards.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var in transactionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if err := t.SetAmount(in.Amount); err != nil {
		return err
	}
	if err := t.SetReference(in.Reference); err != nil {
		return err
	}
	if err := t.SetTransactionID(in.TransactionID); err != nil {
		return err
	}
	if err := t.SetTransactionToken(in.TransactionToken); err != nil {
		return err
	}
	t.Currency = in.Currency
	t.PaymentMethod = in.PaymentMethod
	t.PayerID = in.PayerID
	t.RequestType = in.RequestType
	t.ResponseCode = in.ResponseCode
	t.ResponseMessage = in.ResponseMessage
	t.Status = in.Status
	return nil
}
