package codec

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeMAC returns the lowercase hex HMAC-SHA256 of fields joined by '*'.
func ComputeMAC(key string, fields ...string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strings.Join(fields, "*")))
	return hex.EncodeToString(mac.Sum(nil))
}

// RequestMAC signs an outbound redirect request. The field order is fixed by
// the gateway: PayID*TransID*MerchantID*Amount*Currency.
func RequestMAC(key, payID, transID, merchantID, amount, currency string) string {
	return ComputeMAC(key, payID, transID, merchantID, amount, currency)
}

// ResponseMAC signs an inbound callback: PayID*TransID*MerchantID*Status*Code.
func ResponseMAC(key, payID, transID, merchantID, status, code string) string {
	return ComputeMAC(key, payID, transID, merchantID, status, code)
}

// VerifyMAC compares two hex digests in constant time, ignoring case.
func VerifyMAC(expected, got string) bool {
	return hmac.Equal([]byte(strings.ToLower(expected)), []byte(strings.ToLower(got)))
}
