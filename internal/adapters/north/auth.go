package north

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

const (
	HeaderEPIId     = "EPI-Id"
	HeaderSignature = "EPI-Signature"
	// HeaderWebhookSignature carries the HMAC of an inbound callback
	HeaderWebhookSignature = "X-North-Signature"
)

// AuthConfig holds HMAC authentication configuration for North APIs
type AuthConfig struct {
	EPIId  string // Four-part key: CUST_NBR-MERCH_NBR-DBA_NBR-TERMINAL_NBR
	EPIKey string // Shared secret for HMAC signing
}

// CalculateSignature returns hex(HMAC-SHA256(endpoint + payload, epiKey)).
// North has no bearer token; this signature is the per-request credential.
func CalculateSignature(epiKey, endpoint string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(epiKey))
	h.Write([]byte(endpoint))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateSignature compares signature against the expected HMAC in constant time
func ValidateSignature(epiKey, endpoint string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := CalculateSignature(epiKey, endpoint, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// sign sets the authentication headers on an outbound request
func (c AuthConfig) sign(req *http.Request, endpoint string, payload []byte) {
	req.Header.Set(HeaderEPIId, c.EPIId)
	req.Header.Set(HeaderSignature, CalculateSignature(c.EPIKey, endpoint, payload))
}
