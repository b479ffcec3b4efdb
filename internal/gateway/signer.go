package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/cryptopay/cryptopay/internal/apperr"
)

// Signer computes and checks confirmation signatures using the mode-specific
// shared secret.
type Signer struct {
	secrets map[Mode][]byte
}

// NewSigner builds a signer from per-mode secrets.
func NewSigner(testSecret, liveSecret string) *Signer {
	secrets := make(map[Mode][]byte, 2)
	if testSecret != "" {
		secrets[ModeTest] = []byte(testSecret)
	}
	if liveSecret != "" {
		secrets[ModeLive] = []byte(liveSecret)
	}
	return &Signer{secrets: secrets}
}

// Sign returns the hex HMAC-SHA256 of "order|payment".
func (s *Signer) Sign(mode Mode, orderHandle, paymentHandle string) (string, error) {
	secret, ok := s.secrets[mode]
	if !ok {
		return "", apperr.Unavailable("gateway "+string(mode)+" credentials not configured", nil)
	}
	return hex.EncodeToString(mac(secret, orderHandle, paymentHandle)), nil
}

// Verify checks signature in constant time.
func (s *Signer) Verify(mode Mode, orderHandle, paymentHandle, signature string) error {
	secret, ok := s.secrets[mode]
	if !ok {
		return apperr.Unavailable("gateway "+string(mode)+" credentials not configured", nil)
	}
	presented, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(presented, mac(secret, orderHandle, paymentHandle)) {
		return apperr.New(apperr.KindInvalidSignature, "invalid payment signature")
	}
	return nil
}

func mac(secret []byte, orderHandle, paymentHandle string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(orderHandle + "|" + paymentHandle))
	return h.Sum(nil)
}
