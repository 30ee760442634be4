package crypto

import (
	"time"

	"cipherline/internal/domain"
)

// SealEnvelope encrypts plaintext under key and signs the ciphertext with
// signer. The timestamp is taken from now.
func SealEnvelope(plaintext []byte, key domain.SymmetricKey, signer domain.Ed25519Private, now time.Time) (domain.Envelope, error) {
	ct, nonce, tag, err := Encrypt(plaintext, key)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		Ciphertext: ct,
		Nonce:      nonce,
		Tag:        tag,
		Signature:  Sign(ct, signer),
		Timestamp:  now.UnixMilli(),
	}, nil
}

// CheckFreshness rejects envelopes whose timestamp is more than maxAge away
// from now in either direction.
func CheckFreshness(env domain.Envelope, now time.Time, maxAge time.Duration) error {
	d := now.Sub(env.Time())
	if d < 0 {
		d = -d
	}
	if d > maxAge {
		return ErrMessageTooOld
	}
	return nil
}

// OpenEnvelope verifies the signature and freshness of env, then decrypts
// it. Nothing is decrypted unless both checks pass.
func OpenEnvelope(env domain.Envelope, key domain.SymmetricKey, signer domain.Ed25519Public, now time.Time, maxAge time.Duration) ([]byte, error) {
	if !Verify(env.Ciphertext, env.Signature, signer) {
		return nil, ErrSignatureInvalid
	}
	if err := CheckFreshness(env, now, maxAge); err != nil {
		return nil, err
	}
	return Decrypt(env.Ciphertext, env.Nonce, env.Tag, key)
}
