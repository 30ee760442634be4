package crypto_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
)

// fastKDF keeps scrypt cheap in tests.
var fastKDF = crypto.KDFParams{N: 1 << 10, R: 8, P: 1}

func randomKey(t *testing.T) domain.SymmetricKey {
	t.Helper()
	priv, _, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return domain.SymmetricKey(priv)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := randomKey(t)
	msg := []byte("hello relay")

	ct, nonce, tag, err := crypto.Encrypt(msg, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(nonce) != 24 || len(tag) != 16 {
		t.Fatalf("nonce/tag lengths = %d/%d, want 24/16", len(nonce), len(tag))
	}
	if len(ct) != len(msg) {
		t.Fatalf("ciphertext length = %d, want %d", len(ct), len(msg))
	}
	pt, err := crypto.Decrypt(ct, nonce, tag, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, msg) {
		t.Fatalf("got %q, want %q", pt, msg)
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	key := randomKey(t)
	_, n1, _, _ := crypto.Encrypt([]byte("x"), key)
	_, n2, _, _ := crypto.Encrypt([]byte("x"), key)
	if bytes.Equal(n1, n2) {
		t.Fatal("nonce reused across encryptions")
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	ct, nonce, tag, err := crypto.Encrypt([]byte("secret"), randomKey(t))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := crypto.Decrypt(ct, nonce, tag, randomKey(t)); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

func TestDecrypt_TamperedCiphertextFails(t *testing.T) {
	key := randomKey(t)
	ct, nonce, tag, _ := crypto.Encrypt([]byte("secret"), key)
	ct[0] ^= 0x01
	if _, err := crypto.Decrypt(ct, nonce, tag, key); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

func TestDecrypt_BadNonceLength(t *testing.T) {
	key := randomKey(t)
	ct, _, tag, _ := crypto.Encrypt([]byte("secret"), key)
	if _, err := crypto.Decrypt(ct, make([]byte, 12), tag, key); !errors.Is(err, crypto.ErrNonceLength) {
		t.Fatalf("err = %v, want ErrNonceLength", err)
	}
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	data := []byte("payload")
	sig := crypto.Sign(data, priv)
	if !crypto.Verify(data, sig, pub) {
		t.Fatal("valid signature rejected")
	}
	if crypto.Verify([]byte("payloaD"), sig, pub) {
		t.Fatal("signature verified over modified data")
	}
	_, other, _ := crypto.GenerateEd25519()
	if crypto.Verify(data, sig, other) {
		t.Fatal("signature verified under wrong key")
	}
	if crypto.Verify(data, sig[:10], pub) {
		t.Fatal("short signature accepted")
	}
	if priv.Public() != pub {
		t.Fatal("embedded public key mismatch")
	}
}

func TestKeyExchange_Agrees(t *testing.T) {
	aPriv, aPub, _ := crypto.GenerateX25519()
	bPriv, bPub, _ := crypto.GenerateX25519()

	k1, err := crypto.KeyExchange(aPriv, bPub)
	if err != nil {
		t.Fatalf("KeyExchange a: %v", err)
	}
	k2, err := crypto.KeyExchange(bPriv, aPub)
	if err != nil {
		t.Fatalf("KeyExchange b: %v", err)
	}
	if k1 != k2 {
		t.Fatal("derived keys differ")
	}
}

func TestKeyExchange_RejectsZeroPoint(t *testing.T) {
	priv, _, _ := crypto.GenerateX25519()
	if _, err := crypto.KeyExchange(priv, domain.X25519Public{}); !errors.Is(err, crypto.ErrPublicKey) {
		t.Fatalf("err = %v, want ErrPublicKey", err)
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, crypto.SaltBytes)
	k1, err := crypto.DeriveKey([]byte("correct horse"), salt, fastKDF)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, _ := crypto.DeriveKey([]byte("correct horse"), salt, fastKDF)
	if k1 != k2 {
		t.Fatal("same inputs gave different keys")
	}
	k3, _ := crypto.DeriveKey([]byte("correct horsE"), salt, fastKDF)
	if k1 == k3 {
		t.Fatal("different passwords gave same key")
	}
	if _, err := crypto.DeriveKey([]byte("pw"), salt[:8], fastKDF); !errors.Is(err, crypto.ErrSaltLength) {
		t.Fatalf("err = %v, want ErrSaltLength", err)
	}
}

func TestMAC(t *testing.T) {
	key := []byte("mac key")
	tag, err := crypto.MAC([]byte("m"), key)
	if err != nil {
		t.Fatalf("MAC: %v", err)
	}
	if len(tag) != 64 {
		t.Fatalf("tag length = %d, want 64", len(tag))
	}
	if !crypto.VerifyMAC([]byte("m"), tag, key) {
		t.Fatal("valid tag rejected")
	}
	if crypto.VerifyMAC([]byte("n"), tag, key) {
		t.Fatal("tag verified over other message")
	}
	if _, err := crypto.MAC([]byte("m"), nil); !errors.Is(err, crypto.ErrKeyLength) {
		t.Fatalf("err = %v, want ErrKeyLength", err)
	}
}

func TestEnvelope_SealOpen(t *testing.T) {
	key := randomKey(t)
	priv, pub, _ := crypto.GenerateEd25519()
	now := time.Now()

	env, err := crypto.SealEnvelope([]byte("hi"), key, priv, now)
	if err != nil {
		t.Fatalf("SealEnvelope: %v", err)
	}
	pt, err := crypto.OpenEnvelope(env, key, pub, now.Add(time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("OpenEnvelope: %v", err)
	}
	if string(pt) != "hi" {
		t.Fatalf("got %q, want %q", pt, "hi")
	}
}

func TestEnvelope_TooOld(t *testing.T) {
	key := randomKey(t)
	priv, pub, _ := crypto.GenerateEd25519()
	now := time.Now()

	env, _ := crypto.SealEnvelope([]byte("hi"), key, priv, now.Add(-6*time.Minute))
	if _, err := crypto.OpenEnvelope(env, key, pub, now, 5*time.Minute); !errors.Is(err, crypto.ErrMessageTooOld) {
		t.Fatalf("err = %v, want ErrMessageTooOld", err)
	}

	future, _ := crypto.SealEnvelope([]byte("hi"), key, priv, now.Add(6*time.Minute))
	if _, err := crypto.OpenEnvelope(future, key, pub, now, 5*time.Minute); !errors.Is(err, crypto.ErrMessageTooOld) {
		t.Fatalf("future err = %v, want ErrMessageTooOld", err)
	}
}

func TestEnvelope_BadSignature(t *testing.T) {
	key := randomKey(t)
	priv, _, _ := crypto.GenerateEd25519()
	_, otherPub, _ := crypto.GenerateEd25519()

	env, _ := crypto.SealEnvelope([]byte("hi"), key, priv, time.Now())
	if _, err := crypto.OpenEnvelope(env, key, otherPub, time.Now(), time.Minute); !errors.Is(err, crypto.ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3}
	crypto.Wipe(b)
	if !bytes.Equal(b, []byte{0, 0, 0}) {
		t.Fatalf("got %v, want zeros", b)
	}
}

func TestFingerprint(t *testing.T) {
	_, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	fp := crypto.Fingerprint(pub)
	if len(fp) != 24 || strings.Count(fp.String(), ":") != 4 {
		t.Fatalf("fingerprint = %q, want 5 groups of 4", fp)
	}
	if fp != crypto.Fingerprint(pub) {
		t.Fatal("fingerprint not deterministic")
	}
}

func TestWipeKey(t *testing.T) {
	k := domain.SymmetricKey{1, 2, 3}
	crypto.WipeKey(&k)
	if !k.IsZero() {
		t.Fatalf("key not wiped: %v", k)
	}
}
