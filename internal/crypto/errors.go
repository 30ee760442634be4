package crypto

import "errors"

var (
	ErrKeyLength           = errors.New("crypto: invalid key length")
	ErrNonceLength         = errors.New("crypto: invalid nonce length")
	ErrSaltLength          = errors.New("crypto: invalid salt length")
	ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext")
	ErrDecrypt             = errors.New("crypto: message authentication failed")
	ErrPublicKey           = errors.New("crypto: invalid public key")
	ErrSignatureInvalid    = errors.New("crypto: signature verification failed")
	ErrMessageTooOld       = errors.New("crypto: message outside replay window")
)
