package types

import "time"

// Envelope is a sealed, signed message as it travels on the wire. A new
// envelope is produced for every hop.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Tag        []byte `json:"tag"`
	Signature  []byte `json:"signature"`
	Timestamp  int64  `json:"timestamp"`
}

// Time returns the envelope creation time.
func (e Envelope) Time() time.Time { return time.UnixMilli(e.Timestamp) }
