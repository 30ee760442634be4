package types

import "time"

// Account is a registered relay user.
type Account struct {
	ID           UserID        `cbor:"1,keyasint" json:"id"`
	Username     Username      `cbor:"2,keyasint" json:"username"`
	PasswordHash string        `cbor:"3,keyasint" json:"-"`
	PublicKey    Ed25519Public `cbor:"4,keyasint" json:"public_key"`
	CreatedAt    time.Time     `cbor:"5,keyasint" json:"created_at"`
}

// Claims is what a verified bearer token asserts about its holder.
type Claims struct {
	UserID    UserID        `json:"uid"`
	Username  Username      `json:"usr"`
	PublicKey Ed25519Public `json:"pk"`
	ExpiresAt int64         `json:"exp"`
}
