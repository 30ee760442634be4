// Package identity is the relay's account and token authority.
//
// It registers accounts (enforcing the password policy and hashing
// passwords with Argon2id), checks logins against the per-account lockout,
// and mints and verifies the MAC-tagged bearer tokens clients present in
// their auth frame.
package identity
