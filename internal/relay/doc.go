// Package relay fans decrypted messages out to a recipient's live
// connections.
//
// The Registry maps each user to the connections they currently hold. The
// Relay re-seals a message separately for every recipient connection, under
// that connection's own session key, and signs it with the relay identity
// key. A failing connection is logged and skipped; it never holds up
// delivery to the others. Messages for users with no keyed connection are
// dropped with ErrRecipientUnreachable; nothing is queued.
package relay
