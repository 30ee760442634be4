// Command relayd runs the cipherline relay: a WebSocket hub that
// authenticates clients, agrees a per-session key with each connection and
// re-seals every message for each connection of its recipient. Nothing is
// stored for offline users.
//
// HTTP API
//
//	GET /ws
//	    Upgrade to the framed JSON protocol (auth, key_exchange, message,
//	    ping, pong, error). Over-limit clients are closed with 1008.
//
//	POST /api/register {"username","password","publicKey"}
//	    Create an account bound to an Ed25519 signing key.
//
//	POST /api/login {"username","password"}
//	    Return a bearer token for the auth frame. 423 while locked out.
//
//	GET /api/users/{id}/key
//	    Return a user's registered signing key. Requires a bearer token.
//
//	GET /healthz, GET /metrics
//
// # Configuration
//
// relayd reads an optional TOML file (-f) and then CIPHERLINE_* environment
// variables. The relay signing key is sealed under a passphrase given with
// --passphrase or CIPHERLINE_KEY_PASSPHRASE. SIGHUP reopens the log file.
package main
