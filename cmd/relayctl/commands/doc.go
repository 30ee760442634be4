// Package commands defines the relayctl CLI.
//
// Commands
//
//   - register     Create a signing key and an account on the relay
//   - login        Exchange credentials for a bearer token
//   - fingerprint  Print your signing key fingerprint
//   - key          Fetch and print another user's registered key
//   - send         Seal and send one message over a fresh connection
//   - listen       Stay connected and print delivered messages
//
// # Implementation
//
// Keys are sealed under the passphrase in <home>/keys; relay URL, user ID
// and token are remembered per username in <home>/profiles.json so later
// commands only need --username.
package commands
