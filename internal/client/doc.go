// Package client is the client side of the relay: an HTTP client for the
// account API and a WebSocket client that authenticates, agrees a session
// key and exchanges sealed envelopes.
//
// A Conn is not safe for concurrent reads; run Next from one goroutine.
// Sends may come from any goroutine.
package client
