// Package server is the relay's network edge.
//
// It upgrades HTTP requests on /ws to WebSocket connections after
// admission control, and drives each connection through the protocol state
// machine:
//
//	Unauthenticated --auth--> Authenticated --key_exchange--> Active
//	       \                        \                          /
//	        `------------------------`-------- close -------> Closed
//
// Every connection has one read loop that handles its frames in order and
// one write pump that drains a bounded send queue, so no lock is ever held
// across network I/O. A heartbeat worker pings every connection and closes
// those that did not answer the previous ping. Closing a connection, for
// any reason, deregisters it, ends its session and releases its admission
// slot exactly once.
//
// The same router serves the account API (/api/register, /api/login,
// /api/users/{id}/key), /healthz and /metrics.
package server
