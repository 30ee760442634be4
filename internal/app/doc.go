// Package app wires the relay's components together.
//
// New builds the stores, limiters, services, monitor and network edge from
// a validated config.Config and exposes them on App so commands and tests
// can reach them. Start launches every background worker; Shutdown stops
// them in reverse order.
package app
