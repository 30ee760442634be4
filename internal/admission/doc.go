// Package admission decides whether the relay accepts work from a peer.
//
// ConnLimiter caps concurrent connections per source address. RateLimiter
// is a fixed-window counter keyed by (address, endpoint). Lockout freezes an
// account after repeated authentication failures. FrameLimiter is a token
// bucket bounding the frames a single connection may send.
package admission
