// Package discovery adapts local-link service advertisements into reconcile events.
//
// The event contract is small: AddressFound(name, family, addr) and AddressLost(name), plus an
// asynchronous reverse resolution capability whose completion callback runs on the resolver's own
// goroutine. Callers that need single-threaded state must hand the result back to their own loop.
//
// Browser polls mDNS service advertisements; MulticastResolver answers "who owns this address"
// with a legacy unicast PTR query to the mDNS group.
package discovery
