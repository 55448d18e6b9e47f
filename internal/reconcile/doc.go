// Package reconcile keeps zone address records in step with local-link discovery.
//
// Ownership boundary:
// - per-hostname add/update/delete decisions
//
// - the single-threaded event loop that serializes discovery events, verification results and
// zone updates
//
// Lifecycle per AddressFound:
// - started -> decided -> applied (unaudited)
//
// - started -> awaiting verification -> committed (audited)
//
// Known gap: events for one hostname are not serialized against each other. A second
// AddressFound while a round is pending starts its own round, and AddressLost deletes every
// address for the hostname even when several advertisers share it.
package reconcile
