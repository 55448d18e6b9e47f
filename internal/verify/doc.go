// Package verify audits candidate-stale zone addresses before they are deleted.
//
// A Round covers one AddressFound event: every published address other than the new one is
// re-resolved over the local link, and the round commits one transaction once every result is in.
// Rounds are owned by a single goroutine; resolver callbacks must be funneled back to that
// goroutine through the deliver function before OnResult is called.
package verify
