// Package nsupdate applies zone update transactions through the nsupdate channel.
//
// Every invocation blocks the caller for the channel call plus a fixed settle pause; the remote
// endpoint drops updates that arrive too quickly. Failures draw down a lifetime Tolerance
// budget and exhausting it is fatal. A failure does not affect how the next Apply proceeds.
package nsupdate
