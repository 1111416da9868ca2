// Package dispatch implements the serialized send path.
//
// A Pipeline accepts events from any number of goroutines and hands them to
// a single worker that calls the Sender one delivery at a time, in
// acceptance order. Acceptance applies, in order:
//
//  1. drop everything when disabled
//  2. drop events the filter rejects
//  3. drop events with no payload; log other validation failures
//  4. hold events in the pre-identity queue while waiting for a profile
//  5. stamp anonymous track events with the current profile identity
//  6. append to the FIFO drained by the worker
//
// Release drains the pre-identity queue through steps 5 and 6 without
// re-checking step 4, under the same lock that serializes acceptance, so
// queued events always precede events accepted after the release.
//
// Acceptance never waits on the worker, so OnError may Submit.
//
// A failed delivery never stops the worker. It is logged, counted, saved to
// the dead-letter store when one is configured, and reported to OnError.
package dispatch
