/*
Package openpanel is a client for recording analytics events and delivering
them to an OpenPanel collection endpoint.

# Overview

Every operation is fire-and-forget. Calls return immediately; events are
delivered one at a time, in the order they were accepted, by a single
background worker. Delivery failures are logged and reported through
Options.OnError but never returned to the caller.

# Basic Usage

	client, err := openpanel.New(openpanel.Options{
	    ClientID:     "your-client-id",
	    ClientSecret: "your-client-secret",
	})
	if err != nil {
	    log.Fatal(err)
	}
	defer client.Close(context.Background())

	client.SetGlobalProperties(map[string]any{"app_version": "1.4.0"})
	client.Identify(event.IdentifyPayload{ProfileID: "user-42", Email: "ada@example.com"})
	client.Track("checkout_completed", map[string]any{"total": 99.5})

# Waiting for a Profile

With WaitForProfile set, events accepted before Identify are held in memory.
Identify releases them in order, stamped with the new profile id. Ready
releases them without an identity and stops waiting for good.

# Properties

Global properties are defaults for every Track call; call-site properties
win on collision. A string "profileId" property on Track overrides the
current identity for that event.

# Observability

Logs go to Options.Logger (slog.Default() when nil). Set Options.Metrics or
Options.Tracing to record OpenTelemetry metrics and spans through the global
providers. Options.DeadLetters keeps terminally failed deliveries for
inspection.

# Thread Safety

Client is safe for concurrent use.
*/
package openpanel
