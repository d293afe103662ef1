// Package integrations talks to the external services the server depends
// on: the AHN elevation tile index, the NMI soil API and the PostHog
// ingestion endpoint.
//
// Outbound calls run under their own timeouts and are recorded in
// internal/metrics. Failures surface as ErrUpstream, which the HTTP layer
// turns into 502 Bad Gateway.
package integrations
