// Package feed fetches the upstream institution status feed.
//
// A Client issues one GET per endpoint: the uptime document, an object keyed
// by institution identifier, and the incident timeline, an array ordered
// newest first. Both are decoded into the pkg/types snapshots. Bodies are
// capped at MaxBodyBytes.
//
// Authentication (API key, bearer token, basic) is injected by the shared
// authRoundTripper in client.go. Every failure is returned as a *FetchError
// carrying the endpoint and, when the server answered, its status code.
package feed
