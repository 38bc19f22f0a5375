// Package woo is the gateway to the upstream commerce API.
//
// The Client serializes all outbound calls behind a single mutex because
// the hourly quota is shared across the whole process. Throttled (429)
// responses are retried after the server-suggested delay, transient
// failures with exponential backoff, and repeated failures trip a circuit
// breaker. 4xx responses other than throttling fail immediately.
//
// The Fetcher layers source-maximum pagination on top of the Client and
// streams pages to a callback. It keeps no resumable cursor: a failed
// fetch is restarted from the first page.
package woo
