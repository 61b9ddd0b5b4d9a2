// Package sse reads and writes Server-Sent Events. The reader parses
// streaming responses from upstream model providers and from the reel API.
// The writer frames the API's own streaming responses.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single SSE event, delimited by a blank line in the
// byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
