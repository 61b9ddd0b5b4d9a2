package exchange

const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// Event is one message on a streaming exchange channel. A stream carries
// any number of chunk events followed by exactly one done or error event.
type Event struct {
	Type string `json:"type"`

	// Content is set on chunk events.
	Content string `json:"content,omitempty"`

	// ID and FullContent are set on the done event. ID is the persisted
	// generator turn.
	ID          string `json:"id,omitempty"`
	FullContent string `json:"fullContent,omitempty"`

	// Message is set on error events.
	Message string `json:"message,omitempty"`
}

func chunkEvent(content string) Event {
	return Event{Type: EventChunk, Content: content}
}

func doneEvent(id, full string) Event {
	return Event{Type: EventDone, ID: id, FullContent: full}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
