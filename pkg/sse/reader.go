package sse

import (
	"bufio"
	"io"
	"strings"
)

// Reader parses SSE events from a source io.Reader.
type Reader struct {
	scanner *bufio.Scanner

	// current accumulates fields for the event being built.
	current *Event
	hasData bool
}

// NewReader returns a Reader that parses SSE events from src.
func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{
		scanner: scanner,
		current: &Event{},
	}
}

// Next blocks until a complete event is available (terminated by a blank
// line in the stream). Next returns nil, nil when the source is exhausted.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		if raw == "" {
			if r.hasData {
				ev := r.current
				r.reset()
				return ev, nil
			}

			// leading blank lines and keep-alive newlines
			continue
		}

		if strings.HasPrefix(raw, ":") {
			continue
		}

		r.parseLine(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Stream ended without a trailing blank line.
	if r.hasData {
		ev := r.current
		r.reset()
		return ev, nil
	}

	return nil, nil
}

// parseLine accumulates a single "field:value" line into the current
// event. The first space after the colon is optional and stripped.
func (r *Reader) parseLine(line string) {
	var field, value string

	if before, after, ok := strings.Cut(line, ":"); ok {
		field = before
		value = strings.TrimPrefix(after, " ")
	} else {
		field = line
	}

	switch field {
	case "data":
		if r.hasData && r.current.Data != "" {
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
		r.hasData = true
	case "id":
		r.current.ID = value
		r.hasData = true
	default:
		// "retry" and unknown fields are ignored.
	}
}

func (r *Reader) reset() {
	r.current = &Event{}
	r.hasData = false
}
