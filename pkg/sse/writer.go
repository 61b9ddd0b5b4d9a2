package sse

import (
	"fmt"
	"io"
	"strings"
)

// Write frames ev onto w. Multi-line data is split across "data:" lines
// so that readers rejoin it unchanged.
func Write(w io.Writer, ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	for line := range strings.SplitSeq(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
