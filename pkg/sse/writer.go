package sse

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteEvent marshals v and writes it as a single SSE data frame,
// terminated by the SSE spec's blank line.
func WriteEvent(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling event payload: %w", err)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}

	return nil
}
