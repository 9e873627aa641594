package utils

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSSEEvent writes a named event whose payload is v encoded as JSON.
func WriteSSEEvent(w io.Writer, event string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

// WriteSSEComment writes a comment line, used as a keepalive.
func WriteSSEComment(w io.Writer, comment string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", comment)
	return err
}
