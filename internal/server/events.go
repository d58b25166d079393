package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventWriter writes Server-Sent Events. Headers go out with the first event.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	f, _ := w.(http.Flusher)
	return &eventWriter{w: w, flusher: f}
}

func (e *eventWriter) open() error {
	if e.started {
		return nil
	}
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	e.w.WriteHeader(http.StatusOK)
	e.started = true
	e.flush()
	return nil
}

// send writes one event with a JSON payload. An empty name sends an unnamed message.
func (e *eventWriter) send(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := e.open(); err != nil {
		return err
	}
	if name != "" {
		if _, err := fmt.Fprintf(e.w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	e.flush()
	return nil
}

// done ends a stream the way OpenAI-style clients expect.
func (e *eventWriter) done() error {
	if err := e.open(); err != nil {
		return err
	}
	if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	e.flush()
	return nil
}

func (e *eventWriter) flush() {
	if e.flusher != nil {
		e.flusher.Flush()
	}
}
