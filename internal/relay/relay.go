// Package relay forwards an incremental generation stream to a live client
// channel while accumulating the full text for persistence.
package relay

import (
	"errors"
	"io"
	"strings"
)

// Event is one message on the client channel. Exactly one field is set.
type Event struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Source yields text fragments. io.EOF signals normal termination; any other
// error is an upstream failure.
type Source interface {
	Recv() (string, error)
}

// Sink is a live, ordered, append-only channel to exactly one client
// connection. Send must flush the event before returning. A Send error means
// the client is gone.
type Sink interface {
	Send(Event) error
}

// Run drains src into sink, forwarding each fragment as it arrives.
//
// On normal termination it sends a done event and invokes onComplete exactly
// once with the accumulated text. On upstream error it sends an error event
// and returns without invoking onComplete. On a sink write failure it stops
// immediately, also without invoking onComplete — an interrupted stream never
// produces a persisted reply with truncated content.
func Run(src Source, sink Sink, onComplete func(fullText string)) error {
	var acc strings.Builder

	for {
		frag, err := src.Recv()
		if errors.Is(err, io.EOF) {
			if err := sink.Send(Event{Done: true}); err != nil {
				return err
			}
			if onComplete != nil {
				onComplete(acc.String())
			}
			return nil
		}
		if err != nil {
			// Best effort: the client may already be gone.
			_ = sink.Send(Event{Error: err.Error()})
			return err
		}

		acc.WriteString(frag)
		if err := sink.Send(Event{Content: frag}); err != nil {
			return err
		}
	}
}
