package session

import (
	"bufio"
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/sahilchouksey/study-artifacts/model"
	sessionsvc "github.com/sahilchouksey/study-artifacts/services/session"
	"github.com/sahilchouksey/study-artifacts/utils/response"
	"github.com/sahilchouksey/study-artifacts/utils/sse"
)

const (
	keepAliveInterval = 15 * time.Second
	maxStreamDuration = 30 * time.Minute
	reconnectDelay    = 5 * time.Second
)

// StreamEvents handles GET /api/v1/sessions/:id/events
// Streams progress events until the session reaches a terminal status.
func (h *SessionHandler) StreamEvents(c *fiber.Ctx) error {
	sess, err := h.ownedSession(c)
	if sess == nil {
		return err
	}
	if h.events == nil {
		return response.ServiceUnavailable(c, "Progress streaming is not available")
	}

	// Subscribe before reading the last event so nothing published in
	// between is missed
	ctx, cancel := context.WithTimeout(context.Background(), maxStreamDuration)
	events, stop, err := h.events.Subscribe(ctx, sess.ID)
	if err != nil {
		cancel()
		log.Errorf("[SESSION] Failed to subscribe to %s: %v", sess.ID, err)
		return response.InternalServerError(c, "Failed to subscribe to progress")
	}
	last, err := h.events.LastEvent(ctx, sess.ID)
	if err != nil {
		log.Warnf("[SESSION] Failed to read last event of %s: %v", sess.ID, err)
	}
	report := sessionsvc.BuildReport(sess)

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// The Fiber context is not valid inside the stream writer
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer stop()
		stream := sse.NewStream(w, reconnectDelay)

		if last != nil {
			if err := stream.Event(string(last.Type), last); err != nil {
				return
			}
			// the run finished after the session was read
			if isTerminal(*last) {
				return
			}
		}

		if report.Status.IsTerminal() {
			stream.Event(string(model.EventComplete), report)
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := stream.Event(string(event.Type), event); err != nil {
					// client went away
					return
				}
				if isTerminal(event) {
					return
				}
			case <-ticker.C:
				if err := stream.Ping(); err != nil {
					return
				}
			case <-ctx.Done():
				stream.Fail("timeout", "Progress stream timed out, poll the status endpoint")
				return
			}
		}
	})

	return nil
}

func isTerminal(event model.ProgressEvent) bool {
	return (event.Type == model.EventComplete || event.Type == model.EventError) && event.Status.IsTerminal()
}
