package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bus"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

const defaultHeartbeat = 30 * time.Second

// Events streams the view as server-sent events: a "view" event on connect
// and after every change, a "heartbeat" event while idle. Bursts of
// changes are coalesced into one event.
func Events(d deps.Deps) http.HandlerFunc {
	heartbeat := d.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		rc := http.NewResponseController(w)
		if err := rc.Flush(); err != nil {
			d.Logger.Error("failed to flush headers", logger.Error(err))
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		changed := make(chan struct{}, 1)
		unsubscribe := bus.On(d.Bus, bus.TopicViewChanged, func(domain.ViewChange) error {
			select {
			case changed <- struct{}{}:
			default:
			}
			return nil
		})
		defer unsubscribe()

		log := d.Logger.With(logger.String("remote_ip", r.RemoteAddr))
		send := func(event string, data any) error {
			return sendEvent(rc, w, 2*heartbeat, event, data)
		}

		if err := send("view", snapshot(d.View)); err != nil {
			log.Debug("client disconnected before first event", logger.Error(err))
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-changed:
				if err := send("view", snapshot(d.View)); err != nil {
					log.Debug("client disconnected during send", logger.Error(err))
					return
				}
			case <-ticker.C:
				if err := send("heartbeat", map[string]int64{"ts": time.Now().Unix()}); err != nil {
					log.Debug("client disconnected during heartbeat", logger.Error(err))
					return
				}
			case <-d.Done:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

func sendEvent(rc *http.ResponseController, w http.ResponseWriter, deadline time.Duration, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	// The server's WriteTimeout would cut the stream; push the deadline
	// forward on every event instead.
	_ = rc.SetWriteDeadline(time.Now().Add(deadline))

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return rc.Flush()
}
