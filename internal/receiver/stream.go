package receiver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lumenjournal/lumen/internal/backoff"
)

// run keeps one stream connection alive, reconnecting with backoff until
// the context is cancelled. The attempt counter resets after any successful
// connection so a brief outage does not leave the schedule at its ceiling.
func (r *Receiver) run(ctx context.Context) {
	attempt := 0
	for {
		connected, err := r.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 0
		}
		attempt++

		r.mu.Lock()
		policy := r.policy
		r.mu.Unlock()

		r.logger.Debug("stream disconnected, scheduling reconnect",
			"attempt", attempt,
			"error", err,
		)
		if err := backoff.Sleep(ctx, policy, attempt); err != nil {
			return
		}
	}
}

// connectOnce opens the stream and consumes frames until it ends. It
// reports whether a connection was established at all, so the caller can
// reset its backoff schedule.
func (r *Receiver) connectOnce(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.URL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if r.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.Token)
	}

	resp, err := r.config.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream endpoint returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	var id, event string
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()

		// Blank line ends a frame.
		if line == "" {
			r.dispatch(id, event, data)
			id, event, data = "", "", nil
			continue
		}
		// Heartbeats and other comments.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			id = value
		case "event":
			event = value
		case "data":
			if data != nil {
				data = append(data, '\n')
			}
			data = append(data, value...)
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
				r.mu.Lock()
				r.policy = r.policy.WithInitial(time.Duration(ms) * time.Millisecond)
				r.mu.Unlock()
			}
		}
	}
	return true, scanner.Err()
}

// dispatch turns one complete frame into an item. Frames without an event
// name or with a payload that does not parse as JSON are dropped silently;
// a bad frame must never kill the connection.
func (r *Receiver) dispatch(id, event string, data []byte) {
	if event == "" || len(data) == 0 {
		return
	}
	if !json.Valid(data) {
		r.logger.Debug("dropping malformed frame", "event", event)
		return
	}
	r.ingest(Item{
		EventID:    id,
		Event:      event,
		Payload:    json.RawMessage(append([]byte(nil), data...)),
		ReceivedAt: time.Now(),
	}, true)
}
