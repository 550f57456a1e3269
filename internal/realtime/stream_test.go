package realtime

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lumenjournal/lumen/internal/auth"
)

// streamClient reads SSE lines off a live test connection.
type streamClient struct {
	resp  *http.Response
	lines chan string
}

func dialStream(t *testing.T, url string) *streamClient {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	client := &streamClient{resp: resp, lines: make(chan string, 64)}
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			client.lines <- scanner.Text()
		}
		close(client.lines)
	}()
	return client
}

// expectLine waits for the next line matching the prefix, skipping blanks.
func (c *streamClient) expectLine(t *testing.T, prefix string) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				t.Fatalf("stream closed while waiting for %q", prefix)
			}
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, prefix) {
				return line
			}
		case <-deadline:
			t.Fatalf("timed out waiting for line with prefix %q", prefix)
		}
	}
}

func waitForSubscribers(t *testing.T, bus *Bus, topic string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if bus.Subscribers(topic) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("topic %q has %d subscribers, want %d", topic, bus.Subscribers(topic), want)
}

func TestFeedHandler_StreamsPublishedEvents(t *testing.T) {
	bus := NewBus(nil, nil)
	streamer := NewStreamer(bus, DefaultStreamConfig(), nil, nil)

	server := httptest.NewServer(streamer.FeedHandler())
	defer server.Close()
	defer streamer.Close()

	client := dialStream(t, server.URL)

	if got := client.resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}
	if got := client.resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("cache control = %q", got)
	}

	retry := client.expectLine(t, "retry:")
	if retry != "retry: 3000" {
		t.Errorf("retry directive = %q, want retry: 3000", retry)
	}

	waitForSubscribers(t, bus, TopicFeed, 1)
	bus.Publish(TopicFeed, "newPost", map[string]string{"id": "p1"})

	if got := client.expectLine(t, "event:"); got != "event: newPost" {
		t.Errorf("event line = %q, want event: newPost", got)
	}
	if got := client.expectLine(t, "data:"); got != `data: {"id":"p1"}` {
		t.Errorf("data line = %q", got)
	}
}

func TestFeedHandler_UnsubscribesOnDisconnect(t *testing.T) {
	bus := NewBus(nil, nil)
	streamer := NewStreamer(bus, DefaultStreamConfig(), nil, nil)
	defer streamer.Close()

	server := httptest.NewServer(streamer.FeedHandler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	waitForSubscribers(t, bus, TopicFeed, 1)

	_ = resp.Body.Close()
	waitForSubscribers(t, bus, TopicFeed, 0)

	if bus.Topics() != 0 {
		t.Errorf("topics = %d after disconnect, want 0", bus.Topics())
	}
}

func TestFeedHandler_Heartbeat(t *testing.T) {
	bus := NewBus(nil, nil)
	config := DefaultStreamConfig()
	config.HeartbeatInterval = 20 * time.Millisecond
	streamer := NewStreamer(bus, config, nil, nil)

	server := httptest.NewServer(streamer.FeedHandler())
	defer server.Close()
	defer streamer.Close()

	client := dialStream(t, server.URL)
	client.expectLine(t, "retry:")
	client.expectLine(t, ":")
}

func TestNotificationsHandler_RequiresIdentity(t *testing.T) {
	bus := NewBus(nil, nil)
	streamer := NewStreamer(bus, DefaultStreamConfig(), nil, nil)
	defer streamer.Close()

	server := httptest.NewServer(streamer.NotificationsHandler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if bus.Topics() != 0 {
		t.Errorf("rejected caller left %d topics behind", bus.Topics())
	}
}

func TestNotificationsHandler_StreamsUserTopic(t *testing.T) {
	bus := NewBus(nil, nil)
	streamer := NewStreamer(bus, DefaultStreamConfig(), nil, nil)

	// Simulate the auth middleware resolving a session.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithIdentity(r.Context(), &auth.Identity{UserID: "42", Alias: "quiet-fox"})
		streamer.NotificationsHandler().ServeHTTP(w, r.WithContext(ctx))
	})
	server := httptest.NewServer(handler)
	defer server.Close()
	defer streamer.Close()

	client := dialStream(t, server.URL)
	client.expectLine(t, "retry:")
	waitForSubscribers(t, bus, UserTopic("42"), 1)

	// An event for another user must not reach this stream.
	bus.Publish(UserTopic("43"), "notification", map[string]string{"kind": "heart"})
	bus.Publish(UserTopic("42"), "notification", map[string]string{"kind": "reply"})

	if got := client.expectLine(t, "data:"); got != `data: {"kind":"reply"}` {
		t.Errorf("data line = %q, want the user:42 payload", got)
	}
}

func TestStreamer_CloseReleasesStreams(t *testing.T) {
	bus := NewBus(nil, nil)
	streamer := NewStreamer(bus, DefaultStreamConfig(), nil, nil)

	server := httptest.NewServer(streamer.FeedHandler())
	defer server.Close()

	client := dialStream(t, server.URL)
	client.expectLine(t, "retry:")
	waitForSubscribers(t, bus, TopicFeed, 1)

	streamer.Close()
	waitForSubscribers(t, bus, TopicFeed, 0)

	// The body reader should hit EOF shortly after.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-client.lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after streamer shutdown")
		}
	}
}

func TestStreamSink_DropsWhenFull(t *testing.T) {
	sink := newStreamSink(2)

	if err := sink.Send(Frame{ID: "1"}); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if err := sink.Send(Frame{ID: "2"}); err != nil {
		t.Fatalf("send 2: %v", err)
	}
	if err := sink.Send(Frame{ID: "3"}); err != ErrSinkFull {
		t.Errorf("send into full buffer = %v, want ErrSinkFull", err)
	}
}
