package realtime

import (
	"encoding/json"
	"sync"
	"testing"
)

// testSink records delivered frames; set fail to simulate a dead connection
// that has not yet been pruned from the registry.
type testSink struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (s *testSink) Send(frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return ErrSinkClosed
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *testSink) received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(nil, nil)

	// Must return without error and leave no trace.
	bus.Publish(TopicFeed, "newPost", map[string]string{"id": "p1"})

	if bus.Topics() != 0 {
		t.Errorf("topics = %d, want 0", bus.Topics())
	}
}

func TestBus_FanOutAndUnsubscribe(t *testing.T) {
	bus := NewBus(nil, nil)
	first := &testSink{}
	second := &testSink{}
	bus.Subscribe(first, TopicFeed)
	bus.Subscribe(second, TopicFeed)

	bus.Publish(TopicFeed, "newPost", map[string]string{"id": "p1"})

	for name, sink := range map[string]*testSink{"first": first, "second": second} {
		frames := sink.received()
		if len(frames) != 1 {
			t.Fatalf("%s sink got %d frames, want 1", name, len(frames))
		}
		if frames[0].Event != "newPost" {
			t.Errorf("%s sink event = %q, want newPost", name, frames[0].Event)
		}
		var payload map[string]string
		if err := json.Unmarshal(frames[0].Data, &payload); err != nil {
			t.Fatalf("%s sink payload: %v", name, err)
		}
		if payload["id"] != "p1" {
			t.Errorf("%s sink payload id = %q, want p1", name, payload["id"])
		}
	}

	bus.Unsubscribe(first, TopicFeed)
	bus.Publish(TopicFeed, "newPost", map[string]string{"id": "p2"})

	if got := len(first.received()); got != 1 {
		t.Errorf("unsubscribed sink got %d frames, want 1", got)
	}
	if got := len(second.received()); got != 2 {
		t.Errorf("remaining sink got %d frames, want 2", got)
	}
}

func TestBus_TopicIsolation(t *testing.T) {
	bus := NewBus(nil, nil)
	sink := &testSink{}
	bus.Subscribe(sink, UserTopic("42"))

	bus.Publish(UserTopic("43"), "notification", map[string]string{"kind": "heart"})

	if got := len(sink.received()); got != 0 {
		t.Errorf("sink on user:42 got %d frames from user:43, want 0", got)
	}
}

func TestBus_FailedSinkDoesNotBlockOthers(t *testing.T) {
	bus := NewBus(nil, nil)
	dead := &testSink{fail: true}
	alive := &testSink{}
	bus.Subscribe(dead, TopicFeed)
	bus.Subscribe(alive, TopicFeed)

	bus.Publish(TopicFeed, "newPost", map[string]string{"id": "p1"})

	if got := len(alive.received()); got != 1 {
		t.Errorf("healthy sink got %d frames, want 1", got)
	}
}

func TestBus_EmptyTopicsArePruned(t *testing.T) {
	bus := NewBus(nil, nil)

	for i := 0; i < 100; i++ {
		sink := &testSink{}
		bus.Subscribe(sink, UserTopic("u"))
		bus.Unsubscribe(sink, UserTopic("u"))
	}

	if bus.Topics() != 0 {
		t.Errorf("topics = %d after churn, want 0", bus.Topics())
	}
	if bus.Subscribers(UserTopic("u")) != 0 {
		t.Errorf("subscribers = %d, want 0", bus.Subscribers(UserTopic("u")))
	}
}

func TestBus_SubscribeIdempotent(t *testing.T) {
	bus := NewBus(nil, nil)
	sink := &testSink{}
	bus.Subscribe(sink, TopicFeed)
	bus.Subscribe(sink, TopicFeed)

	if got := bus.Subscribers(TopicFeed); got != 1 {
		t.Errorf("subscribers = %d, want 1", got)
	}

	bus.Publish(TopicFeed, "newPost", nil)
	if got := len(sink.received()); got != 1 {
		t.Errorf("sink got %d frames, want 1", got)
	}
}

func TestBus_UnsubscribeUnknownIsNoop(t *testing.T) {
	bus := NewBus(nil, nil)
	bus.Unsubscribe(&testSink{}, "never-subscribed")

	other := &testSink{}
	bus.Subscribe(other, TopicFeed)
	bus.Unsubscribe(&testSink{}, TopicFeed)
	if got := bus.Subscribers(TopicFeed); got != 1 {
		t.Errorf("subscribers = %d, want 1", got)
	}
}

func TestBus_DeliveryOrderPerSink(t *testing.T) {
	bus := NewBus(nil, nil)
	sink := &testSink{}
	bus.Subscribe(sink, TopicFeed)

	for _, id := range []string{"p1", "p2", "p3"} {
		bus.Publish(TopicFeed, "newPost", map[string]string{"id": id})
	}

	frames := sink.received()
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		var payload map[string]string
		if err := json.Unmarshal(frames[i].Data, &payload); err != nil {
			t.Fatal(err)
		}
		if payload["id"] != want {
			t.Errorf("frame %d id = %q, want %q", i, payload["id"], want)
		}
	}
}

func TestBus_FrameIDsUnique(t *testing.T) {
	bus := NewBus(nil, nil)
	sink := &testSink{}
	bus.Subscribe(sink, TopicFeed)

	for i := 0; i < 10; i++ {
		bus.Publish(TopicFeed, "newPost", nil)
	}

	seen := make(map[string]bool)
	for _, frame := range sink.received() {
		if frame.ID == "" {
			t.Fatal("frame without id")
		}
		if seen[frame.ID] {
			t.Fatalf("duplicate frame id %s", frame.ID)
		}
		seen[frame.ID] = true
	}
}

func TestBus_UnserializablePayloadDropped(t *testing.T) {
	bus := NewBus(nil, nil)
	sink := &testSink{}
	bus.Subscribe(sink, TopicFeed)

	// A channel cannot be marshaled; the publish must be swallowed.
	bus.Publish(TopicFeed, "newPost", make(chan int))

	if got := len(sink.received()); got != 0 {
		t.Errorf("sink got %d frames, want 0", got)
	}
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus(nil, nil)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink := &testSink{}
			for j := 0; j < 100; j++ {
				bus.Subscribe(sink, TopicFeed)
				bus.Publish(TopicFeed, "newPost", map[string]int{"n": j})
				bus.Unsubscribe(sink, TopicFeed)
			}
		}()
	}
	wg.Wait()

	if bus.Topics() != 0 {
		t.Errorf("topics = %d after concurrent churn, want 0", bus.Topics())
	}
}
