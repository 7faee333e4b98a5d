package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/pixil98/go-isleborn/internal/instance"
)

func startServer(t *testing.T) *NatsServer {
	t.Helper()

	s, err := NewNatsServer(WithPort(-1), WithStoreDir(t.TempDir()), WithStartTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("server stopped with error: %v", err)
		}
	})

	wait, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	if _, err := s.Conn(wait); err != nil {
		t.Fatalf("server never became ready: %v", err)
	}
	return s
}

func TestNatsServer_NotStarted(t *testing.T) {
	s, err := NewNatsServer(WithPort(-1), WithStoreDir(t.TempDir()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = s.Publish("anything", []byte("x"))
	testutil.AssertErrorContains(t, err, "not started")

	_, err = s.Subscribe("anything", func(string, []byte) {})
	testutil.AssertErrorContains(t, err, "not started")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Conn(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNatsServer_PublishSubscribe(t *testing.T) {
	s := startServer(t)

	got := make(chan string, 1)
	unsub, err := s.Subscribe("greetings.>", func(subject string, data []byte) {
		got <- subject + " " + string(data)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsub()

	conn, _ := s.Conn(context.Background())
	if err := conn.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := s.Publish("greetings.alice", []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case msg := <-got:
		testutil.AssertEqual(t, "message", msg, "greetings.alice hello")
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestEventPublisher_Notify(t *testing.T) {
	s := startServer(t)

	got := make(chan []byte, 1)
	var subject string
	unsub, err := s.Subscribe(SubjectPrefix+".>", func(subj string, data []byte) {
		subject = subj
		got <- data
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsub()
	conn, _ := s.Conn(context.Background())
	_ = conn.Flush()

	ev := instance.Event{
		Type:   instance.EventStarted,
		Owner:  "alice",
		Handle: "c1",
		Time:   time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	if err := NewEventPublisher(s).Notify(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case data := <-got:
		testutil.AssertEqual(t, "subject", subject, "instances.alice.started")
		var out instance.Event
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decoding event: %v", err)
		}
		testutil.AssertEqual(t, "type", out.Type, instance.EventStarted)
		testutil.AssertEqual(t, "handle", out.Handle, "c1")
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, []byte) error {
	return errors.New("connection closed")
}

func TestEventPublisher_PublishFailure(t *testing.T) {
	err := NewEventPublisher(failingPublisher{}).Notify(context.Background(),
		instance.Event{Type: instance.EventFailed, Owner: "bob"})
	testutil.AssertErrorContains(t, err, "publishing instances.bob.failed")
}

func TestClient_Dial(t *testing.T) {
	s := startServer(t)

	got := make(chan string, 1)
	unsub, err := s.Subscribe("ping", func(_ string, data []byte) { got <- string(data) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsub()
	sconn, _ := s.Conn(context.Background())
	_ = sconn.Flush()

	c := NewClient(s.ClientURL(), "test-client")
	conn, err := c.Dial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	if err := c.Publish("ping", []byte("ping")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = conn.Flush()

	select {
	case msg := <-got:
		testutil.AssertEqual(t, "payload", msg, "ping")
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestClient_DialUnreachable(t *testing.T) {
	c := NewClient("nats://127.0.0.1:1", "test-client")
	_, err := c.Dial(context.Background())
	testutil.AssertErrorContains(t, err, "connecting to nats")

	if _, err := c.Conn(context.Background()); err == nil {
		t.Error("expected the dial failure to be remembered")
	}
}
