package bus

import (
	"context"
	"testing"
	"time"
)

func TestInProcessBus_PublishSubscribe(t *testing.T) {
	b, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	ch, unsubscribe, err := b.Subscribe(ctx, "telemetry")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	if err := b.Publish(ctx, Message{Topic: "telemetry", Key: "tenant-a", Payload: []byte("hello")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-ch:
		if string(msg.Payload) != "hello" {
			t.Errorf("payload = %q, want %q", msg.Payload, "hello")
		}
		if msg.Key != "tenant-a" {
			t.Errorf("key = %q, want tenant-a", msg.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInProcessBus_TopicIsolation(t *testing.T) {
	b, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	ch, unsubscribe, _ := b.Subscribe(ctx, "topic-a")
	defer unsubscribe()

	_ = b.Publish(ctx, Message{Topic: "topic-b", Payload: []byte("nope")})

	select {
	case <-ch:
		t.Fatal("received a message published to a different topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInProcessBus_UnknownTypeFallsBackToInProcess(t *testing.T) {
	b, err := New(Config{Type: "kafka"}, nil)
	if err != nil {
		t.Fatalf("New with kafka type: %v", err)
	}
	if _, ok := b.(*inProcessBus); !ok {
		t.Fatal("kafka type should resolve to the in-process bus")
	}
}

func TestInProcessBus_RejectsUnrecognizedType(t *testing.T) {
	if _, err := New(Config{Type: "carrier-pigeon"}, nil); err == nil {
		t.Fatal("expected an error for an unrecognized bus type")
	}
}

func TestInProcessBus_UnsubscribeStopsDelivery(t *testing.T) {
	b, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	ch, unsubscribe, _ := b.Subscribe(ctx, "topic-a")
	unsubscribe()

	_ = b.Publish(ctx, Message{Topic: "topic-a", Payload: []byte("x")})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("received a message after unsubscribing")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPartitionKey(t *testing.T) {
	if got := PartitionKey("tenant-a", "run-1"); got != "tenant-a" {
		t.Errorf("PartitionKey prefers tenant: got %q", got)
	}
	if got := PartitionKey("", "run-1"); got != "run-1" {
		t.Errorf("PartitionKey falls back to run: got %q", got)
	}
}
