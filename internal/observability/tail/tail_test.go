package tail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aishacrm/orchestrator-core/internal/bus"
)

type recordingPublisher struct {
	ch chan bus.Message
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{ch: make(chan bus.Message, 16)}
}

func (p *recordingPublisher) Publish(ctx context.Context, msg bus.Message) error {
	p.ch <- msg
	return nil
}

func TestSidecar_WaitsThenTailsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	sinkPath := filepath.Join(dir, "telemetry.ndjson")

	pub := newRecordingPublisher()
	sc := New(Config{SinkPath: sinkPath, Topic: "telemetry", PollInterval: 10 * time.Millisecond}, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	if state, _ := sc.Health(); state != HealthWaitingForFile && state != HealthStarting {
		t.Errorf("health before file exists = %s, want waiting_for_file or starting", state)
	}

	f, err := os.Create(sinkPath)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if _, err := f.WriteString(`{"_telemetry":true,"type":"run_started","run_id":"r1","tenant_id":"tenant-a"}` + "\n"); err != nil {
		t.Fatalf("write sink: %v", err)
	}
	f.Close()

	select {
	case msg := <-pub.ch:
		if msg.Key != "tenant-a" {
			t.Errorf("partition key = %q, want tenant-a", msg.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}

	if state, _ := sc.Health(); state != HealthTailing {
		t.Errorf("health after file appears = %s, want tailing", state)
	}

	cancel()
	<-done
}

func TestSidecar_DropsLinesWithoutTelemetryMarker(t *testing.T) {
	dir := t.TempDir()
	sinkPath := filepath.Join(dir, "telemetry.ndjson")
	if err := os.WriteFile(sinkPath, []byte(`{"not_telemetry":true}`+"\n"), 0644); err != nil {
		t.Fatalf("write sink: %v", err)
	}

	pub := newRecordingPublisher()
	sc := New(Config{SinkPath: sinkPath, Topic: "telemetry", PollInterval: 10 * time.Millisecond}, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sc.Run(ctx)

	select {
	case msg := <-pub.ch:
		t.Fatalf("non-telemetry line should not be published, got %v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}
