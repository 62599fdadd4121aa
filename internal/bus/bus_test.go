package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var mu sync.Mutex
	var received []Event

	err := b.Subscribe(context.Background(), TopicRunStarted, func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	event := NewEvent(TopicRunStarted, "eval-studio", "run-1", "suite-1", nil)
	if err := b.Publish(context.Background(), TopicRunStarted, event); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if !b.DrainTimeout(time.Second) {
		t.Fatal("handlers did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	if received[0].RunID != "run-1" || received[0].SuiteID != "suite-1" {
		t.Errorf("event = %+v", received[0])
	}
	if received[0].ID == "" || received[0].Timestamp == 0 {
		t.Errorf("event missing id or timestamp: %+v", received[0])
	}
}

func TestMemoryBusNoSubscribers(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	// Publishing into the void is fine.
	event := NewEvent(TopicRunCompleted, "eval-studio", "run-1", "suite-1", nil)
	if err := b.Publish(context.Background(), TopicRunCompleted, event); err != nil {
		t.Errorf("Publish() error: %v", err)
	}
}

func TestMemoryBusTopicIsolation(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var mu sync.Mutex
	count := 0
	b.Subscribe(context.Background(), TopicRunFailed, func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})

	b.Publish(context.Background(), TopicRunCompleted, NewEvent(TopicRunCompleted, "test", "r", "s", nil))
	b.DrainTimeout(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("handler for %s fired on %s", TopicRunFailed, TopicRunCompleted)
	}
}

func TestMemoryBusClosed(t *testing.T) {
	b := NewMemoryBus()
	b.Close()

	event := NewEvent(TopicRunStarted, "test", "r", "s", nil)
	if err := b.Publish(context.Background(), TopicRunStarted, event); err == nil {
		t.Error("expected error publishing to closed bus")
	}
	if err := b.Subscribe(context.Background(), TopicRunStarted, nil); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
}

func TestNewBusFactory(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "default is memory", opts: Options{}},
		{name: "explicit memory", opts: Options{Type: "memory"}},
		{name: "kafka without brokers", opts: Options{Type: "kafka"}, wantErr: true},
		{name: "unknown type", opts: Options{Type: "rabbitmq"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBus(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBus() error: %v", err)
			}
			defer b.Close()
			if _, ok := b.(*MemoryBus); !ok {
				t.Errorf("expected MemoryBus, got %T", b)
			}
		})
	}
}
