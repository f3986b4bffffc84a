package notify

import (
	"testing"
	"time"
)

func TestPublish_NoSubscribers(t *testing.T) {
	New(4).Publish(Notification{Kind: DatasetLoaded, Source: "world.sql"})
}

func TestSubscribe_ReceivesNotification(t *testing.T) {
	n := New(4)
	sub := n.Subscribe()

	n.Publish(Notification{Kind: DatasetLoaded, Source: "world.sql", Statements: 42})

	select {
	case got := <-sub.C:
		if got.Source != "world.sql" || got.Statements != 42 || got.Kind != DatasetLoaded {
			t.Errorf("got %+v", got)
		}
		if got.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestSubscribe_Filters(t *testing.T) {
	tests := []struct {
		filters []string
		source  string
		want    bool
	}{
		{filters: nil, source: "anything", want: true},
		{filters: []string{"world/"}, source: "world/city.sql", want: true},
		{filters: []string{"world/"}, source: "sample/world.sql", want: false},
		{filters: []string{"x", ""}, source: "sample/world.sql", want: true},
	}
	for _, tt := range tests {
		n := New(1)
		sub := n.Subscribe(tt.filters...)
		n.Publish(Notification{Source: tt.source})

		select {
		case <-sub.C:
			if !tt.want {
				t.Errorf("filters %q received %s", tt.filters, tt.source)
			}
		default:
			if tt.want {
				t.Errorf("filters %q missed %s", tt.filters, tt.source)
			}
		}
	}
}

func TestPublish_NeverBlocks(t *testing.T) {
	n := New(1)
	sub := n.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			n.Publish(Notification{Source: "s"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(sub.C) != 1 {
		t.Errorf("buffered = %d, want 1", len(sub.C))
	}
}

func TestUnsubscribe(t *testing.T) {
	n := New(1)
	a := n.Subscribe()
	b := n.Subscribe()
	if a.ID == b.ID {
		t.Fatalf("duplicate subscriber id %s", a.ID)
	}

	n.Unsubscribe(a)
	n.Unsubscribe(a)
	if _, ok := <-a.C; ok {
		t.Error("channel should be closed")
	}

	n.Publish(Notification{Source: "s"})
	if len(b.C) != 1 {
		t.Error("remaining subscriber missed the notification")
	}
}

func TestKindString(t *testing.T) {
	if DatasetLoaded.String() != "dataset_loaded" || Kind(9).String() != "unknown" {
		t.Error("unexpected kind names")
	}
}
