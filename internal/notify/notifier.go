// Package notify is an in-process bus announcing dataset changes, so that
// readers holding derived results can drop them.
package notify

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Kind is the kind of change announced.
type Kind int

const (
	// DatasetLoaded is published after a load transaction commits.
	DatasetLoaded Kind = iota
)

func (k Kind) String() string {
	switch k {
	case DatasetLoaded:
		return "dataset_loaded"
	default:
		return "unknown"
	}
}

// Notification announces one committed change.
type Notification struct {
	Kind Kind
	// Source names what changed, such as the loaded object path.
	Source     string
	Statements int
	Timestamp  time.Time
}

// Notifier fans notifications out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the notification.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
	nextID      uint64
}

// New creates a notifier whose subscriber channels buffer bufferSize
// notifications.
func New(bufferSize int) *Notifier {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Notifier{bufferSize: bufferSize, subscribers: make(map[string]*Subscriber)}
}

// Subscriber receives notifications whose source starts with one of its
// filters. No filters means every notification.
type Subscriber struct {
	ID      string
	Filters []string
	C       chan Notification
}

// Publish delivers n to every matching subscriber.
func (n *Notifier) Publish(notif Notification) {
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subscribers {
		if sub.matches(notif.Source) {
			select {
			case sub.C <- notif:
			default:
			}
		}
	}
}

// Subscribe registers a subscriber.
func (n *Notifier) Subscribe(filters ...string) *Subscriber {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	sub := &Subscriber{
		ID:      "sub-" + strconv.FormatUint(n.nextID, 10),
		Filters: filters,
		C:       make(chan Notification, n.bufferSize),
	}
	n.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(sub *Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subscribers[sub.ID]; ok {
		delete(n.subscribers, sub.ID)
		close(sub.C)
	}
}

func (s *Subscriber) matches(source string) bool {
	if len(s.Filters) == 0 {
		return true
	}
	for _, f := range s.Filters {
		if f == "" || strings.HasPrefix(source, f) {
			return true
		}
	}
	return false
}
