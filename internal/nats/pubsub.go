package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/flatroom/flat-server-go/internal/core"
)

// PubSubBroker implements core.EventPublisher using NATS core pub/sub and
// lets in-process consumers subscribe to file events.
type PubSubBroker struct {
	nc   *nats.Conn
	mu   sync.Mutex
	subs map[*nats.Subscription]*eventFeed
}

// eventFeed is a subscriber channel that is closed exactly once and never
// written to afterwards.
type eventFeed struct {
	mu     sync.Mutex
	ch     chan *core.FileEvent
	closed bool
}

func (f *eventFeed) send(subject string, event *core.FileEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- event:
	default:
		slog.Warn("dropping event, subscriber channel full", "subject", subject)
	}
}

func (f *eventFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

// NewPubSubBroker creates a new PubSubBroker using the given NATS connection.
func NewPubSubBroker(nc *nats.Conn) *PubSubBroker {
	return &PubSubBroker{nc: nc}
}

// PublishFileEvent publishes event on the file's subject and the global
// converted subject.
func (b *PubSubBroker) PublishFileEvent(event *core.FileEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.nc.Publish(FileSubject(event.FileUUID), data); err != nil {
		slog.Error("failed to publish file event", "error", err, "file_uuid", event.FileUUID)
		return fmt.Errorf("publish event: %w", err)
	}

	if err := b.nc.Publish(FileConvertedSubject(), data); err != nil {
		slog.Error("failed to publish converted event", "error", err)
	}

	return nil
}

// SubscribeFile subscribes to events for a single file.
func (b *PubSubBroker) SubscribeFile(fileUUID string) (<-chan *core.FileEvent, func(), error) {
	return b.subscribe(FileSubject(fileUUID))
}

// SubscribeConverted subscribes to every terminal conversion.
func (b *PubSubBroker) SubscribeConverted() (<-chan *core.FileEvent, func(), error) {
	return b.subscribe(FileConvertedSubject())
}

func (b *PubSubBroker) subscribe(subject string) (<-chan *core.FileEvent, func(), error) {
	feed := &eventFeed{ch: make(chan *core.FileEvent, 64)}

	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var event core.FileEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Error("failed to unmarshal event", "error", err)
			return
		}
		feed.send(subject, &event)
	})
	if err != nil {
		feed.close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	// Runs after the last callback once the subscription is drained or closed.
	sub.SetClosedHandler(func(string) { feed.close() })

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[*nats.Subscription]*eventFeed)
	}
	b.subs[sub] = feed
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			if err := sub.Drain(); err != nil {
				feed.close()
			}
		})
	}

	return feed.ch, unsubscribe, nil
}

// Close unsubscribes all subscriptions and closes their channels.
func (b *PubSubBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub, feed := range b.subs {
		_ = sub.Unsubscribe()
		feed.close()
	}
	b.subs = nil
	return nil
}
