package api

import (
	"sync"
)

type SSEEvent struct {
	Type string
	Data map[string]any
}

// TopicAll is the reserved broker key carrying events from every camera;
// "*" cannot collide with a registered camera id.
const TopicAll = "*"

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // cameraId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(cameraID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[cameraID] == nil {
		b.subs[cameraID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[cameraID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(cameraID string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[cameraID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, cameraID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(cameraID string, evt SSEEvent) {
	b.mu.Lock()
	m := b.subs[cameraID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
