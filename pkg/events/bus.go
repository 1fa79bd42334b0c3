package events

import (
	"context"
	"sync"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/rs/zerolog/log"
)

// Subscribing to AllEvents receives every event.
const AllEvents = "*"

type Channels []chan *Event

// EventBus fans events out to subscribers by event name. Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the event and a warning is logged.
type EventBus struct {
	mutex      sync.RWMutex
	channels   map[string]Channels
	bufferSize int
	sinks      []Sink
}

// Sink persists or forwards events outside the process.
type Sink interface {
	Write(ctx context.Context, event *Event) error
}

func NewEventBus(config *config.EventBusConfig, sinks ...Sink) *EventBus {
	bufferSize := 0
	if config != nil {
		bufferSize = config.BufferSize
	}
	return &EventBus{
		channels:   map[string]Channels{},
		bufferSize: bufferSize,
		sinks:      sinks,
	}
}

func (eb *EventBus) AddSink(sink Sink) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	eb.sinks = append(eb.sinks, sink)
}

func (eb *EventBus) Subscribe(eventName string) <-chan *Event {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	receiver := make(chan *Event, eb.bufferSize)
	eb.channels[eventName] = append(eb.channels[eventName], receiver)
	return receiver
}

func (eb *EventBus) BroadcastEvent(ctx context.Context, event *Event) {
	eb.mutex.RLock()
	channels := append(append(Channels(nil), eb.channels[event.Event]...), eb.channels[AllEvents]...)
	sinks := eb.sinks
	eb.mutex.RUnlock()

	for _, sink := range sinks {
		if err := sink.Write(ctx, event); err != nil {
			log.Warn().Err(err).Str("event", event.Event).Msg("[EventBus] [BroadcastEvent] sink failed")
		}
	}
	for _, channel := range channels {
		select {
		case channel <- event:
		default:
			log.Warn().Str("event", event.Event).Msg("[EventBus] [BroadcastEvent] subscriber buffer full, event dropped")
		}
	}
}

// Publish broadcasts a batch collected during one entry point, in order.
func (eb *EventBus) Publish(ctx context.Context, batch *Batch) {
	if eb == nil || batch == nil {
		return
	}
	for i := range batch.events {
		eb.BroadcastEvent(ctx, &batch.events[i])
	}
	batch.events = nil
}

// Close closes every subscriber channel.
func (eb *EventBus) Close() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	for name, channels := range eb.channels {
		for _, channel := range channels {
			close(channel)
		}
		delete(eb.channels, name)
	}
}

// Batch buffers events until the state change that produced them is committed.
type Batch struct {
	events []Event
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Add(event string, data any) {
	b.events = append(b.events, New(event, data))
}

// Reset drops buffered events, used when a state transaction is rolled back.
func (b *Batch) Reset() {
	b.events = nil
}

func (b *Batch) Events() []Event {
	return append([]Event(nil), b.events...)
}
