package signal

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/uptimekit/sitesync/logging"
	"github.com/uptimekit/sitesync/types"
)

// Sink consumes invalidation signals. syncer.Coordinator implements it.
type Sink interface {
	OnInvalidationSignal(signal types.InvalidationSignal)
}

// PubSubSource delivers backend invalidation signals over Redis
// Pub/Sub. Signals published by this instance itself are filtered out
// so a writer process never debounces its own announcements.
type PubSubSource struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     logging.Logger
	pubsub     *redis.PubSub
	sinks      []Sink
	sinksMutex sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewPubSubSource creates a new Pub/Sub signal source.
func NewPubSubSource(client *redis.Client, channel, instanceID string, logger logging.Logger) *PubSubSource {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &PubSubSource{
		client:     client,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger,
		sinks:      make([]Sink, 0),
		done:       make(chan struct{}),
	}
}

// Subscribe starts listening for invalidation signals.
func (ps *PubSubSource) Subscribe(ctx context.Context) error {
	ps.pubsub = ps.client.Subscribe(ctx, ps.channel)

	ps.wg.Add(1)
	go ps.listenForSignals()

	return nil
}

// Publish announces an invalidation signal to all listening instances.
// The sender field is stamped with this instance's ID.
func (ps *PubSubSource) Publish(ctx context.Context, signal types.InvalidationSignal) error {
	signal.Sender = ps.instanceID

	data, err := json.Marshal(signal)
	if err != nil {
		return err
	}

	return ps.client.Publish(ctx, ps.channel, string(data)).Err()
}

// OnSignal registers a sink for incoming signals.
func (ps *PubSubSource) OnSignal(sink Sink) {
	ps.sinksMutex.Lock()
	defer ps.sinksMutex.Unlock()
	ps.sinks = append(ps.sinks, sink)
}

// Close closes the source.
func (ps *PubSubSource) Close() error {
	close(ps.done)
	ps.wg.Wait()

	if ps.pubsub != nil {
		return ps.pubsub.Close()
	}
	return nil
}

// listenForSignals decodes and dispatches signals from Redis Pub/Sub.
func (ps *PubSubSource) listenForSignals() {
	defer ps.wg.Done()

	if ps.pubsub == nil {
		return
	}

	ch := ps.pubsub.Channel()

	for {
		select {
		case <-ps.done:
			return
		case msg := <-ch:
			if msg == nil {
				return
			}

			var signal types.InvalidationSignal
			if err := json.Unmarshal([]byte(msg.Payload), &signal); err != nil {
				ps.logger.Warn("dropping malformed invalidation signal", "error", err)
				continue
			}

			// Don't react to your own announcements
			if signal.Sender == ps.instanceID {
				continue
			}

			ps.sinksMutex.RLock()
			sinks := ps.sinks
			ps.sinksMutex.RUnlock()

			for _, sink := range sinks {
				sink.OnInvalidationSignal(signal)
			}
		}
	}
}
