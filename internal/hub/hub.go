// Package hub fans session events out to live observer connections.
//
// Delivery is best effort: each subscriber owns a bounded queue drained by
// one writer goroutine, so events reach a given subscriber in publish order
// while a slow or dead connection can never stall the publisher.
package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink is one outbound connection. Send must respect ctx; returning an
// error marks the connection dead and removes the subscription.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
}

const (
	defaultQueueSize   = 32
	defaultSendTimeout = 5 * time.Second
)

type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Subscriber]struct{}

	queueSize   int
	sendTimeout time.Duration
	logger      *zap.Logger
}

// Subscriber is a live binding of one connection to one session. It is
// ephemeral; dropping it never touches persisted state.
type Subscriber struct {
	sessionID string
	sink      Sink
	queue     chan []byte
	done      chan struct{}
	once      sync.Once
}

func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions:    make(map[string]map[*Subscriber]struct{}),
		queueSize:   defaultQueueSize,
		sendTimeout: defaultSendTimeout,
		logger:      logger,
	}
}

// Subscribe registers sink as an observer of sessionID and starts its
// writer. The caller must Unsubscribe when the connection goes away.
func (h *Hub) Subscribe(sessionID string, sink Sink) *Subscriber {
	sub := &Subscriber{
		sessionID: sessionID,
		sink:      sink,
		queue:     make(chan []byte, h.queueSize),
		done:      make(chan struct{}),
	}
	h.mu.Lock()
	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.sessions[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(sub)
	return sub
}

// Unsubscribe removes sub and drops the session entry once its last
// subscriber is gone. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if set, ok := h.sessions[sub.sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.sessions, sub.sessionID)
		}
	}
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.done) })
}

// Publish queues payload for every current subscriber of sessionID. It
// never blocks; a subscriber whose queue is full is dropped.
func (h *Hub) Publish(sessionID string, payload []byte) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.sessions[sessionID]))
	for sub := range h.sessions[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- payload:
		default:
			h.logger.Warn("broadcast_drop",
				zap.String("session_id", sessionID),
				zap.String("reason", "queue_full"),
			)
			h.Unsubscribe(sub)
		}
	}
}

// Subscribers reports the current observer count for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) writeLoop(sub *Subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case payload := <-sub.queue:
			ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
			err := sub.sink.Send(ctx, payload)
			cancel()
			if err != nil {
				h.logger.Warn("broadcast_drop",
					zap.String("session_id", sub.sessionID),
					zap.Error(err),
				)
				h.Unsubscribe(sub)
				return
			}
		}
	}
}
