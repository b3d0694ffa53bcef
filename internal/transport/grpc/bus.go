package grpc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	// ErrBusFull is returned when the outbound buffer cannot take another event.
	ErrBusFull = errors.New("grpc bus buffer is full")
	// ErrBusClosed is returned by Publish after Close.
	ErrBusClosed = errors.New("grpc bus is closed")
)

// GrpcBus publishes events to a remote EventService over gRPC.
// Used when BusProvider == "grpc" in config. Publish only enqueues; a single
// sender goroutine delivers events in order.
type GrpcBus struct {
	conn    grpc.ClientConnInterface
	queue   chan *EventRequest
	timeout time.Duration
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewGrpcBusFromAddr dials the remote EventService and returns a GrpcBus and a cleanup function.
func NewGrpcBusFromAddr(addr string, bufferSize int) (*GrpcBus, func(), error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	bus := NewGrpcBus(conn, bufferSize)
	cleanup := func() {
		bus.Close()
		_ = conn.Close()
	}
	return bus, cleanup, nil
}

func NewGrpcBus(conn grpc.ClientConnInterface, bufferSize int) *GrpcBus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	b := &GrpcBus{
		conn:    conn,
		queue:   make(chan *EventRequest, bufferSize),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Publish enqueues an event for the remote EventService.
func (b *GrpcBus) Publish(topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queue <- &EventRequest{Topic: topic, Payload: data}:
		return nil
	default:
		return ErrBusFull
	}
}

// Close stops accepting events and waits for queued ones to be sent.
func (b *GrpcBus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *GrpcBus) run() {
	defer close(b.done)
	for req := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		res, err := invoke[EventRequest, EventResponse](ctx, b.conn, eventService, "Publish", req)
		cancel()
		if err != nil {
			slog.Error("grpc bus: publish failed", "topic", req.Topic, "error", err)
			continue
		}
		if !res.Success {
			slog.Error("grpc bus: event rejected by receiver", "topic", req.Topic)
		}
	}
}
