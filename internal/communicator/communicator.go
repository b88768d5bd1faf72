// Spektrum - Personalized Message Relevance and Interest Learning
// Copyright 2026 Spektrum Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spektrumprojekt/spektrum-sub000

package communicator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spektrumprojekt/spektrum-sub000/internal/logging"
	"github.com/spektrumprojekt/spektrum-sub000/internal/metrics"
)

// Errors of the communicator lifecycle.
var (
	ErrNotOpen          = errors.New("communicator is not open")
	ErrClosed           = errors.New("communicator is closed")
	ErrDuplicateHandler = errors.New("handler already registered for message type")
	ErrUnhandledType    = errors.New("no handler registered for message type")
)

// MessageHandler consumes one message subtype. A handler is invoked exactly
// once per delivered message of its type, in delivery order.
type MessageHandler interface {
	MessageType() string
	HandleMessage(ctx context.Context, msg CommunicationMessage) error
}

// Communicator is the delivery contract between the engine's components.
type Communicator interface {
	RegisterMessageHandler(h MessageHandler) error
	Deliver(msg CommunicationMessage) error
	Open() error
	Close() error

	// Drain blocks until every delivered message has been handled. The
	// orchestrator must drain before reading back persisted results.
	Drain(ctx context.Context) error

	// HasErrors reports whether any delivery or handler failed since Open.
	HasErrors() bool
}

// topicPrefix namespaces the gochannel topics.
const topicPrefix = "spektrum."

// VirtualCommunicator routes messages in process through a Watermill
// gochannel Pub/Sub. One consumer goroutine per registered handler keeps
// per-handler ordering.
type VirtualCommunicator struct {
	logger zerolog.Logger
	pubsub *gochannel.GoChannel

	mu       sync.Mutex
	handlers map[string]MessageHandler
	open     bool
	closed   bool
	cancel   context.CancelFunc

	inflight  sync.WaitGroup
	consumers sync.WaitGroup
	failed    atomic.Bool
}

var _ Communicator = (*VirtualCommunicator)(nil)

// NewVirtualCommunicator creates a communicator logging through the given
// logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewVirtualCommunicator(logger zerolog.Logger) *VirtualCommunicator {
	logger = logger.With().Str("component", "communicator").Logger()
	return &VirtualCommunicator{
		logger:   logger,
		handlers: make(map[string]MessageHandler),
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			// Unbounded enough for batch replay; Deliver never blocks the
			// scoring path on a slow handler.
			OutputChannelBuffer: 1024,
		}, logging.NewWatermillAdapter(logger)),
	}
}

// RegisterMessageHandler registers a handler for its declared message type.
// Handlers must be registered before Open.
func (c *VirtualCommunicator) RegisterMessageHandler(h MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return fmt.Errorf("register %s: communicator already open", h.MessageType())
	}
	if _, ok := c.handlers[h.MessageType()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, h.MessageType())
	}
	c.handlers[h.MessageType()] = h
	return nil
}

// Open subscribes every registered handler and starts its consumer goroutine.
func (c *VirtualCommunicator) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.open {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for msgType, h := range c.handlers {
		ch, err := c.pubsub.Subscribe(ctx, topicPrefix+msgType)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe %s: %w", msgType, err)
		}
		c.consumers.Add(1)
		go c.consume(ctx, h, ch)
	}
	c.open = true
	return nil
}

func (c *VirtualCommunicator) consume(ctx context.Context, h MessageHandler, ch <-chan *message.Message) {
	defer c.consumers.Done()
	for wm := range ch {
		msg, err := decode(wm.Payload)
		if err == nil {
			err = h.HandleMessage(ctx, msg)
		}
		if err != nil {
			c.failed.Store(true)
			metrics.DeliveryErrors.Inc()
			c.logger.Error().
				Str("message_type", h.MessageType()).
				Err(err).
				Msg("message handling failed")
		}
		wm.Ack()
		c.inflight.Done()
	}
}

// Deliver enqueues a message for asynchronous handling.
func (c *VirtualCommunicator) Deliver(msg CommunicationMessage) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if _, ok := c.handlers[msg.Type()]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnhandledType, msg.Type())
	}
	c.mu.Unlock()

	data, err := encode(msg)
	if err != nil {
		return err
	}
	c.inflight.Add(1)
	wm := message.NewMessage(uuid.NewString(), data)
	if err := c.pubsub.Publish(topicPrefix+msg.Type(), wm); err != nil {
		c.inflight.Done()
		c.failed.Store(true)
		metrics.DeliveryErrors.Inc()
		return fmt.Errorf("publish %s: %w", msg.Type(), err)
	}
	return nil
}

// Drain blocks until every delivered message has been handled, or ctx ends.
func (c *VirtualCommunicator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain: %w", ctx.Err())
	}
}

// HasErrors reports whether any delivery or handler failed since Open.
func (c *VirtualCommunicator) HasErrors() bool {
	return c.failed.Load()
}

// ResetErrors clears the error flag, typically after the orchestrator
// inspected and logged it.
func (c *VirtualCommunicator) ResetErrors() {
	c.failed.Store(false)
}

// Close stops consumption and releases the pubsub. Pending messages are
// handled before the consumers exit.
func (c *VirtualCommunicator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	if wasOpen {
		// Let in-flight messages finish before tearing down subscriptions.
		c.inflight.Wait()
	}
	err := c.pubsub.Close()
	if c.cancel != nil {
		c.cancel()
	}
	c.consumers.Wait()
	if err != nil {
		return fmt.Errorf("close pubsub: %w", err)
	}
	return nil
}

// Serve runs the communicator as a suture service: open, block until the
// context ends, then close.
func (c *VirtualCommunicator) Serve(ctx context.Context) error {
	if err := c.Open(); err != nil {
		return err
	}
	<-ctx.Done()
	return c.Close()
}
