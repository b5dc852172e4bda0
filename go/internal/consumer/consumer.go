// Package consumer polls the inbound transaction queue under bounded
// concurrency and drives each message through the decision pipeline.
package consumer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/payguard/frauddetect/go/internal/queue"
)

// Protocol ceilings for a single receive call.
const (
	maxReceiveBatch = 10
	maxReceiveWait  = 20 * time.Second
)

// Config controls the consumer's concurrency and polling behavior.
type Config struct {
	// MaxMessages is the per-receive batch size, clamped to 1..10.
	MaxMessages int
	// WaitTime is the long-poll duration, clamped to 0..20s.
	WaitTime time.Duration
	// MaxInFlight is the backpressure ceiling on received-but-unacknowledged
	// messages. Defaults to Workers*MaxMessages.
	MaxInFlight int
	// Pollers is the number of polling goroutines.
	Pollers int
	// Workers is the size of the processing pool.
	Workers int
	// QueueCapacity is the work channel buffer between pollers and workers.
	QueueCapacity int
	// PollerBackoff is how long a poller sleeps when gated or rejected.
	PollerBackoff time.Duration
	// ShutdownGrace bounds how long Stop waits for in-flight work to drain
	// before cancelling it.
	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxMessages < 1 {
		c.MaxMessages = maxReceiveBatch
	}
	if c.MaxMessages > maxReceiveBatch {
		c.MaxMessages = maxReceiveBatch
	}
	if c.WaitTime < 0 {
		c.WaitTime = 0
	}
	if c.WaitTime > maxReceiveWait {
		c.WaitTime = maxReceiveWait
	}
	if c.Pollers <= 0 {
		c.Pollers = 1
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueCapacity < 0 {
		c.QueueCapacity = 0
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = c.Workers * c.MaxMessages
	}
	if c.PollerBackoff <= 0 {
		c.PollerBackoff = 200 * time.Millisecond
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// Consumer owns the poller goroutines and the bounded worker pool. The
// in-flight counter is the only state shared between them: pollers increment
// it optimistically at receive time and every worker exit path decrements it.
type Consumer struct {
	source  queue.Source
	handler Handler
	clock   clockwork.Clock
	cfg     Config

	inFlight atomic.Int64
	workCh   chan queue.Message

	mu         sync.Mutex
	started    bool
	pollCancel context.CancelFunc
	workCancel context.CancelFunc
	pollWG     sync.WaitGroup
	workWG     sync.WaitGroup
}

// New creates a Consumer with defaults and clamps applied.
func New(source queue.Source, handler Handler, clock clockwork.Clock, cfg Config) *Consumer {
	return &Consumer{
		source:  source,
		handler: handler,
		clock:   clock,
		cfg:     cfg.withDefaults(),
	}
}

// Start launches the worker pool and pollers. It returns immediately.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	pollCtx, pollCancel := context.WithCancel(ctx)
	workCtx, workCancel := context.WithCancel(ctx)
	c.pollCancel = pollCancel
	c.workCancel = workCancel
	c.workCh = make(chan queue.Message, c.cfg.QueueCapacity)

	for i := 0; i < c.cfg.Workers; i++ {
		c.workWG.Add(1)
		workerID := i
		go c.worker(workCtx, workerID)
	}
	for i := 0; i < c.cfg.Pollers; i++ {
		c.pollWG.Add(1)
		pollerID := i
		go c.pollLoop(pollCtx, pollerID)
	}

	log.Info().
		Int("pollers", c.cfg.Pollers).
		Int("workers", c.cfg.Workers).
		Int("max_in_flight", c.cfg.MaxInFlight).
		Msg("consumer started")
}

// Stop halts polling, then drains in-flight work within the shutdown grace
// period, cancelling whatever remains after it elapses. Unacknowledged
// messages are redelivered by the queue.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false

	c.pollCancel()
	c.pollWG.Wait()
	close(c.workCh)

	done := make(chan struct{})
	go func() {
		c.workWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-c.clock.After(c.cfg.ShutdownGrace):
		log.Warn().Msg("shutdown grace elapsed; cancelling in-flight work")
		c.workCancel()
		<-done
	}
	c.workCancel()

	log.Info().Msg("consumer stopped")
}

// InFlight reports the number of received-but-unacknowledged messages.
func (c *Consumer) InFlight() int {
	return int(c.inFlight.Load())
}

func (c *Consumer) pollLoop(ctx context.Context, pollerID int) {
	defer c.pollWG.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		// Backpressure gate: pause while the pipeline holds too much.
		if int(c.inFlight.Load()) >= c.cfg.MaxInFlight {
			if !c.sleep(ctx, c.cfg.PollerBackoff) {
				return
			}
			continue
		}

		msgs, err := c.source.Receive(ctx, c.cfg.MaxMessages, c.cfg.WaitTime)
		if err != nil && ctx.Err() != nil {
			return
		}

		// A failed receive may still carry a partial batch; dispatch it so
		// the fetched messages do not wait out the visibility timeout.
		for _, msg := range msgs {
			c.inFlight.Add(1)
			if !c.submit(msg) {
				// Pool saturated: undo the optimistic increment and leave the
				// message unacknowledged for redelivery.
				c.inFlight.Add(-1)
				log.Warn().Int("poller", pollerID).Msg("worker pool saturated; backing off")
				if !c.sleep(ctx, c.cfg.PollerBackoff) {
					return
				}
				break
			}
		}

		if err != nil {
			log.Warn().Err(err).Int("poller", pollerID).Msg("inbound receive failed")
			if !c.sleep(ctx, c.cfg.PollerBackoff) {
				return
			}
		}
	}
}

func (c *Consumer) submit(msg queue.Message) bool {
	select {
	case c.workCh <- msg:
		return true
	default:
		return false
	}
}

func (c *Consumer) worker(ctx context.Context, workerID int) {
	defer c.workWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.workCh:
			if !ok {
				return
			}
			c.handleMessage(ctx, msg, workerID)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg queue.Message, workerID int) {
	defer c.inFlight.Add(-1)

	if err := c.handler.Handle(ctx, msg); err != nil {
		// The message stays unacknowledged and will be redelivered.
		log.Warn().
			Err(err).
			Int("worker", workerID).
			Str("message_id", msg.ID()).
			Msg("failed to process message")
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}
