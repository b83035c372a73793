package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/metrics"
	"github.com/curtistech/unlock-server/internal/util"
)

// Dispatcher delivers messages on a background worker so that a slow or
// failing email provider never blocks webhook handling.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	queue    chan Message

	mu      sync.Mutex
	closed  bool
	started bool
	done    chan struct{}
}

func NewDispatcher(notifier Notifier, queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		queue:    make(chan Message, queueSize),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	go d.run()
	log.Info().Int("queueSize", cap(d.queue)).Msg("notification dispatcher started")
}

// Enqueue hands msg to the worker. It never blocks; when the queue is full
// or the dispatcher is stopped the message is dropped and false returned.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		log.Warn().Str("email", util.MaskEmail(msg.Email)).Msg("dispatcher stopped, notification dropped")
		metrics.IncNotify("dropped")
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		log.Warn().Str("email", util.MaskEmail(msg.Email)).Msg("notification queue full, notification dropped")
		metrics.IncNotify("dropped")
		return false
	}
}

// Stop closes the queue and waits for queued messages to drain, or for ctx
// to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-d.done:
		log.Info().Msg("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		log.Warn().Msg("notification dispatcher stop timed out")
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("notifier panicked")
			metrics.IncNotify("failed")
		}
	}()

	if err := d.notifier.Notify(ctx, msg); err != nil {
		log.Error().Err(err).
			Str("email", util.MaskEmail(msg.Email)).
			Str("code", util.MaskCode(msg.Code)).
			Msg("failed to notify purchaser")
		metrics.IncNotify("failed")
		return
	}

	log.Info().
		Str("email", util.MaskEmail(msg.Email)).
		Str("code", util.MaskCode(msg.Code)).
		Msg("purchaser notified")
	metrics.IncNotify("sent")
}
