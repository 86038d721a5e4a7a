package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/routecast/core/authz"
	"github.com/kilianp07/routecast/core/metrics"
)

// Subscription is a live association between a principal and a channel.
// It is created by Dispatcher.Subscribe and ends on Close, on dispatcher
// shutdown, on the first failed delivery or once it lags mailbox size
// updates behind.
type Subscription struct {
	id          string
	principal   authz.Principal
	destination string
	channel     string

	d       *Dispatcher
	sink    Sink
	timeout time.Duration

	// pending is unbounded up to limit. A subscription whose backlog
	// reaches limit is torn down instead of losing updates.
	qmu     sync.Mutex
	pending []Delivery
	limit   int
	lagging bool
	ready   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (s *Subscription) ID() string                 { return s.id }
func (s *Subscription) Destination() string        { return s.destination }
func (s *Subscription) Principal() authz.Principal { return s.principal }

// Done is closed when the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the delivery error that tore the subscription down, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes. Pending updates are discarded and an in-flight
// delivery sees its context cancelled. Close is idempotent.
func (s *Subscription) Close() {
	s.d.remove(s, metrics.ActionUnsubscribed, "", nil)
}

// offer queues d. It never blocks: a subscription already holding limit
// undelivered updates is torn down with ErrSubscriberLagging.
func (s *Subscription) offer(d Delivery) {
	if s.ctx.Err() != nil {
		return
	}
	s.qmu.Lock()
	if s.lagging {
		s.qmu.Unlock()
		return
	}
	if len(s.pending) >= s.limit {
		s.lagging = true
		s.qmu.Unlock()
		laggingTeardowns.Inc()
		s.d.recordDelivery(s, d, 0, true, ErrSubscriberLagging)
		s.d.remove(s, metrics.ActionTornDown, ErrSubscriberLagging.Error(), ErrSubscriberLagging)
		return
	}
	s.pending = append(s.pending, d)
	s.qmu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// next pops the oldest pending delivery.
func (s *Subscription) next() (Delivery, bool) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if len(s.pending) == 0 {
		return Delivery{}, false
	}
	d := s.pending[0]
	s.pending[0] = Delivery{}
	s.pending = s.pending[1:]
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return d, true
}

func (s *Subscription) discard() {
	s.qmu.Lock()
	s.pending = nil
	s.qmu.Unlock()
}

func (s *Subscription) run() {
	defer s.d.wg.Done()
	defer close(s.done)
	defer s.discard()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.ready:
		}
		for {
			d, ok := s.next()
			if !ok {
				break
			}
			if s.ctx.Err() != nil {
				return
			}
			if err := s.deliver(d); err != nil {
				s.d.remove(s, metrics.ActionTornDown, err.Error(), err)
				return
			}
		}
	}
}

func (s *Subscription) deliver(d Delivery) error {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	err := s.sink.Deliver(ctx, d)
	lat := time.Since(d.Enqueued)
	if err != nil {
		deliveries.WithLabelValues("error").Inc()
	} else {
		deliveries.WithLabelValues("ok").Inc()
		deliveryLatency.Observe(lat.Seconds())
	}
	s.d.recordDelivery(s, d, lat, false, err)
	return err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
