package workers

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/routecast/core/logger"
	"github.com/kilianp07/routecast/core/monitoring"
)

// Task is a unit of work run by a Pool.
type Task func()

// Pool is a bounded, keyed worker pool with a caller-runs saturation policy.
type Pool struct {
	name   string
	shards []*shard
	next   atomic.Uint64
	log    logger.Logger

	closeOnce sync.Once
	wg        sync.WaitGroup
}

type shard struct {
	pool     *Pool
	capacity int

	mu     sync.Mutex
	queue  []Task
	closed bool
	wake   chan struct{}

	// exec is held while a task of this shard runs, by the worker or by a
	// caller running work inline. It serializes execution per shard.
	exec sync.Mutex
}

// NewPool starts a pool named name with cfg.Workers shards.
func NewPool(name string, cfg PoolConfig, log logger.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	p := &Pool{name: name, log: log}
	p.shards = make([]*shard, cfg.Workers)
	for i := range p.shards {
		s := &shard{
			pool:     p,
			capacity: cfg.QueueSize,
			queue:    make([]Task, 0, cfg.QueueSize),
			wake:     make(chan struct{}, 1),
		}
		p.shards[i] = s
		p.wg.Add(1)
		go s.work()
	}
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Submit schedules task on the shard owning key. An empty key picks shards
// round-robin. When the shard queue is full, Submit drains the queued tasks
// and runs task on the calling goroutine before returning. A task must not
// submit to its own pool.
func (p *Pool) Submit(key string, task Task) error {
	if task == nil {
		return nil
	}
	s := p.shardFor(key)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrPoolClosed
	}
	tasksSubmitted.WithLabelValues(p.name).Inc()
	if len(s.queue) < s.capacity {
		s.queue = append(s.queue, task)
		queueDepth.WithLabelValues(p.name).Inc()
		select {
		case s.wake <- struct{}{}:
		default:
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	callerRuns.WithLabelValues(p.name).Inc()
	s.exec.Lock()
	defer s.exec.Unlock()
	for n := s.pending(); n > 0; n-- {
		queued, _ := s.pop()
		if queued == nil {
			break
		}
		p.run(queued)
	}
	p.run(task)
	return nil
}

// Close stops accepting tasks, runs what is already queued and waits for
// every worker to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		for _, s := range p.shards {
			s.mu.Lock()
			s.closed = true
			close(s.wake)
			s.mu.Unlock()
		}
	})
	p.wg.Wait()
}

func (p *Pool) shardFor(key string) *shard {
	n := uint64(len(p.shards))
	if n == 1 {
		return p.shards[0]
	}
	if key == "" {
		return p.shards[(p.next.Add(1)-1)%n]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.shards[uint64(h.Sum32())%n]
}

func (p *Pool) run(task Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker pool %s: task panic: %v", p.name, r)
			taskPanics.WithLabelValues(p.name).Inc()
			if p.log != nil {
				p.log.Errorf("%v", err)
			}
			monitoring.CaptureException(err, map[string]string{"pool": p.name})
		}
		taskDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	}()
	task()
}

func (s *shard) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// pop removes the oldest task. done reports a closed and empty shard.
func (s *shard) pop() (task Task, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, s.closed
	}
	task = s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	queueDepth.WithLabelValues(s.pool.name).Dec()
	return task, false
}

func (s *shard) work() {
	defer s.pool.wg.Done()
	for {
		s.exec.Lock()
		task, done := s.pop()
		if task != nil {
			s.pool.run(task)
		}
		s.exec.Unlock()
		if done {
			return
		}
		if task == nil {
			<-s.wake
		}
	}
}
