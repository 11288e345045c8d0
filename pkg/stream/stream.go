// Package stream provides the single-producer/single-consumer event channel that
// connects the network read loop to the turn executor.
//
// Invariants:
// - Events are observed in push order.
// - A stream terminates exactly once: completed, failed or aborted.
// - Push fails fast when the buffer is full and backpressure is enabled; the
//   producer is a network read loop and must never block on the consumer.
//
// Usage:
//
//	s := stream.New(ctx, stream.DefaultOptions())
//	go func() {
//		_ = s.Push(protocol.Created())
//		s.Complete()
//	}()
//	for {
//		ev, err := s.Next(ctx)
//		if err == io.EOF {
//			break
//		}
//		_ = ev
//	}
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/harun/turnstream/pkg/llmerr"
	"github.com/harun/turnstream/pkg/protocol"
)

var (
	// ErrBackpressure is returned by Push when the buffer is full
	ErrBackpressure = errors.New("stream buffer full")

	// ErrClosed is returned by Push after the stream terminated
	ErrClosed = errors.New("stream already terminated")

	// ErrConcurrentNext is returned when a second consumer calls Next concurrently
	ErrConcurrentNext = errors.New("stream is already being consumed")

	// ErrIdleTimeout is returned by Next when no event arrived within the idle timeout
	ErrIdleTimeout = llmerr.New(llmerr.KindIdleTimeout, "idle timeout waiting for stream event")

	// ErrAborted is returned by Next once the stream was aborted or its context cancelled
	ErrAborted = llmerr.New(llmerr.KindCancelled, "stream aborted")
)

// State is the lifecycle state of a stream
type State int

const (
	StateOpen State = iota
	StateCompleted
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Options configures buffering and consumption
type Options struct {
	BufferSize   int
	IdleTimeout  time.Duration
	Backpressure bool
}

// DefaultOptions returns a 1000 event buffer, 300s idle timeout, backpressure on
func DefaultOptions() Options {
	return Options{
		BufferSize:   1000,
		IdleTimeout:  300 * time.Second,
		Backpressure: true,
	}
}

// Stream is a bounded, cancelable FIFO of protocol events
type Stream struct {
	opts Options

	mu      sync.Mutex
	buf     []protocol.Event
	state   State
	err     error
	reading bool

	notify    chan struct{}
	done      chan struct{}
	stopWatch func() bool
}

// New creates an open stream. Cancelling ctx aborts the stream.
func New(ctx context.Context, opts Options) *Stream {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}

	s := &Stream{
		opts:   opts,
		buf:    make([]protocol.Event, 0, min(opts.BufferSize, 64)),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	if ctx != nil {
		s.stopWatch = context.AfterFunc(ctx, s.Abort)
	}

	return s
}

// Push appends an event and wakes the consumer
func (s *Stream) Push(ev protocol.Event) error {
	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrClosed, state)
	}
	if s.opts.Backpressure && len(s.buf) >= s.opts.BufferSize {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d events pending", ErrBackpressure, s.opts.BufferSize)
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()

	s.signal()
	return nil
}

// Complete marks the stream as successfully finished
func (s *Stream) Complete() {
	s.terminate(StateCompleted, nil)
}

// Fail marks the stream as failed with err
func (s *Stream) Fail(err error) {
	if err == nil {
		err = errors.New("stream failed")
	}
	s.terminate(StateFailed, err)
}

// Abort stops the stream; pending and future Next calls return ErrAborted
func (s *Stream) Abort() {
	s.terminate(StateAborted, ErrAborted)
}

func (s *Stream) terminate(state State, err error) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.err = err
	close(s.done)
	stop := s.stopWatch
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (s *Stream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next returns the next event. It returns io.EOF once a completed stream is
// drained, the failure error once a failed stream is drained, ErrAborted on
// abort and ErrIdleTimeout when nothing arrives within the idle timeout.
func (s *Stream) Next(ctx context.Context) (protocol.Event, error) {
	s.mu.Lock()
	if s.reading {
		s.mu.Unlock()
		return protocol.Event{}, ErrConcurrentNext
	}
	s.reading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reading = false
		s.mu.Unlock()
	}()

	var timeout <-chan time.Time
	if s.opts.IdleTimeout > 0 {
		timer := time.NewTimer(s.opts.IdleTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var ctxDone <-chan struct{}
	if ctx != nil {
		ctxDone = ctx.Done()
	}

	for {
		s.mu.Lock()
		if s.state == StateAborted {
			s.mu.Unlock()
			return protocol.Event{}, ErrAborted
		}
		if len(s.buf) > 0 {
			ev := s.buf[0]
			s.buf[0] = protocol.Event{}
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return ev, nil
		}
		switch s.state {
		case StateCompleted:
			s.mu.Unlock()
			return protocol.Event{}, io.EOF
		case StateFailed:
			err := s.err
			s.mu.Unlock()
			return protocol.Event{}, err
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-timeout:
			return protocol.Event{}, ErrIdleTimeout
		case <-ctxDone:
			s.Abort()
			return protocol.Event{}, ErrAborted
		}
	}
}

// Done is closed once the stream terminates; producers select on it to stop reading
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, nil while open or after completion
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the lifecycle state
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of buffered events
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
