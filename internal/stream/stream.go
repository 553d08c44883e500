// Package stream provides ordered execution queues.
//
// Work submitted to one Stream runs in submission order. Work on different
// streams has no ordering guarantee. The Default stream runs work inline on
// the caller's goroutine and reports errors immediately; streams created with
// New run work on a dedicated goroutine, keep the first error they observe and
// report it from Synchronize.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/born-ml/xform/internal/errs"
)

// ID identifies a stream. The default stream has ID 0.
type ID uint64

// DefaultID is the ID of the default stream.
const DefaultID ID = 0

// ErrClosed is returned when work is submitted to a closed stream.
var ErrClosed = errors.New("stream: closed")

var nextID atomic.Uint64

// Default is the inline stream.
var Default = &Stream{id: DefaultID}

// Stream is an ordered work queue.
type Stream struct {
	id ID

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func() error
	busy   bool
	err    error
	closed bool
	done   chan struct{}
}

// New starts a stream with a fresh ID.
func New() *Stream {
	s := &Stream{
		id:   ID(nextID.Add(1)),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Or returns s, or Default when s is nil.
func Or(s *Stream) *Stream {
	if s == nil {
		return Default
	}
	return s
}

// ID returns the stream ID.
func (s *Stream) ID() ID {
	return s.id
}

// IsDefault reports whether s runs work inline.
func (s *Stream) IsDefault() bool {
	return s.id == DefaultID
}

// Submit enqueues fn. On the default stream fn runs immediately and its error
// is returned. On other streams Submit returns once fn is queued; a failure is
// reported by the next Synchronize.
func (s *Stream) Submit(fn func() error) error {
	if s.IsDefault() {
		return call(s.id, fn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.queue = append(s.queue, fn)
	s.cond.Broadcast()
	return nil
}

// Do runs fn in order with previously submitted work and waits for it.
// The error from fn is returned directly and does not become sticky.
func (s *Stream) Do(fn func() error) error {
	if s.IsDefault() {
		return call(s.id, fn)
	}

	result := make(chan error, 1)
	err := s.Submit(func() error {
		result <- call(s.id, fn)
		return nil
	})
	if err != nil {
		return err
	}
	return <-result
}

// Synchronize waits until all queued work has run and returns (and clears)
// the first error recorded since the previous Synchronize.
func (s *Stream) Synchronize() error {
	if s.IsDefault() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 || s.busy {
		s.cond.Wait()
	}
	err := s.err
	s.err = nil
	return err
}

// Close drains the queue, stops the worker and returns any pending error.
// Closing the default stream is a no-op.
func (s *Stream) Close() error {
	if s.IsDefault() {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

// String returns a short description of the stream.
func (s *Stream) String() string {
	return fmt.Sprintf("stream(%d)", s.id)
}

func (s *Stream) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.busy = true
		s.mu.Unlock()

		err := call(s.id, fn)

		s.mu.Lock()
		s.busy = false
		if err != nil && s.err == nil {
			s.err = err
		}
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// call runs fn, reporting a panic as a KindVendor error.
func call(id ID, fn func() error) (err error) {
	defer errs.Recover(fmt.Sprintf("stream %d", id), &err)
	return fn()
}
