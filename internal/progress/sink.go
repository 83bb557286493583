package progress

import "sync"

// Sink receives every event of a job in emission order
type Sink interface {
	Publish(seq int, ev Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(seq int, ev Event)

func (f SinkFunc) Publish(seq int, ev Event) {
	f(seq, ev)
}

// ChanSink buffers events for a single stream consumer.
// The consumer must drain Events until it is closed.
type ChanSink struct {
	ch   chan Event
	once sync.Once
}

// NewChanSink creates a channel sink with the given buffer size
func NewChanSink(buffer int) *ChanSink {
	if buffer <= 0 {
		buffer = 32
	}
	return &ChanSink{ch: make(chan Event, buffer)}
}

func (s *ChanSink) Publish(_ int, ev Event) {
	s.ch <- ev
}

// Events returns the receive side of the sink
func (s *ChanSink) Events() <-chan Event {
	return s.ch
}

// Close ends the stream. Safe to call more than once.
func (s *ChanSink) Close() {
	s.once.Do(func() { close(s.ch) })
}
