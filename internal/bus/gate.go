package bus

import "sync"

// Gate enforces at-most-one active stream for a logical request kind.
// Opening a stream supersedes every earlier one; a superseded stream can
// never publish again, because the epoch check and the publish happen under
// the same lock that Open takes.
type Gate struct {
	mu    sync.Mutex
	epoch uint64
	pub   Publisher
}

// NewGate creates a gate publishing through pub.
func NewGate(pub Publisher) *Gate {
	return &Gate{pub: pub}
}

// Open supersedes the current stream and returns a new one.
func (g *Gate) Open() *Stream {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
	return &Stream{gate: g, epoch: g.epoch}
}

// Close supersedes the current stream without opening another.
func (g *Gate) Close() {
	g.mu.Lock()
	g.epoch++
	g.mu.Unlock()
}

// Epoch returns the live epoch.
func (g *Gate) Epoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// Stream is one epoch of a Gate.
type Stream struct {
	gate  *Gate
	epoch uint64
}

// Epoch returns the epoch this stream was opened with.
func (s *Stream) Epoch() uint64 { return s.epoch }

// Active reports whether the stream is still the current one.
func (s *Stream) Active() bool {
	s.gate.mu.Lock()
	defer s.gate.mu.Unlock()
	return s.gate.epoch == s.epoch
}

// Emit publishes evt if the stream is still current and reports whether it did.
func (s *Stream) Emit(evt Event) bool {
	s.gate.mu.Lock()
	defer s.gate.mu.Unlock()
	if s.gate.epoch != s.epoch {
		return false
	}
	s.gate.pub.Publish(evt)
	return true
}
