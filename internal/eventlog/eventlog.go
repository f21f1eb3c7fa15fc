// Package eventlog keeps the most recent raw webhook events in memory for
// diagnostics. It is not a source of truth; the conversation store is.
package eventlog

import (
	"sync"
	"time"

	"github.com/matheus3301/wabiz/internal/webhook"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 100

// Entry is a buffered event with its insertion order.
type Entry struct {
	Seq        uint64        `json:"seq"`
	ReceivedAt time.Time     `json:"receivedAt"`
	Event      webhook.Event `json:"event"`
}

// Log is a fixed-capacity FIFO. Appending past capacity evicts the oldest entry.
type Log struct {
	mu   sync.Mutex
	buf  []Entry
	head int // index of the oldest entry
	size int
	seq  uint64
	now  func() time.Time
}

// New creates a log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		buf: make([]Entry, capacity),
		now: time.Now,
	}
}

// Append inserts evt at the tail, evicting the head when full.
func (l *Log) Append(evt webhook.Event) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e := Entry{Seq: l.seq, ReceivedAt: l.now(), Event: evt}

	tail := (l.head + l.size) % len(l.buf)
	l.buf[tail] = e
	if l.size < len(l.buf) {
		l.size++
	} else {
		l.head = (l.head + 1) % len(l.buf)
	}
	return e
}

// Snapshot returns a copy of the buffered entries, oldest first.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, l.size)
	for i := range l.size {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}

// Len returns the number of buffered entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Cap returns the fixed capacity.
func (l *Log) Cap() int {
	return len(l.buf)
}
