// Package progress implements the per-job Progress Channel (spec.md §4.9):
// a multi-subscriber broadcast with replay-on-join and slow-consumer drop.
// Grounded on the teacher's DebateOrchestrator.Subscribe/broadcast
// (pkg/core/debate/orchestrator.go), generalized from an unbounded history
// slice to a typed, terminal-aware event log.
package progress

import (
	"sync"
)

// Event is one progress update (spec.md §4.8: "stage boundaries" and
// "substep progress").
type Event struct {
	Seq      int64  `json:"seq"`
	Percent  int    `json:"percent"`
	Status   string `json:"status"`
	Substep  string `json:"substep,omitempty"`
	Terminal bool   `json:"terminal"`
	State    string `json:"state,omitempty"`
}

// Channel is the per-job broadcast surface. Zero value is not usable; use
// New.
type Channel struct {
	mu       sync.Mutex
	history  []Event
	subs     map[chan Event]struct{}
	closed   bool
	terminal *Event
}

// New returns a Channel ready to publish and accept subscribers.
func New() *Channel {
	return &Channel{subs: make(map[chan Event]struct{})}
}

// Publish appends event to the backlog and offers it to every current
// subscriber; for a subscriber whose buffer is full it drops that
// subscriber's oldest queued event to make room (spec.md
// §4.9: "drop the oldest undelivered event and advance sequence"). Publish
// after Close is a no-op.
func (c *Channel) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.history = append(c.history, e)
	if e.Terminal {
		final := e
		c.terminal = &final
	}
	for ch := range c.subs {
		select {
		case ch <- e:
		default:
			// Slow consumer: drop the oldest queued event to make room,
			// then retry once. The subscriber observes a sequence gap.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
			}
		}
	}
	if e.Terminal {
		c.closeLocked()
	}
}

// Subscribe registers a new subscriber channel and returns it along with
// the full backlog (or, if the job is already terminal, a single synthetic
// final-state event) — spec.md §4.9: "replay the full sequence ... or, if
// the job is already terminal, delivered as one final-state synthetic
// event".
func (c *Channel) Subscribe() (<-chan Event, []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, 64)
	if c.closed {
		close(ch)
		if c.terminal != nil {
			return ch, []Event{*c.terminal}
		}
		return ch, nil
	}

	c.subs[ch] = struct{}{}
	backlog := make([]Event, len(c.history))
	copy(backlog, c.history)
	return ch, backlog
}

// NextSeq returns one more than the Seq of the most recently published
// event (or 1 if none has been published yet), read under the channel's
// own lock so it stays authoritative even when callers also cache the
// last-seen event asynchronously (job.Orchestrator.trackProgress).
func (c *Channel) NextSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return 1
	}
	return c.history[len(c.history)-1].Seq + 1
}

// Unsubscribe removes and closes a subscriber's channel. Idempotent.
func (c *Channel) Unsubscribe(ch <-chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subs {
		if sub == ch {
			delete(c.subs, sub)
			close(sub)
			return
		}
	}
}

// closeLocked closes every subscriber channel and marks the Channel
// terminal. Callers must hold c.mu.
func (c *Channel) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	for ch := range c.subs {
		close(ch)
	}
	c.subs = make(map[chan Event]struct{})
}

// Close marks the channel terminal without publishing a final event —
// used when a job transitions to a terminal state that was already carried
// by the last Publish call. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}
