// Package bus is the process-wide negotiation channel between agents.
//
// Publish fans a message out synchronously to every subscriber in subscription
// order; each handler decides whether the message is addressed to it. The bus
// keeps no reference to an agent after Unsubscribe.
package bus

import "sync"

// Handler receives every published message. It must not block.
type Handler func(Message)

type subscriber struct {
	id string
	h  Handler
}

type Stats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

type Bus struct {
	mu    sync.Mutex
	subs  []subscriber
	tick  uint64
	seq   uint64
	stats Stats
}

func New() *Bus { return &Bus{} }

// SetTick stamps subsequent messages with the current simulation tick.
func (b *Bus) SetTick(tick uint64) {
	b.mu.Lock()
	b.tick = tick
	b.mu.Unlock()
}

// Subscribe registers h under id, replacing any previous handler for id.
func (b *Bus) Subscribe(id string, h Handler) {
	if id == "" || h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.subs {
		if b.subs[i].id == id {
			b.subs[i].h = h
			return
		}
	}
	b.subs = append(b.subs, subscriber{id: id, h: h})
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.subs {
		if b.subs[i].id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) Subscribed(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.id == id {
			return true
		}
	}
	return false
}

// Publish delivers p from sender to recipient. It reports whether a subscriber
// with the recipient's id exists; messages to unknown recipients are dropped.
func (b *Bus) Publish(sender, recipient string, p Payload) bool {
	if p == nil {
		return false
	}
	b.mu.Lock()
	b.seq++
	msg := Message{
		Seq:       b.seq,
		Tick:      b.tick,
		Sender:    sender,
		Recipient: recipient,
		Payload:   p,
	}
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.stats.Published++
	found := false
	for _, s := range subs {
		if s.id == recipient {
			found = true
			break
		}
	}
	if found {
		b.stats.Delivered++
	} else {
		b.stats.Dropped++
	}
	b.mu.Unlock()

	// Handlers run outside the lock so they may publish in turn.
	for _, s := range subs {
		s.h(msg)
	}
	return found
}

func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// ResetStats returns the counters accumulated since the last reset.
func (b *Bus) ResetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	b.stats = Stats{}
	return s
}

// Seq returns the sequence number of the last published message.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// SetSeq resumes numbering after a snapshot restore.
func (b *Bus) SetSeq(seq uint64) {
	b.mu.Lock()
	b.seq = seq
	b.mu.Unlock()
}
