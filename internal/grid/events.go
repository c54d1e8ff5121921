package grid

import (
	"sync"
	"sync/atomic"
)

// EventKind identifies an occupancy notification.
type EventKind uint8

const (
	EventOccupied EventKind = iota // a cell was claimed
	EventFreed                     // a cell was released
	EventRebuilt                   // the whole lattice was rebuilt; all occupancy discarded
)

func (k EventKind) String() string {
	switch k {
	case EventOccupied:
		return "occupied"
	case EventFreed:
		return "freed"
	case EventRebuilt:
		return "rebuilt"
	default:
		return "unknown"
	}
}

// Event is published after a mutation commits. Occupant and Type describe
// the claim that was made (EventOccupied) or released (EventFreed).
type Event struct {
	Seq      uint64
	Kind     EventKind
	Coord    Coord
	Occupant Handle
	Type     OccupantType
}

type subscriber struct {
	id int
	fn func(Event)
	ch chan Event
}

// Bus fans occupancy events out to observers. Callback subscribers run
// synchronously on a mutating goroutine after the cell lock is released, so
// they may read the grid. They must not mutate the grid or cancel
// subscriptions from inside the callback. Channel subscribers never block a
// mutation: a full channel drops the event.
type Bus struct {
	mu     sync.Mutex // guards subs and nextID
	subs   []subscriber
	nextID int

	qmu   sync.Mutex // guards queue and seq
	queue []Event
	seq   uint64

	pub     sync.Mutex // held while draining the queue
	dropped atomic.Uint64
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every future event. The returned function
// removes the subscription.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	id := b.add(subscriber{fn: fn})
	return func() { b.remove(id) }
}

// Channel returns a buffered channel receiving every future event. buf <= 0
// uses 64. Cancel closes the channel.
func (b *Bus) Channel(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Event, buf)
	id := b.add(subscriber{ch: ch})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.remove(id)
			b.pub.Lock()
			close(ch)
			b.pub.Unlock()
		})
	}
}

// Dropped returns how many events were discarded because a channel
// subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus) add(s subscriber) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	return s.id
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// enqueue stamps evs and appends them to the delivery queue. Callers hold
// the grid's write lock, so queue order is commit order.
func (b *Bus) enqueue(evs []Event) {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	for i := range evs {
		b.seq++
		evs[i].Seq = b.seq
		b.queue = append(b.queue, evs[i])
	}
}

// flush delivers queued events in order until the queue is empty. It never
// takes the grid lock, so a callback reading the grid cannot deadlock a
// writer waiting here.
func (b *Bus) flush() {
	b.pub.Lock()
	defer b.pub.Unlock()
	for {
		b.qmu.Lock()
		batch := b.queue
		b.queue = nil
		b.qmu.Unlock()
		if len(batch) == 0 {
			return
		}

		b.mu.Lock()
		subs := b.subs
		b.mu.Unlock()
		for _, ev := range batch {
			for _, s := range subs {
				if s.fn != nil {
					s.fn(ev)
					continue
				}
				select {
				case s.ch <- ev:
				default:
					b.dropped.Add(1)
				}
			}
		}
	}
}
