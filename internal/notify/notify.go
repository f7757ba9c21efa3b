// Package notify delivers "new version installed" events to the host shell.
package notify

import (
	"sync"
	"time"
)

// Event describes a bundle installed in the background. It takes effect
// on the next launch.
type Event struct {
	Version     string    `json:"version" yaml:"version"`
	Previous    string    `json:"previous,omitempty" yaml:"previous,omitempty"`
	InstalledAt time.Time `json:"installed_at" yaml:"installed_at"`
}

// Dispatcher runs fn on the host's UI-safe scheduling context.
type Dispatcher func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) { fn() }

type subscription struct {
	id int
	fn func(Event)
}

// Notifier fans events out to registered callbacks.
type Notifier struct {
	dispatch Dispatcher

	mu     sync.Mutex
	subs   []subscription
	nextID int
}

// New creates a notifier delivering through dispatch; nil means Inline.
func New(dispatch Dispatcher) *Notifier {
	if dispatch == nil {
		dispatch = Inline
	}
	return &Notifier{dispatch: dispatch}
}

// OnNewVersionInstalled registers fn and returns a function that removes it.
func (n *Notifier) OnNewVersionInstalled(fn func(Event)) (unregister func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, fn: fn})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// Notify delivers ev to every callback registered at the time of the call,
// in registration order.
func (n *Notifier) Notify(ev Event) {
	n.mu.Lock()
	subs := make([]subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		fn := s.fn
		n.dispatch(func() { fn(ev) })
	}
}

// Queue is a Dispatcher backed by one goroutine, so callbacks never run
// concurrently with each other. Dispatch blocks while the buffer is full.
type Queue struct {
	work chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewQueue starts the dispatch goroutine. size is the buffer length.
func NewQueue(size int) *Queue {
	q := &Queue{
		work: make(chan func(), size),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		select {
		case fn := <-q.work:
			fn()
		case <-q.quit:
			// drain what was accepted before Close
			for {
				select {
				case fn := <-q.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Dispatch enqueues fn. After Close it drops fn.
func (q *Queue) Dispatch(fn func()) {
	select {
	case <-q.quit:
		return
	default:
	}
	select {
	case q.work <- fn:
	case <-q.quit:
	}
}

// Close stops accepting work and waits for queued callbacks to finish.
// It is safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.quit) })
	<-q.done
}
