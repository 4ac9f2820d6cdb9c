package fastview

import (
	"context"
	"sync"

	channerics "github.com/niceyeti/channerics/channels"
)

// Hub fans updates out to subscribers. Each subscriber has a one-slot mailbox
// holding only the newest update, so a slow client never blocks the producer.
type Hub[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	nextID  int
	last    T
	hasLast bool
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: map[int]chan T{}}
}

// Publish replaces the pending update of every subscriber with @update.
func (hub *Hub[T]) Publish(update T) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	hub.last = update
	hub.hasLast = true
	for _, mailbox := range hub.subs {
		offerLatest(mailbox, update)
	}
}

// Latest returns the most recently published update, if any.
func (hub *Hub[T]) Latest() (T, bool) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return hub.last, hub.hasLast
}

// Subscribe returns a channel of updates, primed with the latest one, and a func
// to unsubscribe, after which the channel is closed.
func (hub *Hub[T]) Subscribe() (<-chan T, func()) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	id := hub.nextID
	hub.nextID++
	mailbox := make(chan T, 1)
	if hub.hasLast {
		mailbox <- hub.last
	}
	hub.subs[id] = mailbox

	var once sync.Once
	return mailbox, func() {
		once.Do(func() {
			hub.mu.Lock()
			defer hub.mu.Unlock()
			delete(hub.subs, id)
			close(mailbox)
		})
	}
}

// Subscribers is the current number of subscribers.
func (hub *Hub[T]) Subscribers() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.subs)
}

// Feed converts and publishes every item of @source until it closes or @ctx is done.
func Feed[S any, T any](
	ctx context.Context,
	source <-chan S,
	convert func(S) T,
	pub Publisher[T],
) {
	for update := range channerics.Convert(ctx.Done(), source, convert) {
		pub.Publish(update)
	}
}

// offerLatest sends @update, first evicting a stale pending update if the mailbox is full.
// Callers hold the hub lock, so the mailbox has no concurrent sender.
func offerLatest[T any](mailbox chan T, update T) {
	select {
	case mailbox <- update:
		return
	default:
	}
	select {
	case <-mailbox:
	default:
	}
	mailbox <- update
}
