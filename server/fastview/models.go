// fastview publishes idempotent view updates, such as whole-state snapshots,
// from a single producer to any number of websocket clients. Intervening updates
// may be discarded: only the latest one is needed to bring a view up to date.
package fastview

// Publisher accepts view updates from a producer.
type Publisher[T any] interface {
	Publish(T)
}
