// Package eventstream publishes completed exchanges to an event stream so
// that downstream consumers (analytics, audit) can follow conversation
// activity without reading the turn store.
package eventstream

import "context"

// Publisher publishes exchange events to an event stream backend.
type Publisher interface {
	PublishExchange(ctx context.Context, event *ExchangeEvent) error
	Close() error
}
