package mqtt

import "github.com/sweeney/rf433/internal/logic"

// NopPublisher discards everything. It stands in when no broker is
// configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(logic.Event) error { return nil }

// PublishSystem implements Publisher.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// SubscribeSend implements Subscriber. No requests are ever delivered.
func (NopPublisher) SubscribeSend(SendHandler) error { return nil }

// IsConnected implements ConnectionStatus.
func (NopPublisher) IsConnected() bool { return false }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
